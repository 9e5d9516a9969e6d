package patterns

import (
	"math"

	"github.com/Alias1177/signalwatch/models"
)

// Candle shape labels stored in findings.
const (
	ShapeHammer       = "Hammer"
	ShapeShootingStar = "Shooting Star"
)

func body(o models.Observation) float64 { return math.Abs(o.Close - o.Open) }

func upperWick(o models.Observation) float64 { return o.High - math.Max(o.Open, o.Close) }

func lowerWick(o models.Observation) float64 { return math.Min(o.Open, o.Close) - o.Low }

func isGreen(o models.Observation) bool { return o.Close > o.Open }

func isRed(o models.Observation) bool { return o.Close < o.Open }

// isHammer: bullish close with a lower wick at least ratio times the body.
func isHammer(o models.Observation, ratio float64) bool {
	return isGreen(o) && lowerWick(o) >= body(o)*ratio
}

// isShootingStar: bearish close with an upper wick at least ratio times the body.
func isShootingStar(o models.Observation, ratio float64) bool {
	return isRed(o) && upperWick(o) >= body(o)*ratio
}

// overlaps reports whether the candle range touches the [bottom, top] zone.
func overlaps(o models.Observation, bottom, top float64) bool {
	return o.Low <= top && o.High >= bottom
}

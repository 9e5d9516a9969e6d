package signalstate

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Alias1177/signalwatch/internal/config"
	"github.com/Alias1177/signalwatch/internal/patterns"
	"github.com/Alias1177/signalwatch/models"
)

// Similarity is the outcome of comparing a new finding with the stored one.
type Similarity int

const (
	// Inconclusive means no comparable field was found on both sides.
	Inconclusive Similarity = iota
	Similar
	Different
)

func (s Similarity) String() string {
	switch s {
	case Similar:
		return "similar"
	case Different:
		return "different"
	default:
		return "inconclusive"
	}
}

const (
	zScoreField  = "z_score"
	pct24hSuffix = "_24h"
)

// Compare classifies cur against prev. It never mutates either finding.
func Compare(prev, cur models.Finding, cfg config.SignalStateConfig) Similarity {
	if cur.Indicator == patterns.FVGIndicator {
		return compareGap(prev, cur, cfg.FVGPriceTolerancePercent)
	}
	return compareGeneric(prev.Attributes, cur.Attributes, cfg)
}

// compareGap treats two gap findings as the same setup when the zone midpoint
// moved less than tolerance percent and the confirmation shape is unchanged.
func compareGap(prev, cur models.Finding, tolerancePct float64) Similarity {
	prevMid, ok := midpoint(prev.Attributes)
	if !ok {
		return Inconclusive
	}
	curMid, ok := midpoint(cur.Attributes)
	if !ok {
		return Inconclusive
	}

	if percentDiff(prevMid, curMid) < tolerancePct &&
		label(prev.Attributes["confirmation_candle"]) == label(cur.Attributes["confirmation_candle"]) {
		return Similar
	}
	return Different
}

func compareGeneric(prev, cur map[string]any, cfg config.SignalStateConfig) Similarity {
	compared := false

	if a, okA := numeric(prev[zScoreField]); okA {
		if b, okB := numeric(cur[zScoreField]); okB {
			compared = true
			if math.Abs(b-a) > cfg.ZScoreChangeThreshold {
				return Different
			}
		}
	}

	for key, v := range cur {
		if !strings.HasSuffix(key, pct24hSuffix) {
			continue
		}
		a, okA := fraction(prev[key])
		b, okB := fraction(v)
		if !okA || !okB {
			continue
		}
		compared = true
		if math.Abs(b-a) > cfg.PercentChangeThreshold {
			return Different
		}
	}

	if compared {
		return Similar
	}
	return Inconclusive
}

func midpoint(attrs map[string]any) (float64, bool) {
	top, ok := numeric(attrs["fvg_top"])
	if !ok {
		return 0, false
	}
	bottom, ok := numeric(attrs["fvg_bottom"])
	if !ok {
		return 0, false
	}
	return (top + bottom) / 2, true
}

// percentDiff is |cur-last|/|last| in percent. A zero baseline is infinitely
// far from anything but zero.
func percentDiff(last, cur float64) float64 {
	if last == 0 {
		if cur == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return math.Abs((cur-last)/last) * 100
}

func label(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// numeric accepts JSON numbers and formatted strings such as "$1,234.50".
func numeric(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.NewReplacer("$", "", ",", "", " ", "").Replace(x)
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// fraction reads a percentage field. Strings ending in "%" are percent
// values ("+3.20%" -> 0.032); bare numbers are taken as fractions already.
func fraction(v any) (float64, bool) {
	if s, ok := v.(string); ok {
		trimmed := strings.TrimSpace(s)
		if strings.HasSuffix(trimmed, "%") {
			f, ok := numeric(strings.TrimSuffix(trimmed, "%"))
			return f / 100, ok
		}
	}
	return numeric(v)
}

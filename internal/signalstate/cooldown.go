package signalstate

import (
	"math"
	"time"
)

// Cooldown returns base * factor^(count-1) minutes, capped at ceiling minutes.
// A non-positive ceiling disables the cap.
func Cooldown(baseMinutes, factor, ceilingMinutes float64, count int) time.Duration {
	if count < 1 {
		count = 1
	}
	minutes := baseMinutes * math.Pow(factor, float64(count-1))
	if ceilingMinutes > 0 && minutes > ceilingMinutes {
		minutes = ceilingMinutes
	}
	ns := minutes * float64(time.Minute)
	if ns >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ns)
}

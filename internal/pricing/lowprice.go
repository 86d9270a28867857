package pricing

import "time"

// Sample is one point of a side's price series
type Sample struct {
	Time  time.Time
	Price float64
}

// DeriveLowPrices returns both sides' minimum price over the window.
//
// samples is the away side's series. The market is binary, so the home
// side's low is taken as 1 - away high. That ignores any bid/ask spread
// and is an approximation.
//
// When no sample falls inside the window the whole series is used, so a
// feed with misaligned timestamps still yields an answer. ok is false
// only when there are no samples at all.
func DeriveLowPrices(samples []Sample, windowStart time.Time) (homeLow, awayLow float64, ok bool) {
	selected := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if !s.Time.Before(windowStart) {
			selected = append(selected, s)
		}
	}
	if len(selected) == 0 {
		selected = samples
	}
	if len(selected) == 0 {
		return 0, 0, false
	}

	low, high := selected[0].Price, selected[0].Price
	for _, s := range selected[1:] {
		if s.Price < low {
			low = s.Price
		}
		if s.Price > high {
			high = s.Price
		}
	}

	return 1 - high, low, true
}

package stats

import "math"

// Rates are whole-number percentages shown on the dashboard.
type Rates struct {
	Send     int64 `json:"send"`
	Delivery int64 `json:"delivery"`
	Bounce   int64 `json:"bounce"`
	Open     int64 `json:"open"`
}

// ComputeRates derives dashboard percentages from category totals. Without
// Send events the base falls back to delivered plus bounced.
func ComputeRates(t CategoryTotals) Rates {
	var r Rates
	base := t.Sent
	if base > 0 {
		r.Send = 100
	} else {
		base = t.Delivered + t.Bounced
	}
	r.Delivery = percent(t.Delivered, base)
	r.Bounce = percent(t.Bounced, base)
	r.Open = percent(t.Opened, t.Delivered)
	return r
}

func percent(n, base int64) int64 {
	if base <= 0 {
		return 0
	}
	p := int64(math.Round(float64(n) / float64(base) * 100))
	if p > 100 {
		return 100
	}
	return p
}

// percent2 is percent with two decimals, as shown on the analytics page.
func percent2(n, base int64) float64 {
	if base <= 0 {
		return 0
	}
	return math.Min(100, math.Round(float64(n)/float64(base)*10000)/100)
}

package core

// categoryPercent holds the fixed share of each category. The values sum to 100.
var categoryPercent = map[Category]int{
	CategoryEducational:  40,
	CategoryPromotional:  20,
	CategoryEngagement:   20,
	CategoryTestimonial:  10,
	CategoryBehindScenes: 10,
}

// Weight returns the category's share of a calendar as a fraction.
func (c Category) Weight() float64 {
	return float64(categoryPercent[c]) / 100
}

// PlanMix splits total posts across categories with floor rounding.
// Posts lost to rounding are dropped rather than redistributed, so the sum
// can be lower than total (7 posts plan as 2/1/1/0/0).
func PlanMix(total int) map[Category]int {
	mix := make(map[Category]int, len(Categories))
	if total < 0 {
		total = 0
	}
	for _, c := range Categories {
		mix[c] = total * categoryPercent[c] / 100
	}
	return mix
}

// MixTotal sums the counts of a planned mix.
func MixTotal(mix map[Category]int) int {
	sum := 0
	for _, n := range mix {
		sum += n
	}
	return sum
}

package catalog

import "time"

const (
	Winter = "WINTER"
	Spring = "SPRING"
	Summer = "SUMMER"
	Fall   = "FALL"
)

// SeasonOf maps a calendar month to its broadcast season. December stays in
// the current year's WINTER, matching how the catalog is queried.
func SeasonOf(t time.Time) (season string, year int) {
	switch m := t.Month(); {
	case m >= time.March && m <= time.May:
		season = Spring
	case m >= time.June && m <= time.August:
		season = Summer
	case m >= time.September && m <= time.November:
		season = Fall
	default:
		season = Winter
	}
	return season, t.Year()
}

func ValidSeason(s string) bool {
	switch s {
	case Winter, Spring, Summer, Fall:
		return true
	}
	return false
}

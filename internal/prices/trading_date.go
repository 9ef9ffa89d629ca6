package prices

import "time"

// FreshnessWindow is how close the stored series must be to the trading date to skip a refresh
const FreshnessWindow = 6 * time.Hour

var newYork = loadNewYork()

func loadNewYork() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("EST", -5*3600)
	}
	return loc
}

// marketCloseHour is the NYSE close in local time
const marketCloseHour = 16

// TradingDate returns the date of the most recent weekday close at or before now
func TradingDate(now time.Time) time.Time {
	local := now.In(newYork)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)

	if local.Hour() < marketCloseHour {
		day = day.AddDate(0, 0, -1)
	}
	for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		day = day.AddDate(0, 0, -1)
	}
	return day
}

// IsFresh reports whether latest is within FreshnessWindow of the trading date
func IsFresh(latest, now time.Time) bool {
	if latest.IsZero() {
		return false
	}
	return !latest.Before(TradingDate(now).Add(-FreshnessWindow))
}

package workflow

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/billy3321/ivod-engine/internal/model"
)

// EarliestDate is the first calendar date the catalog is known to cover.
// Full run start dates are clamped to it.
var EarliestDate = time.Date(2024, 2, 1, 0, 0, 0, 0, model.TaipeiLocation)

// ParseDateArg parses a "YYYY-MM-DD" CLI argument. A malformed or empty
// value falls back to def, with a warning for non-empty malformed input.
func ParseDateArg(raw string, def time.Time, log zerolog.Logger) time.Time {
	if raw == "" {
		return def
	}
	t, err := time.ParseInLocation("2006-01-02", raw, model.TaipeiLocation)
	if err != nil {
		log.Warn().Str("value", raw).Msg("malformed date argument, using default")
		return def
	}
	return t
}

// ClampRange enforces start >= EarliestDate and end <= today, logging
// whenever a clamp actually moves the value.
func ClampRange(start, end time.Time, log zerolog.Logger) (time.Time, time.Time) {
	today := truncateToDate(model.Now())
	if start.Before(EarliestDate) {
		log.Warn().Time("requested", start).Time("clamped_to", EarliestDate).Msg("start date clamped to earliest covered date")
		start = EarliestDate
	}
	if end.After(today) {
		log.Warn().Time("requested", end).Time("clamped_to", today).Msg("end date clamped to today")
		end = today
	}
	return start, end
}

func truncateToDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, model.TaipeiLocation)
}

// dateRange yields each calendar date from start to end inclusive.
func dateRange(start, end time.Time) []time.Time {
	if end.Before(start) {
		return nil
	}
	var dates []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

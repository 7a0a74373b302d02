package quota

import (
	"fmt"
	"time"
)

// PeriodLength is the span of one quota period.
const PeriodLength = 7 * 24 * time.Hour

// PeriodLabel names the ISO-8601 week containing t in UTC, e.g. "2024-W05".
// Every instant from Monday 00:00 to Sunday 23:59:59 UTC maps to the same label.
func PeriodLabel(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// PeriodStart returns Monday 00:00 UTC of the week containing t.
func PeriodStart(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7 // Monday = 0
	y, m, d := t.Date()
	return time.Date(y, m, d-offset, 0, 0, 0, 0, time.UTC)
}

// NextReset returns the start of the period after the one containing t.
func NextReset(t time.Time) time.Time {
	return PeriodStart(t).AddDate(0, 0, 7)
}

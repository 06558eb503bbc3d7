package aggregation

import (
	"errors"
	"fmt"
	"time"
)

var ErrUnknownGroupBy = errors.New("unknown groupBy")

type GroupBy string

const (
	GroupByDay   GroupBy = "day"
	GroupByWeek  GroupBy = "week"
	GroupByMonth GroupBy = "month"
)

func ParseGroupBy(s string) (GroupBy, error) {
	switch g := GroupBy(s); g {
	case GroupByDay, GroupByWeek, GroupByMonth:
		return g, nil
	}
	return "", fmt.Errorf("%w: %q (expected day, week or month)", ErrUnknownGroupBy, s)
}

// PeriodKey formats t as the bucket key for g. Keys are computed on the UTC
// wall clock.
func PeriodKey(t time.Time, g GroupBy) string {
	t = t.UTC()
	switch g {
	case GroupByWeek:
		return ISOWeekKey(t)
	case GroupByMonth:
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}

// ISOWeekKey returns the ISO-8601 week as YYYY-Www. The date is moved to the
// Thursday of its Monday-based week; that Thursday's year is the week-year and
// week = ceil((daysSinceJan1 + 1) / 7).
func ISOWeekKey(t time.Time) string {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	thursday := day.AddDate(0, 0, 4-weekday)
	daysSinceJan1 := thursday.YearDay() - 1
	week := daysSinceJan1/7 + 1
	return fmt.Sprintf("%d-W%02d", thursday.Year(), week)
}

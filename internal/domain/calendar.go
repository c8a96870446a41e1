// Package domain contains core business types and interfaces.
//
// This file holds the calendar rules shared by the free-tier ledger and the
// subscription lifecycle: billing period keys and cycle advancement.
package domain

import (
	"fmt"
	"time"
)

// periodKeyLayout formats a period key as "YYYY-MM".
const periodKeyLayout = "2006-01"

// CurrentPeriodKey returns the monthly usage partition key for now, in UTC.
func CurrentPeriodKey(now time.Time) string {
	return now.UTC().Format(periodKeyLayout)
}

// PeriodBounds returns the [start, end) instants of a period key in UTC.
func PeriodBounds(periodKey string) (start, end time.Time, err error) {
	start, err = time.ParseInLocation(periodKeyLayout, periodKey, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse period key %q: %w", periodKey, err)
	}
	return start, start.AddDate(0, 1, 0), nil
}

// Advance moves t forward by one billing cycle.
//
// Months are added on the calendar, and when the target month is shorter
// than t's day the result is clamped to the target month's last day:
// Jan 31 + 1 month = Feb 28 (Feb 29 in leap years), Feb 29 + 1 year = Feb 28.
// time.AddDate would normalise those dates into the following month instead.
func Advance(t time.Time, cycle BillingCycle) time.Time {
	switch cycle {
	case BillingCycleYearly:
		return addMonthsClamped(t, 12)
	default:
		return addMonthsClamped(t, 1)
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	// Day 1 never overflows, so this lands in the intended month.
	target := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(target.Year(), target.Month(), t.Location()); day > last {
		day = last
	}

	return time.Date(target.Year(), target.Month(), day, hour, min, sec, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

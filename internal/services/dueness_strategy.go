// Package services runs the scheduled parts of the ledger: recurring
// expenses and periodic spreadsheet export.
//
// Dueness uses one strategy per repetition type. All comparisons are made on
// calendar days in UTC, so the time of day a worker happens to run does not
// matter.
package services

import (
	"fmt"
	"time"

	"billbook/internal/core"
)

// DuenessChecker decides whether a template with the given anchor day and
// last run is due today. A zero last means the template never ran, which is
// always due once the template is active.
type DuenessChecker interface {
	IsDue(last, today, anchor core.Date) bool
}

type DailyChecker struct{}

func (DailyChecker) IsDue(last, today, _ core.Date) bool {
	return last.IsZero() || last.Before(today.Time)
}

// WeeklyChecker fires seven days after the last run.
type WeeklyChecker struct{}

func (WeeklyChecker) IsDue(last, today, _ core.Date) bool {
	return last.IsZero() || daysBetween(last, today) >= 7
}

// MonthlyChecker fires once per month on the anchor day, clamped to the last
// day of shorter months.
type MonthlyChecker struct{}

func (MonthlyChecker) IsDue(last, today, anchor core.Date) bool {
	if last.IsZero() {
		return true
	}
	if last.Year() == today.Year() && last.Month() == today.Month() {
		return false
	}
	return today.Day() >= clampDay(today.Year(), today.Month(), anchor.Day())
}

// YearlyChecker fires once per year on the anchor's month and day.
type YearlyChecker struct{}

func (YearlyChecker) IsDue(last, today, anchor core.Date) bool {
	if last.IsZero() {
		return true
	}
	if last.Year() == today.Year() {
		return false
	}
	if today.Month() != anchor.Month() {
		return today.Month() > anchor.Month()
	}
	return today.Day() >= clampDay(today.Year(), today.Month(), anchor.Day())
}

var duenessStrategies = map[core.RepetitionTypes]DuenessChecker{
	core.Daily:   DailyChecker{},
	core.Weekly:  WeeklyChecker{},
	core.Monthly: MonthlyChecker{},
	core.Yearly:  YearlyChecker{},
}

// GetDuenessChecker returns the checker for a repetition type.
func GetDuenessChecker(frequency core.RepetitionTypes) (DuenessChecker, error) {
	checker, ok := duenessStrategies[frequency]
	if !ok {
		return nil, fmt.Errorf("unknown repetition type: %s", frequency)
	}
	return checker, nil
}

// RegisterDuenessChecker adds or replaces the checker for a repetition type.
func RegisterDuenessChecker(frequency core.RepetitionTypes, checker DuenessChecker) {
	duenessStrategies[frequency] = checker
}

// IsDue reports whether the template should produce an expense on the day of
// now. Templates outside their start/end window are never due.
func IsDue(re core.RecurringExpense, now time.Time) (bool, error) {
	checker, err := GetDuenessChecker(re.Every)
	if err != nil {
		return false, err
	}
	today := core.DateOf(now.UTC())
	if !re.ActiveOn(today) {
		return false, nil
	}
	var last core.Date
	if !re.LastExecution.IsZero() {
		last = core.DateOf(re.LastExecution.UTC())
	}
	return checker.IsDue(last, today, re.StartDate), nil
}

func daysBetween(from, to core.Date) int {
	return int(to.Sub(from.Time).Hours() / 24)
}

func clampDay(year, month, day int) int {
	last := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		return last
	}
	return day
}

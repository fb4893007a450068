// Package timefield reconciles the start, stop and hours fields of a time entry.
//
// Any two of the three fields determine the third. When all three are
// supplied they are checked against each other instead of being overwritten.
package timefield

import (
	"fmt"

	"github.com/shopspring/decimal"

	"billbook/internal/core"
)

// Field names one of the three reconciled inputs.
type Field string

const (
	FieldNone  Field = ""
	FieldStart Field = "startTime"
	FieldStop  Field = "stopTime"
	FieldHours Field = "hours"
)

// Epsilon is the largest hours difference still treated as consistent.
var Epsilon = decimal.RequireFromString("0.01")

var (
	sixty    = decimal.NewFromInt(60)
	maxHours = decimal.NewFromInt(24)
)

// Input is the raw state of the three fields after an edit. Derive names the
// field to recompute from the other two; when empty, the absent field is
// derived, or all three are cross-checked if none is absent. Overnight marks
// the entry as crossing midnight, which permits stop <= start.
type Input struct {
	Start     *core.ClockTime  `json:"startTime,omitempty"`
	Stop      *core.ClockTime  `json:"stopTime,omitempty"`
	Hours     *decimal.Decimal `json:"hours,omitempty"`
	Derive    Field            `json:"derive,omitempty"`
	Overnight bool             `json:"overnight,omitempty"`
}

// Result is the updated field set. Inconsistent results keep the caller's
// values untouched and carry a message explaining the mismatch. Overnight is
// set when a full triple only agrees across midnight.
type Result struct {
	Start      *core.ClockTime  `json:"startTime,omitempty"`
	Stop       *core.ClockTime  `json:"stopTime,omitempty"`
	Hours      *decimal.Decimal `json:"hours,omitempty"`
	Derived    Field            `json:"derived,omitempty"`
	Overnight  bool             `json:"overnight,omitempty"`
	Consistent bool             `json:"consistent"`
	Message    string           `json:"message,omitempty"`
}

// Reconcile derives the missing field or validates the supplied triple.
// Every returned error is a *core.ValidationError.
func Reconcile(in Input) (Result, error) {
	res := Result{Start: in.Start, Stop: in.Stop, Hours: in.Hours, Consistent: true}

	if in.Hours != nil {
		if err := validateHours(*in.Hours); err != nil {
			return res, err
		}
	}

	target := in.Derive
	if target == FieldNone {
		switch {
		case in.Start != nil && in.Stop != nil && in.Hours != nil:
			return check(in, res)
		case in.Start != nil && in.Stop != nil:
			target = FieldHours
		case in.Start != nil && in.Hours != nil:
			target = FieldStop
		case in.Stop != nil && in.Hours != nil:
			target = FieldStart
		default:
			// Fewer than two fields: nothing to derive yet.
			return res, nil
		}
	}

	switch target {
	case FieldHours:
		if in.Start == nil || in.Stop == nil {
			return res, nil
		}
		h, err := HoursBetween(*in.Start, *in.Stop, in.Overnight)
		if err != nil {
			res.Consistent = false
			return res, err
		}
		res.Hours = &h
	case FieldStop:
		if in.Start == nil || in.Hours == nil {
			return res, nil
		}
		stop := core.ClockFromMinutes(in.Start.Minutes() + minutesOf(*in.Hours))
		res.Stop = &stop
	case FieldStart:
		if in.Stop == nil || in.Hours == nil {
			return res, nil
		}
		start := core.ClockFromMinutes(in.Stop.Minutes() - minutesOf(*in.Hours))
		res.Start = &start
	default:
		return res, core.NewValidationError("derive", "unknown field %q", string(target))
	}
	res.Derived = target
	return res, nil
}

// HoursBetween returns stop-start in hours, rounded half-up to two decimals.
// Without overnight, stop must be strictly after start. With overnight, a
// stop at or before start wraps forward 24h, so equal times span a full day.
func HoursBetween(start, stop core.ClockTime, overnight bool) (decimal.Decimal, error) {
	diff := stop.Minutes() - start.Minutes()
	if diff <= 0 {
		if !overnight {
			if diff == 0 {
				return decimal.Zero, core.NewValidationError(string(FieldStop),
					"end time %s equals start time; mark the entry overnight for a 24h span", stop)
			}
			return decimal.Zero, core.NewValidationError(string(FieldStop),
				"end time %s is before start time %s", stop, start)
		}
		diff += core.MinutesPerDay
	}
	return decimal.NewFromInt(int64(diff)).Div(sixty).Round(2), nil
}

// ApplyToEntry reconciles a time entry in place. A zero Hours value is
// treated as absent so that start+stop entries get their hours derived.
func ApplyToEntry(te *core.TimeEntry) error {
	in := Input{Start: te.StartTime, Stop: te.StopTime, Overnight: te.Overnight}
	if !te.Hours.IsZero() {
		h := te.Hours
		in.Hours = &h
	}
	res, err := Reconcile(in)
	if err != nil {
		return err
	}
	te.StartTime, te.StopTime = res.Start, res.Stop
	te.Overnight = te.Overnight || res.Overnight
	if res.Hours != nil {
		te.Hours = *res.Hours
	}
	return nil
}

// check validates a full triple. Without the overnight flag a stop at or
// before start is still accepted when hours matches the wrapped span.
func check(in Input, res Result) (Result, error) {
	diff := in.Stop.Minutes() - in.Start.Minutes()
	if diff <= 0 {
		diff += core.MinutesPerDay
		res.Overnight = true
	}
	computed := decimal.NewFromInt(int64(diff)).Div(sixty).Round(2)
	if computed.Sub(*in.Hours).Abs().GreaterThan(Epsilon) {
		res.Consistent = false
		res.Overnight = false
		res.Message = fmt.Sprintf("%s to %s is %s hours, but %s hours were entered",
			in.Start, in.Stop, computed.StringFixed(2), in.Hours.String())
		return res, &core.ValidationError{Field: string(FieldHours), Message: res.Message}
	}
	return res, nil
}

func validateHours(h decimal.Decimal) error {
	if !h.IsPositive() || h.GreaterThan(maxHours) {
		return core.NewValidationError(string(FieldHours), "hours must be greater than 0 and at most 24, got %s", h)
	}
	if minutesOf(h) == 0 {
		return core.NewValidationError(string(FieldHours), "hours must be at least one minute, got %s", h)
	}
	return nil
}

func minutesOf(h decimal.Decimal) int {
	return int(h.Mul(sixty).Round(0).IntPart())
}

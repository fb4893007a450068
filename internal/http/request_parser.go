package http

import (
	"net/url"
	"strconv"
	"strings"

	"billbook/internal/core"
	"billbook/internal/report"
)

// ParseFilter reads projectId, clientId, startDate and endDate from a query
// string. Dates are YYYY-MM-DD and both bounds are inclusive; a start after
// the end is a validation error.
func ParseFilter(query url.Values) (report.Filter, error) {
	f := report.Filter{
		ProjectID: sanitizeInput(query.Get("projectId")),
		ClientID:  sanitizeInput(query.Get("clientId")),
	}

	var err error
	if f.StartDate, err = parseDateParam(query, "startDate"); err != nil {
		return report.Filter{}, err
	}
	if f.EndDate, err = parseDateParam(query, "endDate"); err != nil {
		return report.Filter{}, err
	}
	if !f.StartDate.IsZero() && !f.EndDate.IsZero() && f.EndDate.Before(f.StartDate.Time) {
		return report.Filter{}, core.NewValidationError("endDate", "end date %s is before start date %s", f.EndDate, f.StartDate)
	}
	return f, nil
}

func parseDateParam(query url.Values, name string) (core.Date, error) {
	v := strings.TrimSpace(query.Get(name))
	if v == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, core.NewValidationError(name, "invalid date %q, expected YYYY-MM-DD", v)
	}
	return d, nil
}

// ParseCurrencyParam reads an optional currency code such as convertTo.
func ParseCurrencyParam(query url.Values, name string) (core.Currency, error) {
	c := core.NormalizeCurrency(query.Get(name))
	if c == "" {
		return "", nil
	}
	if err := c.Validate(); err != nil {
		return "", core.NewValidationError(name, "invalid currency %q", query.Get(name))
	}
	return c, nil
}

// ParseBoolParam accepts the strconv.ParseBool spellings; absent is false.
func ParseBoolParam(query url.Values, name string) (bool, error) {
	v := strings.TrimSpace(query.Get(name))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, core.NewValidationError(name, "invalid boolean %q", v)
	}
	return b, nil
}

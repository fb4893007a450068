package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MinutesPerDay is the length of the clock face in minutes.
const MinutesPerDay = 24 * 60

// ClockTime is a wall-clock time of day, stored as minutes after midnight.
type ClockTime int

// ParseClock parses "HH:MM" (or "H:MM") in 24-hour form.
func ParseClock(s string) (ClockTime, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(mm) != 2 || len(hh) == 0 || len(hh) > 2 {
		return 0, &ValidationError{Field: "time", Message: fmt.Sprintf("invalid time %q: expected HH:MM", s)}
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, &ValidationError{Field: "time", Message: fmt.Sprintf("invalid hour in %q", s)}
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, &ValidationError{Field: "time", Message: fmt.Sprintf("invalid minute in %q", s)}
	}
	return ClockTime(h*60 + m), nil
}

// ClockFromMinutes wraps any minute offset onto the 24h clock face.
func ClockFromMinutes(minutes int) ClockTime {
	m := minutes % MinutesPerDay
	if m < 0 {
		m += MinutesPerDay
	}
	return ClockTime(m)
}

// Minutes returns minutes after midnight.
func (c ClockTime) Minutes() int {
	return int(c)
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("time must be an HH:MM string")
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

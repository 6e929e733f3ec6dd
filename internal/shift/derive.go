// Package shift derives the timestamp fields of a waybill from a shift
// start time. All derivation is pure: given the same start time, reference
// instant and location, the output is identical.
package shift

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Fixed offsets from the start of the shift. The medical and technical
// checks happen before departure; the shift itself lasts nine hours.
const (
	MedicalCheckOffset   = 5 * time.Minute
	TechnicalCheckOffset = 15 * time.Minute
	DepartureOffset      = 21 * time.Minute
	ShiftDuration        = 9 * time.Hour
)

const (
	timeLayout = "15:04"
	dateLayout = "02.01.2006"
)

// FieldValues maps a semantic field key to its string value. It is built
// once per fill operation and not modified afterwards.
type FieldValues map[string]string

// FormatError reports malformed user input, such as a time string that is
// not HH:MM or an odometer reading that is not a plain number. It is
// recoverable: the caller should re-prompt.
type FormatError struct {
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid input %q: %s", e.Input, e.Reason)
}

// ParseStartTime validates a shift start time and returns its hour and
// minute. Accepted input is HH:MM with hours 0-23 and minutes 0-59;
// single-digit components are allowed and zero-padded by Derive.
func ParseStartTime(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, &FormatError{Input: s, Reason: "expected HH:MM"}
	}
	hour, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, &FormatError{Input: s, Reason: "hours are not a number"}
	}
	minute, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, &FormatError{Input: s, Reason: "minutes are not a number"}
	}
	if hour < 0 || hour > 23 {
		return 0, 0, &FormatError{Input: s, Reason: "hours out of range"}
	}
	if minute < 0 || minute > 59 {
		return 0, 0, &FormatError{Input: s, Reason: "minutes out of range"}
	}
	return hour, minute, nil
}

// ValidateOdometer checks that an odometer reading is a non-empty string
// of digits.
func ValidateOdometer(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return &FormatError{Input: s, Reason: "odometer reading is empty"}
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return &FormatError{Input: s, Reason: "odometer reading must be digits only"}
		}
	}
	return nil
}

// Derive computes the full set of timestamp fields for a shift starting at
// startTime on the calendar date of now. The location of now determines the
// date arithmetic, so a +9h shift that crosses midnight rolls the end date
// over to the next day.
//
// The returned keys are: start_date, start_time, med_time, med_date,
// tech_time, tech_date, departure_time, departure_date, end_time, end_date.
func Derive(startTime string, now time.Time) (FieldValues, error) {
	hour, minute, err := ParseStartTime(startTime)
	if err != nil {
		return nil, err
	}

	anchor := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())

	med := anchor.Add(MedicalCheckOffset)
	tech := anchor.Add(TechnicalCheckOffset)
	departure := anchor.Add(DepartureOffset)
	end := anchor.Add(ShiftDuration)

	return FieldValues{
		"start_date":     anchor.Format(dateLayout),
		"start_time":     anchor.Format(timeLayout),
		"med_time":       med.Format(timeLayout),
		"med_date":       med.Format(dateLayout),
		"tech_time":      tech.Format(timeLayout),
		"tech_date":      tech.Format(dateLayout),
		"departure_time": departure.Format(timeLayout),
		"departure_date": departure.Format(dateLayout),
		"end_time":       end.Format(timeLayout),
		"end_date":       end.Format(dateLayout),
	}, nil
}

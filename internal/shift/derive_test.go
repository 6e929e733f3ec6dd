package shift

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow(t *testing.T) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)
	return time.Date(2024, time.March, 15, 12, 30, 45, 0, loc)
}

func TestDerive_FieldSet(t *testing.T) {
	values, err := Derive("08:00", fixedNow(t))
	require.NoError(t, err)

	expected := map[string]string{
		"start_date":     "15.03.2024",
		"start_time":     "08:00",
		"med_time":       "08:05",
		"med_date":       "15.03.2024",
		"tech_time":      "08:15",
		"tech_date":      "15.03.2024",
		"departure_time": "08:21",
		"departure_date": "15.03.2024",
		"end_time":       "17:00",
		"end_date":       "15.03.2024",
	}
	assert.Len(t, values, 10)
	for key, want := range expected {
		assert.Equal(t, want, values[key], "field %s", key)
	}
}

func TestDerive_ZeroPadding(t *testing.T) {
	values, err := Derive("8:5", fixedNow(t))
	require.NoError(t, err)

	assert.Equal(t, "08:05", values["start_time"])
	assert.Equal(t, "08:10", values["med_time"])
}

func TestDerive_MidnightRollover(t *testing.T) {
	values, err := Derive("20:00", fixedNow(t))
	require.NoError(t, err)

	assert.Equal(t, "05:00", values["end_time"])
	assert.Equal(t, "16.03.2024", values["end_date"])
	// Pre-departure checks stay on the start date.
	assert.Equal(t, "15.03.2024", values["departure_date"])
}

func TestDerive_BoundaryWrap(t *testing.T) {
	values, err := Derive("23:59", fixedNow(t))
	require.NoError(t, err)

	assert.Equal(t, "00:04", values["med_time"])
	assert.Equal(t, "16.03.2024", values["med_date"])
	assert.Equal(t, "00:14", values["tech_time"])
	assert.Equal(t, "00:20", values["departure_time"])
	assert.Equal(t, "16.03.2024", values["departure_date"])
	assert.Equal(t, "08:59", values["end_time"])
	assert.Equal(t, "16.03.2024", values["end_date"])
}

func TestDerive_Deterministic(t *testing.T) {
	now := fixedNow(t)
	first, err := Derive("13:21", now)
	require.NoError(t, err)
	second, err := Derive("13:21", now)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestParseStartTime_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"out_of_range_both", "25:61"},
		{"out_of_range_hours", "24:00"},
		{"out_of_range_minutes", "12:60"},
		{"negative", "-1:30"},
		{"no_separator", "0800"},
		{"too_many_parts", "08:00:00"},
		{"not_numeric", "ab:cd"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseStartTime(tt.input)
			require.Error(t, err)
			var fe *FormatError
			assert.ErrorAs(t, err, &fe)
		})
	}
}

func TestParseStartTime_Valid(t *testing.T) {
	hour, minute, err := ParseStartTime(" 13:21 ")
	require.NoError(t, err)
	assert.Equal(t, 13, hour)
	assert.Equal(t, 21, minute)
}

func TestValidateOdometer(t *testing.T) {
	assert.NoError(t, ValidateOdometer("54321"))
	assert.NoError(t, ValidateOdometer(" 0 "))

	for _, bad := range []string{"", "12a", "12.5", "-42", "12 345"} {
		err := ValidateOdometer(bad)
		require.Error(t, err, "input %q", bad)
		var fe *FormatError
		assert.ErrorAs(t, err, &fe)
	}
}

func TestNewSerialNumber(t *testing.T) {
	pattern := regexp.MustCompile(`^\d{6} - \d{7}$`)
	for i := 0; i < 100; i++ {
		serial := NewSerialNumber()
		assert.Regexp(t, pattern, serial)
	}
}

package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	DateLayout      = "2006-01-02"
	DefaultTimezone = "America/New_York"

	defaultShowHour   = 19
	defaultShowMinute = 0
)

var ErrInvalidClock = errors.New("invalid clock time")

// stateTimezones maps US state codes to the IANA zone of most of their venues.
var stateTimezones = map[string]string{
	// Eastern
	"CT": "America/New_York", "DC": "America/New_York", "DE": "America/New_York",
	"FL": "America/New_York", "GA": "America/New_York", "ME": "America/New_York",
	"MD": "America/New_York", "MA": "America/New_York", "NC": "America/New_York",
	"NH": "America/New_York", "NJ": "America/New_York", "NY": "America/New_York",
	"OH": "America/New_York", "PA": "America/New_York", "RI": "America/New_York",
	"SC": "America/New_York", "VT": "America/New_York", "VA": "America/New_York",
	"WV": "America/New_York", "KY": "America/New_York",
	"MI": "America/Detroit",

	// Central
	"AR": "America/Chicago", "IA": "America/Chicago", "IL": "America/Chicago",
	"KS": "America/Chicago", "LA": "America/Chicago", "MN": "America/Chicago",
	"MO": "America/Chicago", "MS": "America/Chicago", "OK": "America/Chicago",
	"TN": "America/Chicago", "TX": "America/Chicago", "WI": "America/Chicago",

	// Mountain
	"AZ": "America/Phoenix",
	"CO": "America/Denver", "MT": "America/Denver", "NM": "America/Denver",
	"UT": "America/Denver", "WY": "America/Denver",
	"ID": "America/Boise",

	// Pacific
	"CA": "America/Los_Angeles", "NV": "America/Los_Angeles",
	"OR": "America/Los_Angeles", "WA": "America/Los_Angeles",
}

// The clock must stand alone: "123:45" and "7:305" do not match.
var clockPattern = regexp.MustCompile(`(?i)(?:^|[^\d:])(\d{1,2}):(\d{2})(?:\s*(AM|PM)\b|[^\d:]|$)`)

// InferTimezone returns the IANA zone for a "City, ST" venue location.
func InferTimezone(cityState string) string {
	parts := strings.Split(cityState, ",")
	code := strings.ToUpper(strings.TrimSpace(parts[len(parts)-1]))
	if tz, ok := stateTimezones[code]; ok {
		return tz
	}
	return DefaultTimezone
}

func InferLocation(cityState string) (*time.Location, error) {
	return time.LoadLocation(InferTimezone(cityState))
}

// ParseClock reads "H:MM", "HH:MM" or "H:MM AM/PM" into a 24h hour and minute.
func ParseClock(raw string) (int, int, error) {
	m := clockPattern.FindStringSubmatch(raw)
	if m == nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
	}

	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
	}

	switch strings.ToUpper(m[3]) {
	case "PM":
		if hour < 1 || hour > 12 {
			return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
		}
		if hour < 12 {
			hour += 12
		}
	case "AM":
		if hour < 1 || hour > 12 {
			return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
		}
		if hour == 12 {
			hour = 0
		}
	default:
		if hour > 23 {
			return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
		}
	}
	return hour, minute, nil
}

// ShowStart is the local start instant of a show. A missing or unreadable set time means 7:00 PM.
func ShowStart(showDate string, setTime *string, cityState string) (time.Time, error) {
	loc, err := InferLocation(cityState)
	if err != nil {
		return time.Time{}, err
	}

	day, err := time.ParseInLocation(DateLayout, showDate, loc)
	if err != nil {
		return time.Time{}, err
	}

	hour, minute := defaultShowHour, defaultShowMinute
	if setTime != nil && strings.TrimSpace(*setTime) != "" {
		if h, m, err := ParseClock(*setTime); err == nil {
			hour, minute = h, m
		}
	}

	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc), nil
}

// UTCMidnight is the fallback instant for a show date. Unparseable dates give the zero time.
func UTCMidnight(showDate string) time.Time {
	t, err := time.Parse(DateLayout, strings.TrimSpace(showDate))
	if err != nil {
		return time.Time{}
	}
	return t
}

func DateOf(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

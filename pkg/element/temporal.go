package element

import (
	"fmt"
	"strings"
	"time"
)

// Precision is the finest unit a temporal literal was written with.
type Precision uint8

// Temporal precisions.
const (
	PrecisionYear Precision = iota + 1
	PrecisionMonth
	PrecisionDay
	PrecisionSecond
)

// ZoneUTC is the designator of literals written with a trailing Z.
const ZoneUTC = "Z"

const (
	layoutYear   = "2006"
	layoutMonth  = "2006-01"
	layoutDay    = "2006-01-02"
	layoutSecond = "2006-01-02T15:04:05"
	layoutClock  = "15:04:05"
	layoutOffset = "-07:00"
	layoutZone   = "Z07:00"
)

// Temporal is a date, dateTime, instant or time value.
//
// Zone is the designator the literal carried ("Z" or "+hh:mm"), or the name of
// the default location when the literal had none. Time-of-day values have no
// zone. A date-time in a named zone prints with the offset in effect at its
// instant.
type Temporal struct {
	Time      time.Time
	Precision Precision
	Digits    int
	Zone      string
}

// ParseTemporal parses the lexical form of a temporal primitive. Literals
// without an offset are placed in loc; a nil loc means UTC.
func ParseTemporal(typeCode, s string, loc *time.Location) (Temporal, error) {
	if loc == nil {
		loc = time.UTC
	}
	switch typeCode {
	case "time":
		return parseClock(s)
	case "date":
		if strings.Contains(s, "T") {
			return Temporal{}, fmt.Errorf("date %q must not have a time part", s)
		}
	case "instant":
		if !strings.Contains(s, "T") {
			return Temporal{}, fmt.Errorf("instant %q requires a time part", s)
		}
	}

	datePart, clockPart, hasClock := strings.Cut(s, "T")
	if !hasClock {
		return parseDate(datePart, loc)
	}
	if len(datePart) != len(layoutDay) {
		return Temporal{}, fmt.Errorf("invalid date in %q", s)
	}

	clock, zone := splitZone(clockPart)
	clock, frac, err := splitFraction(clock)
	if err != nil {
		return Temporal{}, fmt.Errorf("invalid time in %q: %w", s, err)
	}
	if len(clock) != len(layoutClock) {
		return Temporal{}, fmt.Errorf("invalid time in %q", s)
	}

	var t time.Time
	if zone == "" {
		t, err = time.ParseInLocation(layoutSecond, datePart+"T"+clock, loc)
		if err == nil && t.Format(layoutSecond) != datePart+"T"+clock {
			err = fmt.Errorf("wall clock time does not exist in %s", loc)
		}
		zone = loc.String()
	} else {
		t, err = parseWithZone(datePart+"T"+clock, zone)
	}
	if err != nil {
		return Temporal{}, fmt.Errorf("invalid dateTime %q: %w", s, err)
	}
	return Temporal{
		Time:      t.Add(fractionDuration(frac)),
		Precision: PrecisionSecond,
		Digits:    len(frac),
		Zone:      zone,
	}, nil
}

func parseDate(s string, loc *time.Location) (Temporal, error) {
	var (
		layout    string
		precision Precision
	)
	switch len(s) {
	case len(layoutYear):
		layout, precision = layoutYear, PrecisionYear
	case len(layoutMonth):
		layout, precision = layoutMonth, PrecisionMonth
	case len(layoutDay):
		layout, precision = layoutDay, PrecisionDay
	default:
		return Temporal{}, fmt.Errorf("invalid date %q", s)
	}
	t, err := time.ParseInLocation(layout, s, loc)
	if err != nil {
		return Temporal{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Temporal{Time: t, Precision: precision, Zone: loc.String()}, nil
}

func parseClock(s string) (Temporal, error) {
	clock, frac, err := splitFraction(s)
	if err != nil {
		return Temporal{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	if len(clock) != len(layoutClock) {
		return Temporal{}, fmt.Errorf("invalid time %q", s)
	}
	t, err := time.Parse(layoutClock, clock)
	if err != nil {
		return Temporal{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return Temporal{Time: t.Add(fractionDuration(frac)), Precision: PrecisionSecond, Digits: len(frac)}, nil
}

// splitZone separates a trailing Z or ±hh:mm designator from a clock.
func splitZone(clock string) (string, string) {
	if strings.HasSuffix(clock, ZoneUTC) {
		return clock[:len(clock)-1], ZoneUTC
	}
	if i := strings.LastIndexAny(clock, "+-"); i >= 0 {
		return clock[:i], clock[i:]
	}
	return clock, ""
}

func splitFraction(clock string) (string, string, error) {
	whole, frac, ok := strings.Cut(clock, ".")
	if !ok {
		return clock, "", nil
	}
	if frac == "" || len(frac) > 9 {
		return "", "", fmt.Errorf("fraction must have 1 to 9 digits")
	}
	for _, r := range frac {
		if r < '0' || r > '9' {
			return "", "", fmt.Errorf("fraction %q is not numeric", frac)
		}
	}
	return whole, frac, nil
}

func parseWithZone(s, zone string) (time.Time, error) {
	if zone == ZoneUTC {
		return time.Parse(layoutSecond, s)
	}
	if len(zone) != len(layoutOffset) {
		return time.Time{}, fmt.Errorf("invalid offset %q", zone)
	}
	return time.Parse(layoutSecond+layoutOffset, s+zone)
}

func fractionDuration(frac string) time.Duration {
	var ns int64
	for i := 0; i < 9; i++ {
		ns *= 10
		if i < len(frac) {
			ns += int64(frac[i] - '0')
		}
	}
	return time.Duration(ns)
}

// String returns the literal form of the value. Explicit designators are
// printed as written. A date-time in a named zone gets the offset of that zone
// at its instant, so the printed literal names the same instant whatever
// default the reader uses.
func (t Temporal) String() string {
	switch t.Precision {
	case PrecisionYear:
		return t.Time.Format(layoutYear)
	case PrecisionMonth:
		return t.Time.Format(layoutMonth)
	case PrecisionDay:
		return t.Time.Format(layoutDay)
	}

	var b strings.Builder
	if t.Zone == "" {
		b.WriteString(t.Time.Format(layoutClock))
	} else {
		b.WriteString(t.Time.Format(layoutSecond))
	}
	if t.Digits > 0 {
		b.WriteString(fmt.Sprintf(".%09d", t.Time.Nanosecond())[:t.Digits+1])
	}
	switch {
	case t.Zone == "":
	case isDesignator(t.Zone):
		b.WriteString(t.Zone)
	default:
		b.WriteString(t.Time.Format(layoutZone))
	}
	return b.String()
}

func isDesignator(zone string) bool {
	return zone == ZoneUTC || strings.HasPrefix(zone, "+") || strings.HasPrefix(zone, "-")
}

// Equal reports whether both values denote the same instant with the same
// precision and fractional digits. Zones must match when both were written
// as designators; a named zone matches any designator of the same instant.
func (t Temporal) Equal(o Temporal) bool {
	if !t.Time.Equal(o.Time) || t.Precision != o.Precision || t.Digits != o.Digits {
		return false
	}
	if isDesignator(t.Zone) && isDesignator(o.Zone) {
		return t.Zone == o.Zone
	}
	return (t.Zone == "") == (o.Zone == "")
}

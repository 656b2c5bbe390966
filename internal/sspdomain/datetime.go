package sspdomain

import (
	"time"

	"sspbackend/internal/sspshared/apperr"
)

// dateTimeLayout is the fixed RFC3339 layout ssp-backend uses on the wire
// and in storage: seconds precision, a numeric (never "Z") offset, so
// every serialized value is exactly magic.DateTimeWireLen bytes.
const dateTimeLayout = "2006-01-02T15:04:05-07:00"

// DateTime is a second-precision UTC timestamp. It is always stored and
// compared in its canonical UTC form; String always emits the numeric
// "+00:00" offset rather than "Z" so every instance is exactly 25
// bytes, matching the stable, fixed-width wire form the store and CBOR
// encoder depend on.
type DateTime struct {
	t time.Time
}

// NewDateTime truncates t to the second and normalizes it to UTC.
func NewDateTime(t time.Time) (DateTime, error) {
	u := t.UTC().Truncate(time.Second)
	if u.Year() > 9999 {
		return DateTime{}, apperr.New(apperr.KindValidationError, "DateTime year exceeds 9999")
	}

	return DateTime{t: u}, nil
}

// Now returns the current time as a DateTime.
func Now() DateTime {
	dt, _ := NewDateTime(time.Now())
	return dt
}

// Time returns the underlying time.Time, in UTC.
func (d DateTime) Time() time.Time {
	return d.t
}

// String renders the fixed 25-byte RFC3339 form with a numeric offset.
func (d DateTime) String() string {
	return d.t.Format(dateTimeLayout)
}

// ParseDateTime parses the fixed wire form produced by String.
func ParseDateTime(s string) (DateTime, error) {
	if len(s) != 25 {
		return DateTime{}, apperr.New(apperr.KindValidationError, "DateTime must be exactly 25 bytes")
	}

	t, err := time.Parse(dateTimeLayout, s)
	if err != nil {
		return DateTime{}, apperr.Wrap(apperr.KindValidationError, "DateTime is not valid RFC3339", err)
	}

	return NewDateTime(t)
}

// Before reports whether d is strictly before other.
func (d DateTime) Before(other DateTime) bool {
	return d.t.Before(other.t)
}

// Equal reports whether d and other denote the same second.
func (d DateTime) Equal(other DateTime) bool {
	return d.t.Equal(other.t)
}

// IsZero reports whether d is the zero value.
func (d DateTime) IsZero() bool {
	return d.t.IsZero()
}

// UnixSeconds returns the number of seconds since the Unix epoch.
func (d DateTime) UnixSeconds() int64 {
	return d.t.Unix()
}

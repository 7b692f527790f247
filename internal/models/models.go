package models

import (
	"fmt"
	"time"
)

// Account is an authenticated principal of the API. The password and refresh
// token are stored as digests only and never serialised in responses.
type Account struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"-"`
	AvatarURL        string    `json:"avatarUrl,omitempty"`
	RefreshTokenHash string    `json:"-"`
	Confirmed        bool      `json:"confirmed"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Contact is a single address-book entry owned by an account.
type Contact struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Birthday  Date      `json:"birthday"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

const dateLayout = "2006-01-02"

// Date represents a calendar date without a time component. JSON encoding uses
// the ISO-8601 form YYYY-MM-DD.
type Date struct {
	t time.Time
}

// NewDate constructs a Date from its components.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a time.Time to its calendar date in UTC.
func DateOf(t time.Time) Date {
	year, month, day := t.UTC().Date()
	return NewDate(year, month, day)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(value string) (Date, error) {
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", value, err)
	}
	return DateOf(parsed), nil
}

// Time returns the date at midnight UTC.
func (d Date) Time() time.Time {
	return d.t
}

// IsZero reports whether the date is the zero value.
func (d Date) IsZero() bool {
	return d.t.IsZero()
}

// Equal reports whether two dates name the same calendar day.
func (d Date) Equal(other Date) bool {
	return d.t.Equal(other.t)
}

// String implements fmt.Stringer.
func (d Date) String() string {
	return d.t.Format(dateLayout)
}

// NextOccurrence returns the next anniversary of the date on or after the
// provided instant. A February 29 anniversary falls on February 28 in
// non-leap years.
func (d Date) NextOccurrence(from time.Time) time.Time {
	year, _, _ := from.UTC().Date()
	start := time.Date(from.UTC().Year(), from.UTC().Month(), from.UTC().Day(), 0, 0, 0, 0, time.UTC)
	occurrence := d.anniversaryIn(year)
	if occurrence.Before(start) {
		occurrence = d.anniversaryIn(year + 1)
	}
	return occurrence
}

func (d Date) anniversaryIn(year int) time.Time {
	_, month, day := d.t.Date()
	if month == time.February && day == 29 && !isLeapYear(year) {
		day = 28
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// MarshalJSON encodes the date as a quoted YYYY-MM-DD string.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON decodes a quoted YYYY-MM-DD string.
func (d *Date) UnmarshalJSON(data []byte) error {
	raw := string(data)
	if raw == "null" {
		*d = Date{}
		return nil
	}
	if len(raw) < 2 || raw[0] != '"' || raw[len(raw)-1] != '"' {
		return fmt.Errorf("invalid date %s", raw)
	}
	parsed, err := ParseDate(raw[1 : len(raw)-1])
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

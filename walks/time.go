package walks

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// DATE - Calendar day a walk happens on (no time of day, always UTC)
// =============================================================================

const dateLayout = "2006-01-02"

type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), t.Month(), t.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, ErrInvalidInput)
	}
	return Date{t: t}, nil
}

func (d Date) Time() time.Time { return d.t }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) IsZero() bool { return d.t.IsZero() }
func (d Date) Before(other Date) bool { return d.t.Before(other.t) }
func (d Date) After(other Date) bool { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool { return d.t.Equal(other.t) }
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) String() string { return d.t.Format(dateLayout) }

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// TIME SLOT - One of the two fixed daily booking windows
// =============================================================================

type TimeSlot string

const (
	SlotAM TimeSlot = "AM"
	SlotPM TimeSlot = "PM"
)

// AllSlots lists the slots in the order they happen during the day.
var AllSlots = []TimeSlot{SlotAM, SlotPM}

func ParseTimeSlot(s string) (TimeSlot, error) {
	switch TimeSlot(strings.ToUpper(strings.TrimSpace(s))) {
	case SlotAM:
		return SlotAM, nil
	case SlotPM:
		return SlotPM, nil
	}
	return "", fmt.Errorf("invalid time slot %q (use AM or PM): %w", s, ErrInvalidInput)
}

func (s TimeSlot) Valid() bool { return s == SlotAM || s == SlotPM }

// =============================================================================
// SLOT KEY - The aggregate that bookings and sessions are serialized on
// =============================================================================

// SlotKey identifies one walker's slot on one day. Every Walk sharing a
// SlotKey belongs to the same (possibly group) session.
type SlotKey struct {
	WalkerID WalkerID
	Date     Date
	Slot     TimeSlot
}

func (k SlotKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.WalkerID, k.Date, k.Slot)
}

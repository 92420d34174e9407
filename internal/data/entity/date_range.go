package entity

import (
	"time"

	"hotel-booking/pkg/apperror"
)

const DateLayout = "2006-01-02"

// MaxStayNights bounds a single reservation.
const MaxStayNights = 30

// DateRange is a half-open stay [CheckIn, CheckOut) of UTC calendar dates.
// The check-out day itself is not occupied.
type DateRange struct {
	CheckIn  time.Time
	CheckOut time.Time
}

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, apperror.Validation("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

func NewDateRange(checkIn, checkOut time.Time) (DateRange, error) {
	r := DateRange{CheckIn: DateOf(checkIn), CheckOut: DateOf(checkOut)}
	if !r.CheckIn.Before(r.CheckOut) {
		return DateRange{}, apperror.Validation("check-in date must be before check-out date")
	}
	if r.Nights() > MaxStayNights {
		return DateRange{}, apperror.Validation("a stay may not exceed %d nights", MaxStayNights)
	}
	return r, nil
}

func (r DateRange) Nights() int {
	return int(r.CheckOut.Sub(r.CheckIn).Hours() / 24)
}

// Overlaps reports whether two stays share at least one night.
func (r DateRange) Overlaps(other DateRange) bool {
	return r.CheckIn.Before(other.CheckOut) && other.CheckIn.Before(r.CheckOut)
}

func (r DateRange) String() string {
	return r.CheckIn.Format(DateLayout) + "/" + r.CheckOut.Format(DateLayout)
}

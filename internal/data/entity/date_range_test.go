package entity

import (
	"testing"
	"time"

	"hotel-booking/pkg/apperror"
)

func rng(in, out int) DateRange {
	return DateRange{CheckIn: day(in), CheckOut: day(out)}
}

func TestOverlaps(t *testing.T) {
	cases := []struct {
		name string
		a, b DateRange
		want bool
	}{
		{"identical", rng(1, 3), rng(1, 3), true},
		{"contained", rng(1, 5), rng(2, 3), true},
		{"partial", rng(1, 3), rng(2, 4), true},
		{"back to back", rng(1, 3), rng(3, 5), false},
		{"disjoint", rng(1, 2), rng(4, 5), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.Overlaps(tc.b); got != tc.want {
				t.Fatalf("a.Overlaps(b) = %v, want %v", got, tc.want)
			}
			if got := tc.b.Overlaps(tc.a); got != tc.want {
				t.Fatalf("b.Overlaps(a) = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNewDateRangeNormalizesToDates(t *testing.T) {
	in := time.Date(2026, 11, 1, 23, 59, 0, 0, time.UTC)
	out := time.Date(2026, 11, 4, 0, 1, 0, 0, time.UTC)

	r, err := NewDateRange(in, out)
	if err != nil {
		t.Fatal(err)
	}
	if r.Nights() != 3 {
		t.Fatalf("nights = %d, want 3", r.Nights())
	}
	if r.String() != "2026-11-01/2026-11-04" {
		t.Fatalf("range = %s", r)
	}
}

func TestNewDateRangeStayLength(t *testing.T) {
	in := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)

	if _, err := NewDateRange(in, in.AddDate(0, 0, MaxStayNights)); err != nil {
		t.Fatalf("longest allowed stay rejected: %v", err)
	}
	if _, err := NewDateRange(in, in.AddDate(0, 0, MaxStayNights+1)); !apperror.Is(err, apperror.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := NewDateRange(in, time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)); !apperror.Is(err, apperror.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-12-24")
	if err != nil {
		t.Fatal(err)
	}
	if d.Location() != time.UTC || d.Day() != 24 {
		t.Fatalf("unexpected date %v", d)
	}
	if _, err := ParseDate("24/12/2026"); err == nil {
		t.Fatal("expected error for wrong layout")
	}
}

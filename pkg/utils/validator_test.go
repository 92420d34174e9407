package utils

import (
	"strings"
	"testing"
)

type sampleRequest struct {
	HotelID string `json:"hotel_id" validate:"required,uuid4"`
	CheckIn string `json:"check_in" validate:"required,datetime=2006-01-02"`
	Adults  int    `json:"adults" validate:"min=1,max=10"`
}

func TestValidateStruct(t *testing.T) {
	errs := ValidateStruct(sampleRequest{HotelID: "nope", CheckIn: "18/10/2026", Adults: 0})

	if len(errs) != 3 {
		t.Fatalf("expected 3 field errors, got %d: %v", len(errs), errs)
	}
	if errs["HotelID"] != "Must be a valid UUID" {
		t.Fatalf("unexpected HotelID message %q", errs["HotelID"])
	}
	if !strings.Contains(errs["CheckIn"], "2006-01-02") {
		t.Fatalf("unexpected CheckIn message %q", errs["CheckIn"])
	}
	if errs["Adults"] != "Minimum is 1" {
		t.Fatalf("unexpected Adults message %q", errs["Adults"])
	}
}

func TestValidateStructValid(t *testing.T) {
	req := sampleRequest{
		HotelID: "6f1c2a5e-8a43-4d3e-9a55-3b1f0d6c2e11",
		CheckIn: "2026-10-23",
		Adults:  2,
	}
	if errs := ValidateStruct(req); errs != nil {
		t.Fatalf("expected no errors, got %v", errs)
	}
}

func TestParseNonNegativeInt(t *testing.T) {
	if got := ParseNonNegativeInt("0", 3); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if got := ParseNonNegativeInt("-1", 3); got != 3 {
		t.Fatalf("expected default 3, got %d", got)
	}
	if got := ParseInt("0", 1); got != 1 {
		t.Fatalf("expected default 1, got %d", got)
	}
}

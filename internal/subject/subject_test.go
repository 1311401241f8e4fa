package subject_test

import (
	"strings"
	"testing"

	"veriflow/internal/subject"
)

func validRecord() subject.Record {
	return subject.Record{
		FirstName:        "James",
		LastName:         "Carter",
		BirthDate:        "1952-03-14",
		Email:            "james.carter@example.com",
		OrganizationID:   4073,
		OrganizationName: "Navy",
		DischargeDate:    "2025-02-01",
		StatusCode:       "VETERAN",
	}.Normalize()
}

func TestValidateAcceptsCompleteRecord(t *testing.T) {
	if problems := validRecord().Validate(); len(problems) != 0 {
		t.Fatalf("expected no problems, got %v", problems)
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	rec := subject.Record{
		FirstName: "",
		LastName:  "",
		BirthDate: "03/14/1952",
		Email:     "not-an-email",
	}
	problems := rec.Validate()
	if len(problems) < 4 {
		t.Fatalf("expected at least 4 problems, got %d: %v", len(problems), problems)
	}
}

func TestValidateRejectsFutureBirthDate(t *testing.T) {
	rec := validRecord()
	rec.BirthDate = "2999-01-01"
	problems := rec.Validate()
	found := false
	for _, p := range problems {
		if strings.Contains(p, "future") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected future birth date problem, got %v", problems)
	}
}

func TestNormalizeTitleCasesNames(t *testing.T) {
	rec := subject.Record{FirstName: "  james ", LastName: "o'neill", BirthDate: "1980-01-01", Email: "j@example.com", StatusCode: "veteran"}
	norm := rec.Normalize()
	if norm.FirstName != "James" {
		t.Fatalf("expected James, got %q", norm.FirstName)
	}
	if norm.StatusCode != "VETERAN" {
		t.Fatalf("expected VETERAN, got %q", norm.StatusCode)
	}
	if norm.Country != "US" || norm.Locale != "en-US" {
		t.Fatalf("expected defaulted country/locale, got %q/%q", norm.Country, norm.Locale)
	}
}

func TestRequireFields(t *testing.T) {
	rec := validRecord()
	missing := rec.RequireFields([]string{"firstName", "dischargeDate", "phoneNumber"})
	if len(missing) != 1 || missing[0] != "phoneNumber" {
		t.Fatalf("expected only phoneNumber missing, got %v", missing)
	}
}

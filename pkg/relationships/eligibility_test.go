package relationships

import (
	"testing"
	"time"

	"github.com/opalhealth/backend/pkg/common/models"
)

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func TestAgeOn(t *testing.T) {
	dob := date(2010, 6, 15)

	cases := []struct {
		name      string
		reference time.Time
		want      int
	}{
		{"day before birthday", date(2024, 6, 14), 13},
		{"on birthday", date(2024, 6, 15), 14},
		{"day after birthday", date(2024, 6, 16), 14},
		{"earlier month", date(2024, 2, 1), 13},
		{"later month", date(2024, 11, 1), 14},
	}
	for _, tc := range cases {
		if got := AgeOn(dob, tc.reference); got != tc.want {
			t.Errorf("%s: AgeOn = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestEligibleTypesForAge(t *testing.T) {
	fourteen := 14
	types := []models.RelationshipType{
		{Name: "Self", StartAge: 14, RoleType: models.RoleTypeSelf},
		{Name: "Parent or Guardian", StartAge: 0, EndAge: &fourteen, RoleType: models.RoleTypeParentGuardian},
		{Name: "Mandatary", StartAge: 0, RoleType: models.RoleTypeMandatary},
	}

	names := func(result []models.RelationshipType) []string {
		out := make([]string, 0, len(result))
		for _, t := range result {
			out = append(out, t.Name)
		}
		return out
	}

	got := names(EligibleTypesForAge(types, 10))
	want := []string{"Parent or Guardian", "Mandatary"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("age 10: got %v, want %v", got, want)
	}

	// At exactly the end age the window is closed.
	got = names(EligibleTypesForAge(types, 14))
	want = []string{"Self", "Mandatary"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("age 14: got %v, want %v", got, want)
	}

	// A missing end age runs to the maximum, which is itself excluded.
	if len(EligibleTypesForAge(types, 149)) != 2 {
		t.Error("age 149: expected Self and Mandatary to remain eligible")
	}
	if len(EligibleTypesForAge(types, 150)) != 0 {
		t.Error("age 150: expected no eligible types")
	}
}

func TestOutgrown(t *testing.T) {
	// A confirmed relationship with end age 14 survives the day before the
	// patient's fourteenth birthday and is outgrown on the birthday itself.
	endAge := 14
	rel := models.Relationship{
		Patient: models.Patient{DateOfBirth: date(2000, 1, 15)},
		Type:    models.RelationshipType{EndAge: &endAge, RoleType: models.RoleTypeParentGuardian},
		Status:  models.RelationshipStatusConfirmed,
	}

	if Outgrown(rel, date(2014, 1, 14)) {
		t.Error("relationship must survive the day before the birthday")
	}
	if !Outgrown(rel, date(2014, 1, 15)) {
		t.Error("relationship must be outgrown on the birthday")
	}

	openEnded := rel
	openEnded.Type = models.RelationshipType{RoleType: models.RoleTypeMandatary}
	if Outgrown(openEnded, date(2100, 1, 1)) {
		t.Error("types without an end age never outgrow")
	}
}

func TestExcludeSelf(t *testing.T) {
	types := []models.RelationshipType{
		{Name: "Self", RoleType: models.RoleTypeSelf},
		{Name: "Caregiver", RoleType: models.RoleTypeCaregiver},
	}

	if got := ExcludeSelf(types, false); len(got) != 2 {
		t.Errorf("without existing self: got %d types, want 2", len(got))
	}
	got := ExcludeSelf(types, true)
	if len(got) != 1 || got[0].RoleType != models.RoleTypeCaregiver {
		t.Errorf("with existing self: got %v", got)
	}
}

func TestEndDate(t *testing.T) {
	dob := date(2000, 1, 15)
	fourteen := 14

	end := EndDate(dob, models.RelationshipType{EndAge: &fourteen})
	if end == nil {
		t.Fatal("expected an end date")
	}
	if !end.Equal(date(2014, 1, 15)) {
		t.Errorf("end date = %v, want 2014-01-15", end)
	}

	if EndDate(dob, models.RelationshipType{RoleType: models.RoleTypeMandatary}) != nil {
		t.Error("types without an end age must not produce an end date")
	}
}

func TestDefaultStartDate(t *testing.T) {
	dob := date(2000, 1, 15)
	requestDate := date(2024, 3, 1)

	got := DefaultStartDate(requestDate, dob, models.RelationshipType{RoleType: models.RoleTypeMandatary})
	if !got.Equal(requestDate) {
		t.Errorf("mandatary start = %v, want the request date", got)
	}

	got = DefaultStartDate(requestDate, dob, models.RelationshipType{RoleType: models.RoleTypeParentGuardian})
	if !got.Equal(dob) {
		t.Errorf("parent start = %v, want the date of birth", got)
	}
}

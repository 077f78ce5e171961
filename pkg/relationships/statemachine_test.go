package relationships

import (
	"testing"

	"github.com/opalhealth/backend/pkg/common/models"
	"github.com/opalhealth/backend/pkg/common/validation"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to models.RelationshipStatus }{
		{models.RelationshipStatusPending, models.RelationshipStatusConfirmed},
		{models.RelationshipStatusPending, models.RelationshipStatusDenied},
		{models.RelationshipStatusConfirmed, models.RelationshipStatusPending},
		{models.RelationshipStatusConfirmed, models.RelationshipStatusRevoked},
		{models.RelationshipStatusDenied, models.RelationshipStatusConfirmed},
		{models.RelationshipStatusDenied, models.RelationshipStatusPending},
		{models.RelationshipStatusRevoked, models.RelationshipStatusConfirmed},
		// No-op saves keep the current status.
		{models.RelationshipStatusPending, models.RelationshipStatusPending},
		{models.RelationshipStatusExpired, models.RelationshipStatusExpired},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	forbidden := []struct{ from, to models.RelationshipStatus }{
		{models.RelationshipStatusPending, models.RelationshipStatusRevoked},
		{models.RelationshipStatusPending, models.RelationshipStatusExpired},
		{models.RelationshipStatusConfirmed, models.RelationshipStatusDenied},
		{models.RelationshipStatusRevoked, models.RelationshipStatusPending},
		{models.RelationshipStatusExpired, models.RelationshipStatusConfirmed},
		{models.RelationshipStatusExpired, models.RelationshipStatusPending},
	}
	for _, tc := range forbidden {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be rejected", tc.from, tc.to)
		}
	}
}

func TestRestrictedRoles(t *testing.T) {
	for _, role := range models.RestrictedRoleTypes() {
		if !role.Restricted() {
			t.Errorf("%s should be restricted", role)
		}
	}
	if models.RoleTypeCaregiver.Restricted() {
		t.Error("CAREGIVER is the unrestricted role")
	}
}

func TestRoleChangeAllowed(t *testing.T) {
	// The sole instance of a restricted role cannot be moved off it; that
	// would leave the mandatory role vacant and the instance deletable.
	if RoleChangeAllowed(models.RoleTypeSelf, models.RoleTypeCaregiver) {
		t.Error("re-roling the SELF instance must be rejected")
	}
	if !RoleChangeAllowed(models.RoleTypeSelf, models.RoleTypeSelf) {
		t.Error("re-saving a restricted instance with its own role must stay legal")
	}
	if !RoleChangeAllowed(models.RoleTypeCaregiver, models.RoleTypeMandatary) {
		t.Error("unrestricted instances may change role")
	}
}

func TestValidateRelationshipAggregatesViolations(t *testing.T) {
	fourteen := 14
	dob := date(2015, 5, 1)
	rel := models.Relationship{
		Patient: models.Patient{DateOfBirth: dob},
		Type: models.RelationshipType{
			RoleType: models.RoleTypeParentGuardian,
			EndAge:   &fourteen,
		},
		Status:    models.RelationshipStatusDenied,
		StartDate: date(2014, 1, 1), // before birth
		// missing end date, missing denial reason
	}

	err := ValidateRelationship(rel, GuardContext{})
	fieldErrs, ok := validation.AsFieldErrors(err)
	if !ok {
		t.Fatalf("expected field errors, got %v", err)
	}
	for _, field := range []string{"reason", "start_date", "end_date"} {
		if len(fieldErrs[field]) == 0 {
			t.Errorf("expected a violation on %q, got %v", field, fieldErrs)
		}
	}
}

func TestValidateRelationshipSelfGuards(t *testing.T) {
	rel := models.Relationship{
		Patient:   models.Patient{DateOfBirth: date(1990, 1, 1)},
		Type:      models.RelationshipType{RoleType: models.RoleTypeSelf},
		Status:    models.RelationshipStatusConfirmed,
		StartDate: date(1990, 1, 1),
	}

	err := ValidateRelationship(rel, GuardContext{
		PatientHasOtherSelf:   true,
		CaregiverHasOtherSelf: true,
		ActivePairExists:      true,
	})
	fieldErrs, ok := validation.AsFieldErrors(err)
	if !ok {
		t.Fatalf("expected field errors, got %v", err)
	}
	if len(fieldErrs[validation.NonFieldKey]) != 3 {
		t.Errorf("expected three non-field violations, got %v", fieldErrs[validation.NonFieldKey])
	}
}

func TestValidateRelationshipSelfNeverPending(t *testing.T) {
	rel := models.Relationship{
		Patient:   models.Patient{DateOfBirth: date(1990, 1, 1)},
		Type:      models.RelationshipType{RoleType: models.RoleTypeSelf},
		Status:    models.RelationshipStatusPending,
		StartDate: date(1990, 1, 1),
	}

	err := ValidateRelationship(rel, GuardContext{})
	fieldErrs, ok := validation.AsFieldErrors(err)
	if !ok {
		t.Fatalf("expected field errors, got %v", err)
	}
	if len(fieldErrs["status"]) == 0 {
		t.Errorf("expected a status violation, got %v", fieldErrs)
	}
}

func TestValidateRelationshipValid(t *testing.T) {
	fourteen := 14
	dob := date(2015, 5, 1)
	end := date(2029, 5, 1)
	rel := models.Relationship{
		Patient: models.Patient{DateOfBirth: dob},
		Type: models.RelationshipType{
			RoleType: models.RoleTypeParentGuardian,
			EndAge:   &fourteen,
		},
		Status:    models.RelationshipStatusConfirmed,
		StartDate: dob,
		EndDate:   &end,
	}

	if err := ValidateRelationship(rel, GuardContext{}); err != nil {
		t.Errorf("expected a valid relationship, got %v", err)
	}
}

func TestValidateType(t *testing.T) {
	ten := 10
	valid := models.RelationshipType{
		Name:     "Guardian-Caregiver",
		StartAge: 0,
		EndAge:   &ten,
		RoleType: models.RoleTypeGuardianCaregiver,
	}
	if err := ValidateType(valid); err != nil {
		t.Errorf("expected valid type, got %v", err)
	}

	zero := 0
	invalid := models.RelationshipType{
		StartAge: 150,
		EndAge:   &zero,
		RoleType: models.RoleType("FRIEND"),
	}
	err := ValidateType(invalid)
	fieldErrs, ok := validation.AsFieldErrors(err)
	if !ok {
		t.Fatalf("expected field errors, got %v", err)
	}
	for _, field := range []string{"name", "start_age", "end_age", "role_type"} {
		if len(fieldErrs[field]) == 0 {
			t.Errorf("expected a violation on %q, got %v", field, fieldErrs)
		}
	}

	sameAsStart := 5
	overlapping := models.RelationshipType{
		Name:     "Overlap",
		StartAge: 5,
		EndAge:   &sameAsStart,
		RoleType: models.RoleTypeCaregiver,
	}
	err = ValidateType(overlapping)
	fieldErrs, ok = validation.AsFieldErrors(err)
	if !ok {
		t.Fatalf("expected field errors, got %v", err)
	}
	if len(fieldErrs["end_age"]) == 0 {
		t.Errorf("expected end_age violation when end age equals start age, got %v", fieldErrs)
	}
}

func TestValidatePatient(t *testing.T) {
	dod := date(1980, 1, 1)
	patient := models.Patient{
		DateOfBirth: date(1990, 1, 1),
		DateOfDeath: &dod, // before birth
		RAMQ:        "ABC12345678", // three letters only
		Sex:         models.SexType("X"),
	}

	err := ValidatePatient(patient)
	fieldErrs, ok := validation.AsFieldErrors(err)
	if !ok {
		t.Fatalf("expected field errors, got %v", err)
	}
	for _, field := range []string{"first_name", "last_name", "date_of_death", "ramq", "sex"} {
		if len(fieldErrs[field]) == 0 {
			t.Errorf("expected a violation on %q, got %v", field, fieldErrs)
		}
	}

	ok1 := models.Patient{
		FirstName:   "Marge",
		LastName:    "Simpson",
		DateOfBirth: date(1990, 1, 1),
		RAMQ:        "SIMM99010199",
		Sex:         models.SexFemale,
	}
	if err := ValidatePatient(ok1); err != nil {
		t.Errorf("expected valid patient, got %v", err)
	}
}

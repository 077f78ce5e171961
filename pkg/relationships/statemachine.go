package relationships

import (
	"github.com/opalhealth/backend/pkg/common/models"
	"github.com/opalhealth/backend/pkg/common/validation"
)

// transitions maps each status to the statuses an operator may move to.
// EXPIRED is terminal; the current status itself is always allowed as a no-op.
var transitions = map[models.RelationshipStatus][]models.RelationshipStatus{
	models.RelationshipStatusPending:   {models.RelationshipStatusDenied, models.RelationshipStatusConfirmed},
	models.RelationshipStatusConfirmed: {models.RelationshipStatusPending, models.RelationshipStatusRevoked},
	models.RelationshipStatusDenied:    {models.RelationshipStatusConfirmed, models.RelationshipStatusPending},
	models.RelationshipStatusRevoked:   {models.RelationshipStatusConfirmed},
	models.RelationshipStatusExpired:   {},
}

// ValidStatuses returns the set of statuses a relationship in the current
// status may be moved to, including the current status itself.
func ValidStatuses(current models.RelationshipStatus) []models.RelationshipStatus {
	allowed, ok := transitions[current]
	if !ok {
		return []models.RelationshipStatus{current}
	}
	statuses := make([]models.RelationshipStatus, 0, len(allowed)+1)
	statuses = append(statuses, current)
	statuses = append(statuses, allowed...)
	return statuses
}

// CanTransition reports whether moving from one status to another is allowed.
func CanTransition(from, to models.RelationshipStatus) bool {
	for _, status := range ValidStatuses(from) {
		if status == to {
			return true
		}
	}
	return false
}

// GuardContext carries the uniqueness facts the storage layer knows about
// other relationships; the pure guards cannot query for them.
type GuardContext struct {
	// PatientHasOtherSelf is true when another SELF relationship exists for
	// the same patient.
	PatientHasOtherSelf bool
	// CaregiverHasOtherSelf is true when another SELF relationship exists
	// for the same caregiver.
	CaregiverHasOtherSelf bool
	// ActivePairExists is true when another PENDING or CONFIRMED
	// relationship exists between the same patient and caregiver.
	ActivePairExists bool
}

// ValidateRelationship enforces every save-time guard and aggregates all
// violations so the caller can report them at once.
func ValidateRelationship(rel models.Relationship, guards GuardContext) error {
	errs := validation.FieldErrors{}

	if rel.Reason == "" &&
		(rel.Status == models.RelationshipStatusDenied || rel.Status == models.RelationshipStatusRevoked) {
		errs.Add("reason", "reason is mandatory when status is denied or revoked")
	}

	if rel.Type.RoleType == models.RoleTypeSelf && rel.Status == models.RelationshipStatusPending {
		errs.Add("status", "a self relationship can never be pending")
	}

	if rel.EndDate != nil && !rel.StartDate.Before(*rel.EndDate) {
		errs.Add("start_date", "start date must be earlier than end date")
	}

	if !rel.Patient.DateOfBirth.IsZero() && rel.StartDate.Before(rel.Patient.DateOfBirth) {
		errs.Add("start_date", "start date cannot be earlier than the patient's date of birth")
	}

	if latest := EndDate(rel.Patient.DateOfBirth, rel.Type); latest != nil {
		if rel.EndDate == nil {
			errs.Add("end_date", "end date is required for relationship types with an end age")
		} else if rel.EndDate.After(*latest) {
			errs.Add("end_date", "end date cannot be later than the date the relationship type's end age is reached")
		}
	}

	if rel.Type.RoleType == models.RoleTypeSelf {
		if guards.PatientHasOtherSelf {
			errs.Add(validation.NonFieldKey, "the patient already has a self relationship")
		}
		if guards.CaregiverHasOtherSelf {
			errs.Add(validation.NonFieldKey, "the caregiver already has a self relationship to another patient")
		}
	}

	if guards.ActivePairExists &&
		(rel.Status == models.RelationshipStatusPending || rel.Status == models.RelationshipStatusConfirmed) {
		errs.Add(validation.NonFieldKey, "an active relationship between this patient and caregiver already exists")
	}

	return errs.OrNil()
}

// ValidateType enforces the age window bounds on a relationship type.
func ValidateType(t models.RelationshipType) error {
	errs := validation.FieldErrors{}

	if t.Name == "" {
		errs.Add("name", "name is required")
	}
	if t.StartAge < models.RelationshipMinAge || t.StartAge > models.RelationshipMaxAge-1 {
		errs.Add("start_age", "start age must be between 0 and 149")
	}
	if t.EndAge != nil {
		if *t.EndAge < models.RelationshipMinAge+1 || *t.EndAge > models.RelationshipMaxAge {
			errs.Add("end_age", "end age must be between 1 and 150")
		}
		if *t.EndAge <= t.StartAge {
			errs.Add("end_age", "end age must be greater than start age")
		}
	}
	switch t.RoleType {
	case models.RoleTypeSelf, models.RoleTypeParentGuardian, models.RoleTypeGuardianCaregiver,
		models.RoleTypeMandatary, models.RoleTypeCaregiver:
	default:
		errs.Add("role_type", "unknown role type")
	}

	return errs.OrNil()
}

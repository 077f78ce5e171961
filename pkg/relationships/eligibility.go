package relationships

import (
	"time"

	"github.com/opalhealth/backend/pkg/common/models"
)

// AgeOn computes the patient's age in whole years on the reference date.
func AgeOn(dateOfBirth, reference time.Time) int {
	age := reference.Year() - dateOfBirth.Year()
	if reference.Month() < dateOfBirth.Month() ||
		(reference.Month() == dateOfBirth.Month() && reference.Day() < dateOfBirth.Day()) {
		age--
	}
	return age
}

// EligibleTypesForAge filters types down to those whose [start_age, end_age)
// window contains age. A missing end age is treated as the maximum age.
func EligibleTypesForAge(types []models.RelationshipType, age int) []models.RelationshipType {
	eligible := make([]models.RelationshipType, 0, len(types))
	for _, t := range types {
		endAge := models.RelationshipMaxAge
		if t.EndAge != nil {
			endAge = *t.EndAge
		}
		if age >= t.StartAge && age < endAge {
			eligible = append(eligible, t)
		}
	}
	return eligible
}

// ExcludeSelf drops the SELF type from candidates when the patient already
// has a self relationship: a patient can never gain a second one.
func ExcludeSelf(types []models.RelationshipType, patientHasSelf bool) []models.RelationshipType {
	if !patientHasSelf {
		return types
	}
	filtered := make([]models.RelationshipType, 0, len(types))
	for _, t := range types {
		if t.RoleType != models.RoleTypeSelf {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// EndDate returns the date the relationship ends automatically: the day the
// patient reaches the type's end age. Types without an end age (Mandatary,
// Caregiver) never expire on their own.
func EndDate(dateOfBirth time.Time, relationshipType models.RelationshipType) *time.Time {
	if relationshipType.EndAge == nil {
		return nil
	}
	end := dateOfBirth.AddDate(*relationshipType.EndAge, 0, 0)
	return &end
}

// Outgrown reports whether the patient has reached the type's end age on the
// given date, ending the relationship. Types without an end age never
// outgrow.
func Outgrown(rel models.Relationship, today time.Time) bool {
	if rel.Type.EndAge == nil {
		return false
	}
	return AgeOn(rel.Patient.DateOfBirth, today) >= *rel.Type.EndAge
}

// DefaultStartDate returns when the relationship takes effect. Mandate
// relationships start when granted; every other role applies retroactively
// from the patient's birth.
func DefaultStartDate(requestDate, dateOfBirth time.Time, relationshipType models.RelationshipType) time.Time {
	if relationshipType.RoleType == models.RoleTypeMandatary {
		return requestDate
	}
	return dateOfBirth
}

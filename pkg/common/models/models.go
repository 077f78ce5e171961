package models

import (
	"time"

	"github.com/google/uuid"
)

// Relationship age bounds. A relationship type can never start at or after
// the maximum age, and never end at or before the minimum age.
const (
	RelationshipMinAge = 0
	RelationshipMaxAge = 150
)

// RoleType categorizes a caregiver-to-patient relationship.
type RoleType string

const (
	RoleTypeSelf              RoleType = "SELF"
	RoleTypeParentGuardian    RoleType = "PARENT_GUARDIAN"
	RoleTypeGuardianCaregiver RoleType = "GUARDIAN_CAREGIVER"
	RoleTypeMandatary         RoleType = "MANDATARY"
	RoleTypeCaregiver         RoleType = "CAREGIVER"
)

// Restricted returns true for role types that allow at most one
// relationship type instance. CAREGIVER is the only unrestricted role.
func (r RoleType) Restricted() bool {
	switch r {
	case RoleTypeSelf, RoleTypeParentGuardian, RoleTypeGuardianCaregiver, RoleTypeMandatary:
		return true
	}
	return false
}

// RestrictedRoleTypes lists the role types limited to a single predefined
// relationship type instance.
func RestrictedRoleTypes() []RoleType {
	return []RoleType{
		RoleTypeSelf,
		RoleTypeParentGuardian,
		RoleTypeGuardianCaregiver,
		RoleTypeMandatary,
	}
}

// RelationshipStatus is the lifecycle status of a relationship.
type RelationshipStatus string

const (
	RelationshipStatusPending   RelationshipStatus = "PENDING"
	RelationshipStatusConfirmed RelationshipStatus = "CONFIRMED"
	RelationshipStatusDenied    RelationshipStatus = "DENIED"
	RelationshipStatusExpired   RelationshipStatus = "EXPIRED"
	RelationshipStatusRevoked   RelationshipStatus = "REVOKED"
)

// SexType uses the raw values as they arrive from the hospital's HL7 feed.
type SexType string

const (
	SexFemale  SexType = "F"
	SexMale    SexType = "M"
	SexOther   SexType = "O"
	SexUnknown SexType = "U"
)

// DataAccessType controls how much of the patient's chart is exposed.
type DataAccessType string

const (
	DataAccessAll        DataAccessType = "ALL"
	DataAccessNeedToKnow DataAccessType = "NTK"
)

// RegistrationCodeStatus is the lifecycle status of a registration code.
type RegistrationCodeStatus string

const (
	RegistrationCodeStatusNew        RegistrationCodeStatus = "NEW"
	RegistrationCodeStatusRegistered RegistrationCodeStatus = "REGISTERED"
	RegistrationCodeStatusExpired    RegistrationCodeStatus = "EXPIRED"
	RegistrationCodeStatusBlocked    RegistrationCodeStatus = "BLOCKED"
)

// RelationshipType is a category of caregiver-to-patient relationship with
// its age eligibility window and capability flags.
type RelationshipType struct {
	ID                     uuid.UUID `json:"id"`
	Name                   string    `json:"name"`
	Description            string    `json:"description"`
	StartAge               int       `json:"start_age"`
	EndAge                 *int      `json:"end_age,omitempty"`
	FormRequired           bool      `json:"form_required"`
	CanAnswerQuestionnaire bool      `json:"can_answer_questionnaire"`
	RoleType               RoleType  `json:"role_type"`
}

// Patient is a person whose health data can be accessed.
type Patient struct {
	ID          uuid.UUID      `json:"id"`
	FirstName   string         `json:"first_name"`
	LastName    string         `json:"last_name"`
	DateOfBirth time.Time      `json:"date_of_birth"`
	DateOfDeath *time.Time     `json:"date_of_death,omitempty"`
	Sex         SexType        `json:"sex"`
	RAMQ        string         `json:"ramq,omitempty"`
	DataAccess  DataAccessType `json:"data_access"`
	LegacyID    *int           `json:"legacy_id,omitempty"`

	// Lab result delays in days; copied from the institution defaults for
	// pediatric patients when they are first registered.
	NonInterpretableLabResultDelay int `json:"non_interpretable_lab_result_delay"`
	InterpretableLabResultDelay    int `json:"interpretable_lab_result_delay"`

	CreatedAt time.Time `json:"created_at"`
}

// HospitalPatient ties a patient to a site-scoped medical record number.
type HospitalPatient struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patient_id"`
	SiteCode  string    `json:"site_code"`
	MRN       string    `json:"mrn"`
	IsActive  bool      `json:"is_active"`
}

// HospitalIdentifier is a (site, MRN) pair before it is persisted.
type HospitalIdentifier struct {
	SiteCode string `json:"site_code"`
	MRN      string `json:"mrn"`
	IsActive bool   `json:"is_active"`
}

// CaregiverUser is the account identity behind a caregiver profile.
type CaregiverUser struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Language  string `json:"language"`
	IsActive  bool   `json:"is_active"`
}

// CaregiverProfile is the account holder who may access patient data.
type CaregiverProfile struct {
	ID        uuid.UUID     `json:"id"`
	User      CaregiverUser `json:"user"`
	LegacyID  *int          `json:"legacy_id,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Relationship is an access grant between one caregiver and one patient,
// typed by role and governed by a status lifecycle.
type Relationship struct {
	ID          uuid.UUID          `json:"id"`
	Patient     Patient            `json:"patient"`
	Caregiver   CaregiverProfile   `json:"caregiver"`
	Type        RelationshipType   `json:"type"`
	Status      RelationshipStatus `json:"status"`
	Reason      string             `json:"reason,omitempty"`
	RequestDate time.Time          `json:"request_date"`
	StartDate   time.Time          `json:"start_date"`
	EndDate     *time.Time         `json:"end_date,omitempty"`
}

// RegistrationCode is a one-time token that lets a newly granted caregiver
// claim their skeleton account.
type RegistrationCode struct {
	ID             uuid.UUID              `json:"id"`
	RelationshipID uuid.UUID              `json:"relationship_id"`
	Code           string                 `json:"code"`
	Status         RegistrationCodeStatus `json:"status"`
	Attempts       int                    `json:"attempts"`
	CreatedAt      time.Time              `json:"created_at"`
}

// CreateRelationshipTypeRequest is the admin payload for a new or updated
// relationship type.
type CreateRelationshipTypeRequest struct {
	Name                   string   `json:"name"`
	Description            string   `json:"description"`
	StartAge               int      `json:"start_age"`
	EndAge                 *int     `json:"end_age,omitempty"`
	FormRequired           bool     `json:"form_required"`
	CanAnswerQuestionnaire bool     `json:"can_answer_questionnaire"`
	RoleType               RoleType `json:"role_type"`
}

// UpdateRelationshipStatusRequest moves a relationship to a new status.
type UpdateRelationshipStatusRequest struct {
	Status RelationshipStatus `json:"status"`
	Reason string             `json:"reason,omitempty"`
}

// ExternalPatientRecord is a patient found in the hospital's systems that
// has not yet been persisted locally.
type ExternalPatientRecord struct {
	FirstName   string               `json:"first_name"`
	LastName    string               `json:"last_name"`
	DateOfBirth time.Time            `json:"date_of_birth"`
	DateOfDeath *time.Time           `json:"date_of_death,omitempty"`
	Sex         SexType              `json:"sex"`
	RAMQ        string               `json:"ramq,omitempty"`
	MRNs        []HospitalIdentifier `json:"mrns"`
}

// NewCaregiverInput describes a caregiver that does not have an account yet.
type NewCaregiverInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Language  string `json:"language,omitempty"`
}

// AccessRequest is the input to the access-request orchestrator. Exactly one
// of PatientID/NewPatient must be set, and exactly one of
// CaregiverID/NewCaregiver.
type AccessRequest struct {
	PatientID  *uuid.UUID             `json:"patient_id,omitempty"`
	NewPatient *ExternalPatientRecord `json:"new_patient,omitempty"`

	CaregiverID  *uuid.UUID         `json:"caregiver_id,omitempty"`
	NewCaregiver *NewCaregiverInput `json:"new_caregiver,omitempty"`

	RelationshipTypeID uuid.UUID `json:"relationship_type_id"`
	RequestDate        time.Time `json:"request_date,omitempty"`
}

// AccessRequestResult is what the orchestrator hands back: the created
// relationship and, for brand-new caregivers only, a registration code.
type AccessRequestResult struct {
	Relationship     Relationship      `json:"relationship"`
	RegistrationCode *RegistrationCode `json:"registration_code,omitempty"`
}

// RedemptionRequest completes registration for a skeleton caregiver account.
type RedemptionRequest struct {
	Code             string `json:"code"`
	Username         string `json:"username"`
	Password         string `json:"password"`
	Phone            string `json:"phone,omitempty"`
	Language         string `json:"language,omitempty"`
	VerificationCode string `json:"verification_code,omitempty"`
}

// SyncFailure records a downstream synchronization that needs manual
// remediation. The local transaction is the source of truth; these rows are
// the audit trail for out-of-band retries.
type SyncFailure struct {
	ID        int64                  `json:"id"`
	System    string                 `json:"system"`
	PatientID uuid.UUID              `json:"patient_id"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Event is the message published to downstream consumers when patients or
// relationships are created.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

package relationships

import "errors"

var (
	// ErrTypeNotFound signals a missing relationship type, including absent
	// seed data for a restricted role.
	ErrTypeNotFound = errors.New("relationship type not found")

	// ErrDuplicateRestrictedRole is returned when saving a relationship type
	// would leave two instances sharing a restricted role.
	ErrDuplicateRestrictedRole = errors.New("a relationship type with this restricted role already exists")

	// ErrProtectedRoleDeletion is returned when deleting a relationship type
	// whose role is restricted.
	ErrProtectedRoleDeletion = errors.New("relationship types with a restricted role cannot be deleted")

	// ErrProtectedRoleChange is returned when an update would move a
	// relationship type off a restricted role, leaving the mandatory role
	// without an instance.
	ErrProtectedRoleChange = errors.New("the role of a relationship type holding a restricted role cannot be changed")

	ErrPatientNotFound      = errors.New("patient not found")
	ErrCaregiverNotFound    = errors.New("caregiver not found")
	ErrRelationshipNotFound = errors.New("relationship not found")
	ErrCodeNotFound         = errors.New("registration code not found")

	// ErrDuplicateRelationship surfaces a commit-time uniqueness collision:
	// two concurrent writers raced to create the same access grant.
	ErrDuplicateRelationship = errors.New("an equivalent relationship already exists")

	// ErrDuplicateCode is a registration code value collision; the generator
	// regenerates and retries on it.
	ErrDuplicateCode = errors.New("registration code already exists")

	// ErrDuplicateMRN surfaces a (site, MRN) pair already tied to a patient.
	ErrDuplicateMRN = errors.New("hospital identifier already registered")
)

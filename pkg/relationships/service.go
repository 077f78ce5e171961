package relationships

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/opalhealth/backend/pkg/common/logger"
	"github.com/opalhealth/backend/pkg/common/models"
	"github.com/opalhealth/backend/pkg/common/validation"
)

var ramqPattern = regexp.MustCompile(`^[A-Z]{4}[0-9]{8}$`)

// ValidatePatient enforces the patient-level invariants.
func ValidatePatient(patient models.Patient) error {
	errs := validation.FieldErrors{}

	if patient.FirstName == "" {
		errs.Add("first_name", "first name is required")
	}
	if patient.LastName == "" {
		errs.Add("last_name", "last name is required")
	}
	if patient.DateOfBirth.IsZero() {
		errs.Add("date_of_birth", "date of birth is required")
	}
	if patient.DateOfDeath != nil && patient.DateOfDeath.Before(patient.DateOfBirth) {
		errs.Add("date_of_death", "date of death cannot be earlier than date of birth")
	}
	if patient.RAMQ != "" && !ramqPattern.MatchString(patient.RAMQ) {
		errs.Add("ramq", "ramq must match four letters followed by eight digits")
	}
	switch patient.Sex {
	case models.SexFemale, models.SexMale, models.SexOther, models.SexUnknown:
	default:
		errs.Add("sex", "unknown sex value")
	}

	return errs.OrNil()
}

type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// Catalog operations

func (s *Service) CreateType(ctx context.Context, req models.CreateRelationshipTypeRequest) (models.RelationshipType, error) {
	t := models.RelationshipType{
		Name:                   req.Name,
		Description:            req.Description,
		StartAge:               req.StartAge,
		EndAge:                 req.EndAge,
		FormRequired:           req.FormRequired,
		CanAnswerQuestionnaire: req.CanAnswerQuestionnaire,
		RoleType:               req.RoleType,
	}
	if err := ValidateType(t); err != nil {
		return models.RelationshipType{}, err
	}
	if err := s.checkRestrictedRole(ctx, t.RoleType, uuid.Nil); err != nil {
		return models.RelationshipType{}, err
	}
	return s.repo.CreateType(ctx, t)
}

func (s *Service) UpdateType(ctx context.Context, id uuid.UUID, req models.CreateRelationshipTypeRequest) (models.RelationshipType, error) {
	t := models.RelationshipType{
		ID:                     id,
		Name:                   req.Name,
		Description:            req.Description,
		StartAge:               req.StartAge,
		EndAge:                 req.EndAge,
		FormRequired:           req.FormRequired,
		CanAnswerQuestionnaire: req.CanAnswerQuestionnaire,
		RoleType:               req.RoleType,
	}
	if err := ValidateType(t); err != nil {
		return models.RelationshipType{}, err
	}
	existing, err := s.repo.GetType(ctx, id)
	if err != nil {
		return models.RelationshipType{}, err
	}
	if !RoleChangeAllowed(existing.RoleType, t.RoleType) {
		return models.RelationshipType{}, ErrProtectedRoleChange
	}
	if err := s.checkRestrictedRole(ctx, t.RoleType, id); err != nil {
		return models.RelationshipType{}, err
	}
	return s.repo.UpdateType(ctx, t)
}

// RoleChangeAllowed rejects moving a relationship type off a restricted
// role. The restricted roles are mandatory singletons; re-roling the holder
// would leave the role vacant and the holder deletable.
func RoleChangeAllowed(current, next models.RoleType) bool {
	return !current.Restricted() || current == next
}

// checkRestrictedRole rejects a save that would leave two instances sharing
// a restricted role. The instance being saved is excluded so re-saving the
// holder itself stays legal.
func (s *Service) checkRestrictedRole(ctx context.Context, role models.RoleType, exclude uuid.UUID) error {
	if !role.Restricted() {
		return nil
	}
	count, err := s.repo.CountTypesByRole(ctx, role, exclude)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicateRestrictedRole
	}
	return nil
}

func (s *Service) DeleteType(ctx context.Context, id uuid.UUID) error {
	t, err := s.repo.GetType(ctx, id)
	if err != nil {
		return err
	}
	if t.RoleType.Restricted() {
		return ErrProtectedRoleDeletion
	}
	return s.repo.DeleteType(ctx, id)
}

func (s *Service) GetType(ctx context.Context, id uuid.UUID) (models.RelationshipType, error) {
	return s.repo.GetType(ctx, id)
}

func (s *Service) ListTypes(ctx context.Context) ([]models.RelationshipType, error) {
	return s.repo.ListTypes(ctx)
}

func (s *Service) SelfType(ctx context.Context) (models.RelationshipType, error) {
	return s.repo.TypeByRole(ctx, models.RoleTypeSelf)
}

func (s *Service) ParentGuardian(ctx context.Context) (models.RelationshipType, error) {
	return s.repo.TypeByRole(ctx, models.RoleTypeParentGuardian)
}

func (s *Service) GuardianCaregiver(ctx context.Context) (models.RelationshipType, error) {
	return s.repo.TypeByRole(ctx, models.RoleTypeGuardianCaregiver)
}

func (s *Service) Mandatary(ctx context.Context) (models.RelationshipType, error) {
	return s.repo.TypeByRole(ctx, models.RoleTypeMandatary)
}

// SeedDefaults installs the mandatory relationship types. Existing instances
// for a role are left untouched.
func (s *Service) SeedDefaults(ctx context.Context) error {
	fourteen := 14
	seeds := []models.RelationshipType{
		{
			Name:                   "Self",
			Description:            "The patient is the requester",
			StartAge:               14,
			FormRequired:           false,
			CanAnswerQuestionnaire: true,
			RoleType:               models.RoleTypeSelf,
		},
		{
			Name:                   "Parent or Guardian",
			Description:            "A parent or guardian of the patient",
			StartAge:               0,
			EndAge:                 &fourteen,
			FormRequired:           false,
			CanAnswerQuestionnaire: true,
			RoleType:               models.RoleTypeParentGuardian,
		},
	}
	for _, seed := range seeds {
		_, err := s.repo.TypeByRole(ctx, seed.RoleType)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrTypeNotFound) {
			return err
		}
		if _, err := s.repo.CreateType(ctx, seed); err != nil {
			return fmt.Errorf("seed relationship type %s: %w", seed.Name, err)
		}
		logger.Log.WithField("role_type", seed.RoleType).Info("Seeded relationship type")
	}
	return nil
}

// Eligibility

// ValidTypesForPatient returns the relationship types a new relationship for
// this patient may use today: age-eligible types, minus SELF when the
// patient already has a self relationship.
func (s *Service) ValidTypesForPatient(ctx context.Context, patientID uuid.UUID, today time.Time) ([]models.RelationshipType, error) {
	patient, err := s.repo.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	types, err := s.repo.ListTypes(ctx)
	if err != nil {
		return nil, err
	}
	hasSelf, err := s.repo.PatientHasSelf(ctx, patientID, uuid.Nil)
	if err != nil {
		return nil, err
	}
	eligible := EligibleTypesForAge(types, AgeOn(patient.DateOfBirth, today))
	return ExcludeSelf(eligible, hasSelf), nil
}

// FindCaregiver resolves an existing caregiver account by the email and
// phone pair entered in the access-request form.
func (s *Service) FindCaregiver(ctx context.Context, email, phone string) (models.CaregiverProfile, error) {
	errs := validation.FieldErrors{}
	if email == "" {
		errs.Add("email", "email is required")
	}
	if phone == "" {
		errs.Add("phone", "phone is required")
	}
	if err := errs.OrNil(); err != nil {
		return models.CaregiverProfile{}, err
	}
	return s.repo.FindCaregiverByEmailPhone(ctx, email, phone)
}

// Relationship lifecycle

func (s *Service) GetRelationship(ctx context.Context, id uuid.UUID) (models.Relationship, error) {
	return s.repo.GetRelationship(ctx, id)
}

func (s *Service) ListRelationships(ctx context.Context, filter RelationshipFilter) ([]models.Relationship, error) {
	return s.repo.ListRelationships(ctx, filter)
}

// UpdateStatus moves a relationship through the lifecycle, enforcing the
// transition table and every save-time guard.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, req models.UpdateRelationshipStatusRequest) (models.Relationship, error) {
	rel, err := s.repo.GetRelationship(ctx, id)
	if err != nil {
		return models.Relationship{}, err
	}

	if !CanTransition(rel.Status, req.Status) {
		return models.Relationship{}, validation.FieldErrors{
			"status": {fmt.Sprintf("cannot move a %s relationship to %s", rel.Status, req.Status)},
		}
	}

	rel.Status = req.Status
	rel.Reason = req.Reason

	guards, err := s.guardContext(ctx, rel)
	if err != nil {
		return models.Relationship{}, err
	}
	if err := ValidateRelationship(rel, guards); err != nil {
		return models.Relationship{}, err
	}

	if err := s.repo.UpdateRelationshipStatus(ctx, id, req.Status, req.Reason); err != nil {
		return models.Relationship{}, err
	}
	return s.repo.GetRelationship(ctx, id)
}

func (s *Service) guardContext(ctx context.Context, rel models.Relationship) (GuardContext, error) {
	guards := GuardContext{}

	if rel.Type.RoleType == models.RoleTypeSelf {
		patientHasSelf, err := s.repo.PatientHasSelf(ctx, rel.Patient.ID, rel.ID)
		if err != nil {
			return guards, err
		}
		caregiverHasSelf, err := s.repo.CaregiverHasSelf(ctx, rel.Caregiver.ID, rel.ID)
		if err != nil {
			return guards, err
		}
		guards.PatientHasOtherSelf = patientHasSelf
		guards.CaregiverHasOtherSelf = caregiverHasSelf
	}

	if rel.Status == models.RelationshipStatusPending || rel.Status == models.RelationshipStatusConfirmed {
		activePair, err := s.repo.ActivePairExists(ctx, rel.Patient.ID, rel.Caregiver.ID, rel.ID)
		if err != nil {
			return guards, err
		}
		guards.ActivePairExists = activePair
	}

	return guards, nil
}

// ExpireOutgrown is the scheduled sweep: every CONFIRMED relationship whose
// patient has reached the type's end age moves to EXPIRED. This is the only
// transition not driven by an operator.
func (s *Service) ExpireOutgrown(ctx context.Context, today time.Time) (int, error) {
	candidates, err := s.repo.ListExpiryCandidates(ctx)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, rel := range candidates {
		if !Outgrown(rel, today) {
			continue
		}
		if err := s.repo.UpdateRelationshipStatus(ctx, rel.ID, models.RelationshipStatusExpired, rel.Reason); err != nil {
			logger.Log.WithError(err).WithField("relationship_id", rel.ID).Error("Failed to expire relationship")
			continue
		}
		logger.Log.WithFields(map[string]interface{}{
			"relationship_id": rel.ID,
			"patient_id":      rel.Patient.ID,
			"type":            rel.Type.Name,
		}).Info("Relationship expired")
		expired++
	}
	return expired, nil
}

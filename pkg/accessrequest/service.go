package accessrequest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opalhealth/backend/pkg/common/logger"
	"github.com/opalhealth/backend/pkg/common/models"
	"github.com/opalhealth/backend/pkg/common/validation"
	"github.com/opalhealth/backend/pkg/institution"
	"github.com/opalhealth/backend/pkg/registration"
	"github.com/opalhealth/backend/pkg/relationships"
)

// ErrCaregiverNotMirrored signals a caller contract violation: a self
// relationship for an existing caregiver requires the caregiver to already
// be mirrored into the legacy system. This is a defect in calling code, not
// a user-input problem.
var ErrCaregiverNotMirrored = errors.New("caregiver has no legacy id; mirror the caregiver before granting a self relationship")

const legacyUserTypePatient = "Patient"

// codeGenerationAttempts bounds the regenerate-and-retry loop on code
// value collisions.
const codeGenerationAttempts = 5

// LegacyInitializer mirrors new patients and caregiver type changes into
// the legacy hospital database.
type LegacyInitializer interface {
	InitializeNewPatient(ctx context.Context, patient models.Patient, mrns []models.HospitalPatient, selfCaregiver *models.CaregiverProfile) (int, error)
	UpdateUserType(ctx context.Context, caregiverLegacyID int, userType string) error
}

// PatientNotifier tells one hospital integration system about a new patient.
type PatientNotifier interface {
	Name() string
	NotifyNewPatient(ctx context.Context, mrns []models.HospitalPatient, patientID uuid.UUID) error
}

// ConsentSeeder creates databank consent placeholders for a new patient.
type ConsentSeeder interface {
	CreateDatabankConsent(ctx context.Context, patient models.Patient) (bool, error)
}

// EventPublisher announces created patients and relationships to downstream
// consumers.
type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType string, data map[string]interface{}) error
}

// Service is the access-request orchestrator. All collaborators are
// injected; any of legacy, consent, and events may be nil when the
// corresponding integration is not configured.
type Service struct {
	store     Store
	settings  institution.Settings
	legacy    LegacyInitializer
	notifiers []PatientNotifier
	consent   ConsentSeeder
	events    EventPublisher
}

func NewService(
	store Store,
	settings institution.Settings,
	legacy LegacyInitializer,
	notifiers []PatientNotifier,
	consent ConsentSeeder,
	events EventPublisher,
) *Service {
	return &Service{
		store:     store,
		settings:  settings,
		legacy:    legacy,
		notifiers: notifiers,
		consent:   consent,
		events:    events,
	}
}

type requestOutcome struct {
	result        models.AccessRequestResult
	newPatient    bool
	selfCaregiver *models.CaregiverProfile
	upgradeLegacy *int
}

// CreateAccessRequest runs the multi-step access grant as one atomic
// transaction: resolve or create the patient and caregiver, create the
// relationship, and issue a registration code for brand-new caregivers.
// Synchronization with downstream systems happens after commit and never
// fails the request.
func (s *Service) CreateAccessRequest(ctx context.Context, req models.AccessRequest) (models.AccessRequestResult, error) {
	if err := validateShape(req); err != nil {
		return models.AccessRequestResult{}, err
	}

	requestDate := req.RequestDate
	if requestDate.IsZero() {
		requestDate = time.Now().UTC()
	}

	var outcome requestOutcome
	err := s.store.InTransaction(ctx, func(tx Store) error {
		var err error
		outcome, err = s.createInTx(ctx, tx, req, requestDate)
		return err
	})
	if err != nil {
		return models.AccessRequestResult{}, err
	}

	s.synchronize(ctx, outcome)

	return outcome.result, nil
}

func (s *Service) createInTx(ctx context.Context, tx Store, req models.AccessRequest, requestDate time.Time) (requestOutcome, error) {
	outcome := requestOutcome{}

	relType, err := tx.GetType(ctx, req.RelationshipTypeID)
	if err != nil {
		return outcome, err
	}

	// Self relationships are auto-confirmed; everything else waits for an
	// operator decision.
	status := models.RelationshipStatusPending
	if relType.RoleType == models.RoleTypeSelf {
		status = models.RelationshipStatusConfirmed
	}

	patient, newPatient, err := s.resolvePatient(ctx, tx, req, requestDate)
	if err != nil {
		return outcome, err
	}
	outcome.newPatient = newPatient

	caregiver, issueCode, err := s.resolveCaregiver(ctx, tx, req, relType, &outcome)
	if err != nil {
		return outcome, err
	}
	if relType.RoleType == models.RoleTypeSelf {
		c := caregiver
		outcome.selfCaregiver = &c
	}

	rel := models.Relationship{
		Patient:     patient,
		Caregiver:   caregiver,
		Type:        relType,
		Status:      status,
		RequestDate: requestDate,
		StartDate:   relationships.DefaultStartDate(requestDate, patient.DateOfBirth, relType),
		EndDate:     relationships.EndDate(patient.DateOfBirth, relType),
	}

	guards, err := s.guardContext(ctx, tx, rel)
	if err != nil {
		return outcome, err
	}
	if err := relationships.ValidateRelationship(rel, guards); err != nil {
		return outcome, err
	}

	created, err := tx.CreateRelationship(ctx, rel)
	if err != nil {
		return outcome, err
	}
	outcome.result.Relationship = created

	if issueCode {
		code, err := s.issueCode(ctx, tx, created.ID)
		if err != nil {
			return outcome, err
		}
		outcome.result.RegistrationCode = &code
	}

	return outcome, nil
}

func (s *Service) resolvePatient(ctx context.Context, tx Store, req models.AccessRequest, requestDate time.Time) (models.Patient, bool, error) {
	if req.PatientID != nil {
		patient, err := tx.GetPatient(ctx, *req.PatientID)
		return patient, false, err
	}

	ext := req.NewPatient
	patient := models.Patient{
		ID:          uuid.New(),
		FirstName:   ext.FirstName,
		LastName:    ext.LastName,
		DateOfBirth: ext.DateOfBirth,
		DateOfDeath: ext.DateOfDeath,
		Sex:         ext.Sex,
		RAMQ:        ext.RAMQ,
		DataAccess:  models.DataAccessAll,
	}

	// Pediatric patients inherit the institution's default lab result
	// delays so results are held until a clinician can review them.
	if relationships.AgeOn(ext.DateOfBirth, requestDate) < s.settings.AdulthoodAge {
		patient.NonInterpretableLabResultDelay = s.settings.NonInterpretableLabResultDelay
		patient.InterpretableLabResultDelay = s.settings.InterpretableLabResultDelay
	}

	if err := relationships.ValidatePatient(patient); err != nil {
		return models.Patient{}, false, err
	}

	created, err := tx.CreatePatient(ctx, patient)
	if err != nil {
		return models.Patient{}, false, err
	}
	if _, err := tx.AddHospitalPatients(ctx, created.ID, ext.MRNs); err != nil {
		return models.Patient{}, false, err
	}
	return created, true, nil
}

func (s *Service) resolveCaregiver(ctx context.Context, tx Store, req models.AccessRequest, relType models.RelationshipType, outcome *requestOutcome) (models.CaregiverProfile, bool, error) {
	if req.CaregiverID != nil {
		caregiver, err := tx.GetCaregiver(ctx, *req.CaregiverID)
		if err != nil {
			return models.CaregiverProfile{}, false, err
		}
		if relType.RoleType == models.RoleTypeSelf {
			if caregiver.LegacyID == nil {
				return models.CaregiverProfile{}, false, ErrCaregiverNotMirrored
			}
			outcome.upgradeLegacy = caregiver.LegacyID
		}
		return caregiver, false, nil
	}

	nc := req.NewCaregiver
	errs := validation.FieldErrors{}
	if nc.FirstName == "" {
		errs.Add("first_name", "caregiver first name is required")
	}
	if nc.LastName == "" {
		errs.Add("last_name", "caregiver last name is required")
	}
	if !errs.Empty() {
		return models.CaregiverProfile{}, false, errs
	}

	language := nc.Language
	if language == "" {
		language = "en"
	}

	// Skeleton account: inactive and without credentials until the
	// registration code is redeemed.
	caregiver, err := tx.CreateCaregiver(ctx, relationships.CreateCaregiverInput{
		Profile: models.CaregiverProfile{
			User: models.CaregiverUser{
				Username:  "pending-" + uuid.NewString(),
				FirstName: nc.FirstName,
				LastName:  nc.LastName,
				Email:     nc.Email,
				Phone:     nc.Phone,
				Language:  language,
				IsActive:  false,
			},
		},
	})
	if err != nil {
		return models.CaregiverProfile{}, false, err
	}
	return caregiver, true, nil
}

func (s *Service) guardContext(ctx context.Context, tx Store, rel models.Relationship) (relationships.GuardContext, error) {
	guards := relationships.GuardContext{}

	if rel.Type.RoleType == models.RoleTypeSelf {
		patientHasSelf, err := tx.PatientHasSelf(ctx, rel.Patient.ID, uuid.Nil)
		if err != nil {
			return guards, err
		}
		caregiverHasSelf, err := tx.CaregiverHasSelf(ctx, rel.Caregiver.ID, uuid.Nil)
		if err != nil {
			return guards, err
		}
		guards.PatientHasOtherSelf = patientHasSelf
		guards.CaregiverHasOtherSelf = caregiverHasSelf
	}

	activePair, err := tx.ActivePairExists(ctx, rel.Patient.ID, rel.Caregiver.ID, uuid.Nil)
	if err != nil {
		return guards, err
	}
	guards.ActivePairExists = activePair

	return guards, nil
}

func (s *Service) issueCode(ctx context.Context, tx Store, relationshipID uuid.UUID) (models.RegistrationCode, error) {
	for attempt := 0; attempt < codeGenerationAttempts; attempt++ {
		value, err := registration.GenerateCode(s.settings.Code)
		if err != nil {
			return models.RegistrationCode{}, err
		}
		code, err := tx.CreateRegistrationCode(ctx, relationshipID, value)
		if errors.Is(err, relationships.ErrDuplicateCode) {
			continue
		}
		if err != nil {
			return models.RegistrationCode{}, err
		}
		return code, nil
	}
	return models.RegistrationCode{}, fmt.Errorf("could not generate a unique registration code after %d attempts", codeGenerationAttempts)
}

// synchronize pushes the committed access request to downstream systems.
// The local store is the source of truth: every failure here is logged and
// recorded for manual remediation, never raised.
func (s *Service) synchronize(ctx context.Context, outcome requestOutcome) {
	rel := outcome.result.Relationship
	patient := rel.Patient

	if outcome.upgradeLegacy != nil && s.legacy != nil {
		if err := s.legacy.UpdateUserType(ctx, *outcome.upgradeLegacy, legacyUserTypePatient); err != nil {
			s.recordFailure(ctx, "legacy", patient.ID, map[string]interface{}{
				"operation":           "update_user_type",
				"caregiver_legacy_id": *outcome.upgradeLegacy,
				"error":               err.Error(),
			})
		}
	}

	if outcome.newPatient {
		mrns, err := s.store.PatientMRNs(ctx, patient.ID)
		if err != nil {
			logger.Log.WithError(err).WithField("patient_id", patient.ID).Error("Failed to load MRNs for synchronization")
			return
		}

		if s.legacy != nil {
			legacyID, err := s.legacy.InitializeNewPatient(ctx, patient, mrns, outcome.selfCaregiver)
			if err != nil {
				s.recordFailure(ctx, "legacy", patient.ID, map[string]interface{}{
					"operation": "initialize_new_patient",
					"mrns":      mrnStrings(mrns),
					"error":     err.Error(),
				})
			} else if err := s.store.UpdatePatientLegacyID(ctx, patient.ID, legacyID); err != nil {
				logger.Log.WithError(err).WithField("patient_id", patient.ID).Error("Failed to record legacy id")
			}
		}

		for _, notifier := range s.notifiers {
			if err := notifier.NotifyNewPatient(ctx, mrns, patient.ID); err != nil {
				s.recordFailure(ctx, notifier.Name(), patient.ID, map[string]interface{}{
					"operation": "notify_new_patient",
					"mrns":      mrnStrings(mrns),
					"error":     err.Error(),
				})
			}
		}

		if s.consent != nil {
			seeded, err := s.consent.CreateDatabankConsent(ctx, patient)
			if err != nil || !seeded {
				logger.Log.WithField("patient_id", patient.ID).WithError(err).Warn("Databank consent seeding failed")
			}
		}

		s.publish(ctx, "patient.created", map[string]interface{}{
			"patient_id": patient.ID.String(),
			"mrns":       mrnStrings(mrns),
		})
	}

	s.publish(ctx, "relationship.created", map[string]interface{}{
		"relationship_id": rel.ID.String(),
		"patient_id":      patient.ID.String(),
		"caregiver_id":    rel.Caregiver.ID.String(),
		"type":            rel.Type.Name,
		"status":          string(rel.Status),
	})
}

func (s *Service) recordFailure(ctx context.Context, system string, patientID uuid.UUID, payload map[string]interface{}) {
	logger.Log.WithFields(map[string]interface{}{
		"system":     system,
		"patient_id": patientID,
		"payload":    payload,
	}).Error("Downstream synchronization failed")

	if err := s.store.RecordSyncFailure(ctx, models.SyncFailure{
		System:    system,
		PatientID: patientID,
		Payload:   payload,
	}); err != nil {
		logger.Log.WithError(err).Error("Failed to record sync failure")
	}
}

func (s *Service) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEvent(ctx, eventType, data); err != nil {
		logger.Log.WithError(err).WithField("event_type", eventType).Warn("Failed to publish event")
	}
}

func mrnStrings(mrns []models.HospitalPatient) []string {
	values := make([]string, 0, len(mrns))
	for _, mrn := range mrns {
		values = append(values, mrn.SiteCode+":"+mrn.MRN)
	}
	return values
}

func validateShape(req models.AccessRequest) error {
	errs := validation.FieldErrors{}

	if (req.PatientID == nil) == (req.NewPatient == nil) {
		errs.Add("patient", "exactly one of patient_id or new_patient must be provided")
	}
	if (req.CaregiverID == nil) == (req.NewCaregiver == nil) {
		errs.Add("caregiver", "exactly one of caregiver_id or new_caregiver must be provided")
	}
	if req.RelationshipTypeID == uuid.Nil {
		errs.Add("relationship_type_id", "relationship type is required")
	}

	return errs.OrNil()
}

package accessrequest

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/opalhealth/backend/pkg/common/logger"
	"github.com/opalhealth/backend/pkg/common/models"
	"github.com/opalhealth/backend/pkg/common/validation"
	"github.com/opalhealth/backend/pkg/institution"
	"github.com/opalhealth/backend/pkg/relationships"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

type fakeStore struct {
	types      map[uuid.UUID]models.RelationshipType
	patients   map[uuid.UUID]models.Patient
	caregivers map[uuid.UUID]models.CaregiverProfile
	mrns       map[uuid.UUID][]models.HospitalPatient

	createdRelationships []models.Relationship
	createdCodes         []models.RegistrationCode
	syncFailures         []models.SyncFailure
	legacyIDs            map[uuid.UUID]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		types:      map[uuid.UUID]models.RelationshipType{},
		patients:   map[uuid.UUID]models.Patient{},
		caregivers: map[uuid.UUID]models.CaregiverProfile{},
		mrns:       map[uuid.UUID][]models.HospitalPatient{},
		legacyIDs:  map[uuid.UUID]int{},
	}
}

func (f *fakeStore) InTransaction(ctx context.Context, fn func(Store) error) error {
	return fn(f)
}

func (f *fakeStore) GetType(ctx context.Context, id uuid.UUID) (models.RelationshipType, error) {
	t, ok := f.types[id]
	if !ok {
		return models.RelationshipType{}, relationships.ErrTypeNotFound
	}
	return t, nil
}

func (f *fakeStore) GetPatient(ctx context.Context, id uuid.UUID) (models.Patient, error) {
	p, ok := f.patients[id]
	if !ok {
		return models.Patient{}, relationships.ErrPatientNotFound
	}
	return p, nil
}

func (f *fakeStore) CreatePatient(ctx context.Context, patient models.Patient) (models.Patient, error) {
	f.patients[patient.ID] = patient
	return patient, nil
}

func (f *fakeStore) AddHospitalPatients(ctx context.Context, patientID uuid.UUID, identifiers []models.HospitalIdentifier) ([]models.HospitalPatient, error) {
	created := make([]models.HospitalPatient, 0, len(identifiers))
	for _, ident := range identifiers {
		created = append(created, models.HospitalPatient{
			ID:        uuid.New(),
			PatientID: patientID,
			SiteCode:  ident.SiteCode,
			MRN:       ident.MRN,
			IsActive:  ident.IsActive,
		})
	}
	f.mrns[patientID] = append(f.mrns[patientID], created...)
	return created, nil
}

func (f *fakeStore) PatientMRNs(ctx context.Context, patientID uuid.UUID) ([]models.HospitalPatient, error) {
	return f.mrns[patientID], nil
}

func (f *fakeStore) UpdatePatientLegacyID(ctx context.Context, id uuid.UUID, legacyID int) error {
	f.legacyIDs[id] = legacyID
	return nil
}

func (f *fakeStore) GetCaregiver(ctx context.Context, id uuid.UUID) (models.CaregiverProfile, error) {
	c, ok := f.caregivers[id]
	if !ok {
		return models.CaregiverProfile{}, relationships.ErrCaregiverNotFound
	}
	return c, nil
}

func (f *fakeStore) CreateCaregiver(ctx context.Context, input relationships.CreateCaregiverInput) (models.CaregiverProfile, error) {
	profile := input.Profile
	profile.ID = uuid.New()
	f.caregivers[profile.ID] = profile
	return profile, nil
}

// CreateRelationship enforces the same commit-time constraint as the
// database's partial unique index: at most one PENDING or CONFIRMED
// relationship per (patient, caregiver) pair.
func (f *fakeStore) CreateRelationship(ctx context.Context, rel models.Relationship) (models.Relationship, error) {
	if activeStatus(rel.Status) {
		for _, existing := range f.createdRelationships {
			if existing.Patient.ID == rel.Patient.ID &&
				existing.Caregiver.ID == rel.Caregiver.ID &&
				activeStatus(existing.Status) {
				return models.Relationship{}, relationships.ErrDuplicateRelationship
			}
		}
	}
	rel.ID = uuid.New()
	f.createdRelationships = append(f.createdRelationships, rel)
	return rel, nil
}

func activeStatus(status models.RelationshipStatus) bool {
	return status == models.RelationshipStatusPending || status == models.RelationshipStatusConfirmed
}

func (f *fakeStore) PatientHasSelf(ctx context.Context, patientID, exclude uuid.UUID) (bool, error) {
	return false, nil
}

func (f *fakeStore) CaregiverHasSelf(ctx context.Context, caregiverID, exclude uuid.UUID) (bool, error) {
	return false, nil
}

func (f *fakeStore) ActivePairExists(ctx context.Context, patientID, caregiverID, exclude uuid.UUID) (bool, error) {
	return false, nil
}

func (f *fakeStore) CreateRegistrationCode(ctx context.Context, relationshipID uuid.UUID, code string) (models.RegistrationCode, error) {
	created := models.RegistrationCode{
		ID:             uuid.New(),
		RelationshipID: relationshipID,
		Code:           code,
		Status:         models.RegistrationCodeStatusNew,
		CreatedAt:      time.Now().UTC(),
	}
	f.createdCodes = append(f.createdCodes, created)
	return created, nil
}

func (f *fakeStore) RecordSyncFailure(ctx context.Context, failure models.SyncFailure) error {
	f.syncFailures = append(f.syncFailures, failure)
	return nil
}

type fakeLegacy struct {
	legacyID    int
	initErr     error
	initialized int
	userTypes   map[int]string
}

func (f *fakeLegacy) InitializeNewPatient(ctx context.Context, patient models.Patient, mrns []models.HospitalPatient, selfCaregiver *models.CaregiverProfile) (int, error) {
	if f.initErr != nil {
		return 0, f.initErr
	}
	f.initialized++
	return f.legacyID, nil
}

func (f *fakeLegacy) UpdateUserType(ctx context.Context, caregiverLegacyID int, userType string) error {
	if f.userTypes == nil {
		f.userTypes = map[int]string{}
	}
	f.userTypes[caregiverLegacyID] = userType
	return nil
}

type fakeNotifier struct {
	name     string
	err      error
	notified int
}

func (f *fakeNotifier) Name() string { return f.name }

func (f *fakeNotifier) NotifyNewPatient(ctx context.Context, mrns []models.HospitalPatient, patientID uuid.UUID) error {
	if f.err != nil {
		return f.err
	}
	f.notified++
	return nil
}

type fakePublisher struct {
	events []string
}

func (f *fakePublisher) PublishEvent(ctx context.Context, eventType string, data map[string]interface{}) error {
	f.events = append(f.events, eventType)
	return nil
}

func testSettings() institution.Settings {
	return institution.Settings{
		Code:                           "OP",
		AdulthoodAge:                   18,
		NonInterpretableLabResultDelay: 5,
		InterpretableLabResultDelay:    31,
	}
}

func parentType(store *fakeStore) models.RelationshipType {
	fourteen := 14
	t := models.RelationshipType{
		ID:       uuid.New(),
		Name:     "Parent or Guardian",
		StartAge: 0,
		EndAge:   &fourteen,
		RoleType: models.RoleTypeParentGuardian,
	}
	store.types[t.ID] = t
	return t
}

func selfType(store *fakeStore) models.RelationshipType {
	t := models.RelationshipType{
		ID:       uuid.New(),
		Name:     "Self",
		StartAge: 14,
		RoleType: models.RoleTypeSelf,
	}
	store.types[t.ID] = t
	return t
}

func TestCreateAccessRequestNewPatientNewCaregiver(t *testing.T) {
	store := newFakeStore()
	relType := parentType(store)
	legacy := &fakeLegacy{legacyID: 42}
	notifier := &fakeNotifier{name: "oie"}
	publisher := &fakePublisher{}

	service := NewService(store, testSettings(), legacy, []PatientNotifier{notifier}, nil, publisher)

	result, err := service.CreateAccessRequest(context.Background(), models.AccessRequest{
		NewPatient: &models.ExternalPatientRecord{
			FirstName:   "Bart",
			LastName:    "Simpson",
			DateOfBirth: time.Date(2014, 2, 1, 0, 0, 0, 0, time.UTC),
			Sex:         models.SexMale,
			RAMQ:        "SIMB14020199",
			MRNs:        []models.HospitalIdentifier{{SiteCode: "RVH", MRN: "9999996", IsActive: true}},
		},
		NewCaregiver: &models.NewCaregiverInput{
			FirstName: "Marge",
			LastName:  "Simpson",
			Email:     "marge@example.com",
		},
		RelationshipTypeID: relType.ID,
		RequestDate:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("failed to create access request: %v", err)
	}

	rel := result.Relationship
	if rel.Status != models.RelationshipStatusPending {
		t.Errorf("status = %s, want PENDING", rel.Status)
	}
	if result.RegistrationCode == nil {
		t.Fatal("expected a registration code for a brand-new caregiver")
	}
	if !strings.HasPrefix(result.RegistrationCode.Code, "OP") {
		t.Errorf("code %q missing institution prefix", result.RegistrationCode.Code)
	}

	// A pediatric patient inherits the institution's lab delays.
	patient := store.patients[rel.Patient.ID]
	if patient.NonInterpretableLabResultDelay != 5 || patient.InterpretableLabResultDelay != 31 {
		t.Errorf("expected pediatric lab delays, got %+v", patient)
	}

	// Parent relationships run from birth to the end age.
	if !rel.StartDate.Equal(patient.DateOfBirth) {
		t.Errorf("start date = %v, want the date of birth", rel.StartDate)
	}
	if rel.EndDate == nil || !rel.EndDate.Equal(time.Date(2028, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("end date = %v, want 2028-02-01", rel.EndDate)
	}

	// The skeleton caregiver account is inactive until redemption.
	caregiver := store.caregivers[rel.Caregiver.ID]
	if caregiver.User.IsActive {
		t.Error("skeleton caregiver account must be inactive")
	}

	if legacy.initialized != 1 {
		t.Errorf("legacy initializations = %d, want 1", legacy.initialized)
	}
	if store.legacyIDs[rel.Patient.ID] != 42 {
		t.Errorf("legacy id not recorded: %v", store.legacyIDs)
	}
	if notifier.notified != 1 {
		t.Errorf("notifications = %d, want 1", notifier.notified)
	}
	if len(publisher.events) != 2 {
		t.Errorf("events = %v, want patient.created and relationship.created", publisher.events)
	}
}

func TestCreateAccessRequestExistingSelf(t *testing.T) {
	store := newFakeStore()
	relType := selfType(store)

	patient := models.Patient{
		ID:          uuid.New(),
		FirstName:   "Homer",
		LastName:    "Simpson",
		DateOfBirth: time.Date(1980, 6, 1, 0, 0, 0, 0, time.UTC),
		Sex:         models.SexMale,
	}
	store.patients[patient.ID] = patient

	legacyID := 7
	caregiver := models.CaregiverProfile{
		ID:       uuid.New(),
		User:     models.CaregiverUser{Username: "homer", IsActive: true},
		LegacyID: &legacyID,
	}
	store.caregivers[caregiver.ID] = caregiver

	legacy := &fakeLegacy{}
	publisher := &fakePublisher{}
	service := NewService(store, testSettings(), legacy, nil, nil, publisher)

	result, err := service.CreateAccessRequest(context.Background(), models.AccessRequest{
		PatientID:          &patient.ID,
		CaregiverID:        &caregiver.ID,
		RelationshipTypeID: relType.ID,
		RequestDate:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("failed to create access request: %v", err)
	}

	if result.Relationship.Status != models.RelationshipStatusConfirmed {
		t.Errorf("status = %s, want CONFIRMED", result.Relationship.Status)
	}
	if result.RegistrationCode != nil {
		t.Error("existing caregivers must not receive a registration code")
	}
	if legacy.userTypes[legacyID] != "Patient" {
		t.Errorf("legacy user type not upgraded: %v", legacy.userTypes)
	}
	// Existing patient: no patient.created event, only relationship.created.
	if len(publisher.events) != 1 || publisher.events[0] != "relationship.created" {
		t.Errorf("events = %v, want [relationship.created]", publisher.events)
	}
}

func TestCreateAccessRequestSelfRequiresMirroredCaregiver(t *testing.T) {
	store := newFakeStore()
	relType := selfType(store)

	patient := models.Patient{
		ID:          uuid.New(),
		DateOfBirth: time.Date(1980, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	store.patients[patient.ID] = patient

	caregiver := models.CaregiverProfile{
		ID:   uuid.New(),
		User: models.CaregiverUser{Username: "homer", IsActive: true},
	}
	store.caregivers[caregiver.ID] = caregiver

	service := NewService(store, testSettings(), &fakeLegacy{}, nil, nil, nil)

	_, err := service.CreateAccessRequest(context.Background(), models.AccessRequest{
		PatientID:          &patient.ID,
		CaregiverID:        &caregiver.ID,
		RelationshipTypeID: relType.ID,
	})
	if !errors.Is(err, ErrCaregiverNotMirrored) {
		t.Fatalf("expected ErrCaregiverNotMirrored, got %v", err)
	}
	if len(store.createdRelationships) != 0 {
		t.Error("no relationship must be created when the caregiver is not mirrored")
	}
}

func caregiverType(store *fakeStore) models.RelationshipType {
	t := models.RelationshipType{
		ID:       uuid.New(),
		Name:     "Caregiver",
		StartAge: 14,
		RoleType: models.RoleTypeCaregiver,
	}
	store.types[t.ID] = t
	return t
}

func TestCreateAccessRequestActivePairRace(t *testing.T) {
	// The pre-commit guards see no conflicting row for either request (the
	// fake always reports no active pair, modeling a stale read), so only
	// the storage constraint can keep the second grant out.
	store := newFakeStore()
	parent := parentType(store)
	caregiving := caregiverType(store)

	patient := models.Patient{
		ID:          uuid.New(),
		FirstName:   "Maggie",
		LastName:    "Simpson",
		DateOfBirth: time.Date(2014, 2, 1, 0, 0, 0, 0, time.UTC),
		Sex:         models.SexFemale,
	}
	store.patients[patient.ID] = patient

	caregiver := models.CaregiverProfile{
		ID:   uuid.New(),
		User: models.CaregiverUser{Username: "marge", IsActive: true},
	}
	store.caregivers[caregiver.ID] = caregiver

	service := NewService(store, testSettings(), nil, nil, nil, nil)

	first, err := service.CreateAccessRequest(context.Background(), models.AccessRequest{
		PatientID:          &patient.ID,
		CaregiverID:        &caregiver.ID,
		RelationshipTypeID: parent.ID,
		RequestDate:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("first request must succeed: %v", err)
	}
	if first.Relationship.Status != models.RelationshipStatusPending {
		t.Errorf("first status = %s, want PENDING", first.Relationship.Status)
	}

	_, err = service.CreateAccessRequest(context.Background(), models.AccessRequest{
		PatientID:          &patient.ID,
		CaregiverID:        &caregiver.ID,
		RelationshipTypeID: caregiving.ID,
		RequestDate:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, relationships.ErrDuplicateRelationship) {
		t.Fatalf("second request must hit the unique constraint, got %v", err)
	}
	if len(store.createdRelationships) != 1 {
		t.Fatalf("exactly one active relationship may exist for the pair, got %d", len(store.createdRelationships))
	}
}

func TestCreateAccessRequestShapeValidation(t *testing.T) {
	store := newFakeStore()
	service := NewService(store, testSettings(), nil, nil, nil, nil)

	patientID := uuid.New()
	_, err := service.CreateAccessRequest(context.Background(), models.AccessRequest{
		PatientID:  &patientID,
		NewPatient: &models.ExternalPatientRecord{},
	})
	fieldErrs, ok := validation.AsFieldErrors(err)
	if !ok {
		t.Fatalf("expected field errors, got %v", err)
	}
	for _, field := range []string{"patient", "caregiver", "relationship_type_id"} {
		if len(fieldErrs[field]) == 0 {
			t.Errorf("expected a violation on %q, got %v", field, fieldErrs)
		}
	}
}

func TestCreateAccessRequestSurvivesDownstreamFailures(t *testing.T) {
	store := newFakeStore()
	relType := parentType(store)

	legacy := &fakeLegacy{initErr: errors.New("legacy down")}
	notifier := &fakeNotifier{name: "oie", err: errors.New("engine down")}
	service := NewService(store, testSettings(), legacy, []PatientNotifier{notifier}, nil, nil)

	result, err := service.CreateAccessRequest(context.Background(), models.AccessRequest{
		NewPatient: &models.ExternalPatientRecord{
			FirstName:   "Lisa",
			LastName:    "Simpson",
			DateOfBirth: time.Date(2016, 5, 9, 0, 0, 0, 0, time.UTC),
			Sex:         models.SexFemale,
			MRNs:        []models.HospitalIdentifier{{SiteCode: "MGH", MRN: "1234567", IsActive: true}},
		},
		NewCaregiver: &models.NewCaregiverInput{
			FirstName: "Marge",
			LastName:  "Simpson",
		},
		RelationshipTypeID: relType.ID,
		RequestDate:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("downstream failures must not fail the request: %v", err)
	}
	if result.Relationship.ID == uuid.Nil {
		t.Error("expected a persisted relationship")
	}
	if len(store.syncFailures) != 2 {
		t.Errorf("sync failures = %d, want 2 (legacy and notifier)", len(store.syncFailures))
	}
}

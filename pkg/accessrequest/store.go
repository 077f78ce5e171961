package accessrequest

import (
	"context"

	"github.com/google/uuid"
	"github.com/opalhealth/backend/pkg/common/models"
	"github.com/opalhealth/backend/pkg/relationships"
)

// Store is the slice of persistence the orchestrator needs. InTransaction
// yields a store bound to a single database transaction; every write inside
// it commits or rolls back together.
type Store interface {
	InTransaction(ctx context.Context, fn func(Store) error) error

	GetType(ctx context.Context, id uuid.UUID) (models.RelationshipType, error)

	GetPatient(ctx context.Context, id uuid.UUID) (models.Patient, error)
	CreatePatient(ctx context.Context, patient models.Patient) (models.Patient, error)
	AddHospitalPatients(ctx context.Context, patientID uuid.UUID, identifiers []models.HospitalIdentifier) ([]models.HospitalPatient, error)
	PatientMRNs(ctx context.Context, patientID uuid.UUID) ([]models.HospitalPatient, error)
	UpdatePatientLegacyID(ctx context.Context, id uuid.UUID, legacyID int) error

	GetCaregiver(ctx context.Context, id uuid.UUID) (models.CaregiverProfile, error)
	CreateCaregiver(ctx context.Context, input relationships.CreateCaregiverInput) (models.CaregiverProfile, error)

	CreateRelationship(ctx context.Context, rel models.Relationship) (models.Relationship, error)
	PatientHasSelf(ctx context.Context, patientID, exclude uuid.UUID) (bool, error)
	CaregiverHasSelf(ctx context.Context, caregiverID, exclude uuid.UUID) (bool, error)
	ActivePairExists(ctx context.Context, patientID, caregiverID, exclude uuid.UUID) (bool, error)

	CreateRegistrationCode(ctx context.Context, relationshipID uuid.UUID, code string) (models.RegistrationCode, error)

	RecordSyncFailure(ctx context.Context, failure models.SyncFailure) error
}

type gormStore struct {
	repo *relationships.Repository
}

// NewStore adapts the relationship repository to the orchestrator's store.
func NewStore(repo *relationships.Repository) Store {
	return gormStore{repo: repo}
}

func (s gormStore) InTransaction(ctx context.Context, fn func(Store) error) error {
	return s.repo.Transaction(ctx, func(tx *relationships.Repository) error {
		return fn(gormStore{repo: tx})
	})
}

func (s gormStore) GetType(ctx context.Context, id uuid.UUID) (models.RelationshipType, error) {
	return s.repo.GetType(ctx, id)
}

func (s gormStore) GetPatient(ctx context.Context, id uuid.UUID) (models.Patient, error) {
	return s.repo.GetPatient(ctx, id)
}

func (s gormStore) CreatePatient(ctx context.Context, patient models.Patient) (models.Patient, error) {
	return s.repo.CreatePatient(ctx, patient)
}

func (s gormStore) AddHospitalPatients(ctx context.Context, patientID uuid.UUID, identifiers []models.HospitalIdentifier) ([]models.HospitalPatient, error) {
	return s.repo.AddHospitalPatients(ctx, patientID, identifiers)
}

func (s gormStore) PatientMRNs(ctx context.Context, patientID uuid.UUID) ([]models.HospitalPatient, error) {
	return s.repo.PatientMRNs(ctx, patientID)
}

func (s gormStore) UpdatePatientLegacyID(ctx context.Context, id uuid.UUID, legacyID int) error {
	return s.repo.UpdatePatientLegacyID(ctx, id, legacyID)
}

func (s gormStore) GetCaregiver(ctx context.Context, id uuid.UUID) (models.CaregiverProfile, error) {
	return s.repo.GetCaregiver(ctx, id)
}

func (s gormStore) CreateCaregiver(ctx context.Context, input relationships.CreateCaregiverInput) (models.CaregiverProfile, error) {
	return s.repo.CreateCaregiver(ctx, input)
}

func (s gormStore) CreateRelationship(ctx context.Context, rel models.Relationship) (models.Relationship, error) {
	return s.repo.CreateRelationship(ctx, rel)
}

func (s gormStore) PatientHasSelf(ctx context.Context, patientID, exclude uuid.UUID) (bool, error) {
	return s.repo.PatientHasSelf(ctx, patientID, exclude)
}

func (s gormStore) CaregiverHasSelf(ctx context.Context, caregiverID, exclude uuid.UUID) (bool, error) {
	return s.repo.CaregiverHasSelf(ctx, caregiverID, exclude)
}

func (s gormStore) ActivePairExists(ctx context.Context, patientID, caregiverID, exclude uuid.UUID) (bool, error) {
	return s.repo.ActivePairExists(ctx, patientID, caregiverID, exclude)
}

func (s gormStore) CreateRegistrationCode(ctx context.Context, relationshipID uuid.UUID, code string) (models.RegistrationCode, error) {
	return s.repo.CreateRegistrationCode(ctx, relationshipID, code)
}

func (s gormStore) RecordSyncFailure(ctx context.Context, failure models.SyncFailure) error {
	return s.repo.RecordSyncFailure(ctx, failure)
}

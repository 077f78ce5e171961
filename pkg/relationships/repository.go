package relationships

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/opalhealth/backend/pkg/common/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// Transaction runs fn inside a single database transaction. Any error rolls
// back every write.
func (r *Repository) Transaction(ctx context.Context, fn func(*Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(r.WithTx(tx))
	})
}

type relationshipTypeModel struct {
	ID                     uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name                   string    `gorm:"uniqueIndex"`
	Description            string
	StartAge               int
	EndAge                 *int
	FormRequired           bool
	CanAnswerQuestionnaire bool
	RoleType               string `gorm:"index"`
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

func (relationshipTypeModel) TableName() string { return "relationship_types" }

type patientModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	FirstName   string
	LastName    string
	DateOfBirth time.Time
	DateOfDeath *time.Time
	Sex         string
	RAMQ        *string `gorm:"column:ramq;uniqueIndex"`
	DataAccess  string
	LegacyID    *int `gorm:"uniqueIndex"`

	NonInterpretableLabResultDelay int
	InterpretableLabResultDelay    int

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (patientModel) TableName() string { return "patients" }

type hospitalPatientModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	PatientID uuid.UUID `gorm:"type:uuid;index"`
	SiteCode  string    `gorm:"uniqueIndex:idx_site_mrn"`
	MRN       string    `gorm:"column:mrn;uniqueIndex:idx_site_mrn"`
	IsActive  bool
	CreatedAt time.Time
}

func (hospitalPatientModel) TableName() string { return "hospital_patients" }

type caregiverProfileModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username     string    `gorm:"uniqueIndex"`
	FirstName    string
	LastName     string
	Email        string `gorm:"index"`
	Phone        string
	Language     string
	IsActive     bool
	PasswordHash string
	LegacyID     *int           `gorm:"uniqueIndex"`
	Devices      datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (caregiverProfileModel) TableName() string { return "caregiver_profiles" }

type relationshipModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	PatientID   uuid.UUID `gorm:"type:uuid;index;uniqueIndex:idx_relationship_tuple"`
	CaregiverID uuid.UUID `gorm:"type:uuid;index;uniqueIndex:idx_relationship_tuple"`
	TypeID      uuid.UUID `gorm:"type:uuid;index;uniqueIndex:idx_relationship_tuple"`
	Status      string    `gorm:"uniqueIndex:idx_relationship_tuple"`
	// RoleType is denormalized from the type so the partial unique indexes
	// can reference it without a join.
	RoleType    string `gorm:"index"`
	Reason      string
	RequestDate time.Time
	StartDate   time.Time
	EndDate     *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Patient   patientModel          `gorm:"foreignKey:PatientID"`
	Caregiver caregiverProfileModel `gorm:"foreignKey:CaregiverID"`
	Type      relationshipTypeModel `gorm:"foreignKey:TypeID"`
}

func (relationshipModel) TableName() string { return "relationships" }

type registrationCodeModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	RelationshipID uuid.UUID `gorm:"type:uuid;index"`
	Code           string    `gorm:"uniqueIndex"`
	Status         string
	Attempts       int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (registrationCodeModel) TableName() string { return "registration_codes" }

type syncFailureModel struct {
	ID        int64     `gorm:"primaryKey"`
	System    string    `gorm:"index"`
	PatientID uuid.UUID `gorm:"type:uuid;index"`
	Payload   datatypes.JSON
	CreatedAt time.Time
}

func (syncFailureModel) TableName() string { return "sync_failures" }

// relationshipPartialIndexes back the concurrency invariants that pre-insert
// reads cannot: under read committed, two transactions can each see no
// conflicting row and both commit. With these in place the database lets
// exactly one writer through; the loser gets a unique violation that the
// repository maps to ErrDuplicateRelationship.
var relationshipPartialIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_active_pair ON relationships (patient_id, caregiver_id) WHERE status IN ('PENDING', 'CONFIRMED')`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_self_per_patient ON relationships (patient_id) WHERE role_type = 'SELF'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_self_per_caregiver ON relationships (caregiver_id) WHERE role_type = 'SELF'`,
}

func (r *Repository) AutoMigrate() error {
	err := r.db.AutoMigrate(
		&relationshipTypeModel{},
		&patientModel{},
		&hospitalPatientModel{},
		&caregiverProfileModel{},
		&relationshipModel{},
		&registrationCodeModel{},
		&syncFailureModel{},
	)
	if err != nil {
		return err
	}
	for _, stmt := range relationshipPartialIndexes {
		if err := r.db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// Relationship types

func (r *Repository) CreateType(ctx context.Context, t models.RelationshipType) (models.RelationshipType, error) {
	row := relationshipTypeModel{
		ID:                     uuid.New(),
		Name:                   t.Name,
		Description:            t.Description,
		StartAge:               t.StartAge,
		EndAge:                 t.EndAge,
		FormRequired:           t.FormRequired,
		CanAnswerQuestionnaire: t.CanAnswerQuestionnaire,
		RoleType:               string(t.RoleType),
		CreatedAt:              time.Now().UTC(),
		UpdatedAt:              time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return models.RelationshipType{}, err
	}
	return mapTypeModel(row), nil
}

func (r *Repository) UpdateType(ctx context.Context, t models.RelationshipType) (models.RelationshipType, error) {
	result := r.db.WithContext(ctx).Model(&relationshipTypeModel{}).Where("id = ?", t.ID).Updates(map[string]interface{}{
		"name":                     t.Name,
		"description":              t.Description,
		"start_age":                t.StartAge,
		"end_age":                  t.EndAge,
		"form_required":            t.FormRequired,
		"can_answer_questionnaire": t.CanAnswerQuestionnaire,
		"role_type":                string(t.RoleType),
		"updated_at":               time.Now().UTC(),
	})
	if result.Error != nil {
		return models.RelationshipType{}, result.Error
	}
	if result.RowsAffected == 0 {
		return models.RelationshipType{}, ErrTypeNotFound
	}
	return r.GetType(ctx, t.ID)
}

func (r *Repository) DeleteType(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&relationshipTypeModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTypeNotFound
	}
	return nil
}

func (r *Repository) GetType(ctx context.Context, id uuid.UUID) (models.RelationshipType, error) {
	var row relationshipTypeModel
	err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.RelationshipType{}, ErrTypeNotFound
	}
	if err != nil {
		return models.RelationshipType{}, err
	}
	return mapTypeModel(row), nil
}

func (r *Repository) ListTypes(ctx context.Context) ([]models.RelationshipType, error) {
	var rows []relationshipTypeModel
	if err := r.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, err
	}
	types := make([]models.RelationshipType, 0, len(rows))
	for _, row := range rows {
		types = append(types, mapTypeModel(row))
	}
	return types, nil
}

// TypeByRole returns the single relationship type instance for a restricted
// role, or ErrTypeNotFound when the seed data is missing.
func (r *Repository) TypeByRole(ctx context.Context, role models.RoleType) (models.RelationshipType, error) {
	var row relationshipTypeModel
	err := r.db.WithContext(ctx).First(&row, "role_type = ?", string(role)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.RelationshipType{}, ErrTypeNotFound
	}
	if err != nil {
		return models.RelationshipType{}, err
	}
	return mapTypeModel(row), nil
}

// CountTypesByRole counts instances with the given role, excluding the given
// id. Used to keep restricted roles down to a single instance.
func (r *Repository) CountTypesByRole(ctx context.Context, role models.RoleType, exclude uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&relationshipTypeModel{}).
		Where("role_type = ? AND id <> ?", string(role), exclude).
		Count(&count).Error
	return count, err
}

// Patients

func (r *Repository) CreatePatient(ctx context.Context, patient models.Patient) (models.Patient, error) {
	row := patientModel{
		ID:          patient.ID,
		FirstName:   patient.FirstName,
		LastName:    patient.LastName,
		DateOfBirth: patient.DateOfBirth,
		DateOfDeath: patient.DateOfDeath,
		Sex:         string(patient.Sex),
		DataAccess:  string(patient.DataAccess),
		LegacyID:    patient.LegacyID,

		NonInterpretableLabResultDelay: patient.NonInterpretableLabResultDelay,
		InterpretableLabResultDelay:    patient.InterpretableLabResultDelay,

		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if patient.RAMQ != "" {
		ramq := patient.RAMQ
		row.RAMQ = &ramq
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return models.Patient{}, err
	}
	return mapPatientModel(row), nil
}

func (r *Repository) GetPatient(ctx context.Context, id uuid.UUID) (models.Patient, error) {
	var row patientModel
	err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Patient{}, ErrPatientNotFound
	}
	if err != nil {
		return models.Patient{}, err
	}
	return mapPatientModel(row), nil
}

func (r *Repository) UpdatePatientLegacyID(ctx context.Context, id uuid.UUID, legacyID int) error {
	result := r.db.WithContext(ctx).Model(&patientModel{}).Where("id = ?", id).Updates(map[string]interface{}{
		"legacy_id":  legacyID,
		"updated_at": time.Now().UTC(),
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPatientNotFound
	}
	return nil
}

func (r *Repository) AddHospitalPatients(ctx context.Context, patientID uuid.UUID, identifiers []models.HospitalIdentifier) ([]models.HospitalPatient, error) {
	added := make([]models.HospitalPatient, 0, len(identifiers))
	for _, identifier := range identifiers {
		row := hospitalPatientModel{
			ID:        uuid.New(),
			PatientID: patientID,
			SiteCode:  identifier.SiteCode,
			MRN:       identifier.MRN,
			IsActive:  identifier.IsActive,
			CreatedAt: time.Now().UTC(),
		}
		if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil, ErrDuplicateMRN
			}
			return nil, err
		}
		added = append(added, models.HospitalPatient{
			ID:        row.ID,
			PatientID: row.PatientID,
			SiteCode:  row.SiteCode,
			MRN:       row.MRN,
			IsActive:  row.IsActive,
		})
	}
	return added, nil
}

func (r *Repository) PatientMRNs(ctx context.Context, patientID uuid.UUID) ([]models.HospitalPatient, error) {
	var rows []hospitalPatientModel
	if err := r.db.WithContext(ctx).Where("patient_id = ?", patientID).Order("site_code").Find(&rows).Error; err != nil {
		return nil, err
	}
	identifiers := make([]models.HospitalPatient, 0, len(rows))
	for _, row := range rows {
		identifiers = append(identifiers, models.HospitalPatient{
			ID:        row.ID,
			PatientID: row.PatientID,
			SiteCode:  row.SiteCode,
			MRN:       row.MRN,
			IsActive:  row.IsActive,
		})
	}
	return identifiers, nil
}

// Caregivers

type CreateCaregiverInput struct {
	Profile      models.CaregiverProfile
	PasswordHash string
}

func (r *Repository) CreateCaregiver(ctx context.Context, input CreateCaregiverInput) (models.CaregiverProfile, error) {
	profile := input.Profile
	row := caregiverProfileModel{
		ID:           profile.ID,
		Username:     profile.User.Username,
		FirstName:    profile.User.FirstName,
		LastName:     profile.User.LastName,
		Email:        profile.User.Email,
		Phone:        profile.User.Phone,
		Language:     profile.User.Language,
		IsActive:     profile.User.IsActive,
		PasswordHash: input.PasswordHash,
		LegacyID:     profile.LegacyID,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return models.CaregiverProfile{}, err
	}
	return mapCaregiverModel(row), nil
}

func (r *Repository) GetCaregiver(ctx context.Context, id uuid.UUID) (models.CaregiverProfile, error) {
	var row caregiverProfileModel
	err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.CaregiverProfile{}, ErrCaregiverNotFound
	}
	if err != nil {
		return models.CaregiverProfile{}, err
	}
	return mapCaregiverModel(row), nil
}

// FindCaregiverByEmailPhone resolves an existing account by the pair used in
// the access-request form.
func (r *Repository) FindCaregiverByEmailPhone(ctx context.Context, email, phone string) (models.CaregiverProfile, error) {
	var row caregiverProfileModel
	err := r.db.WithContext(ctx).Where("email = ? AND phone = ?", email, phone).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.CaregiverProfile{}, ErrCaregiverNotFound
	}
	if err != nil {
		return models.CaregiverProfile{}, err
	}
	return mapCaregiverModel(row), nil
}

type ActivateCaregiverInput struct {
	Username     string
	PasswordHash string
	Phone        string
	Language     string
}

// ActivateCaregiver turns a skeleton account into a usable one once
// registration completes.
func (r *Repository) ActivateCaregiver(ctx context.Context, id uuid.UUID, input ActivateCaregiverInput) error {
	updates := map[string]interface{}{
		"username":      input.Username,
		"password_hash": input.PasswordHash,
		"is_active":     true,
		"updated_at":    time.Now().UTC(),
	}
	if input.Phone != "" {
		updates["phone"] = input.Phone
	}
	if input.Language != "" {
		updates["language"] = input.Language
	}
	result := r.db.WithContext(ctx).Model(&caregiverProfileModel{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCaregiverNotFound
	}
	return nil
}

// Relationships

func (r *Repository) CreateRelationship(ctx context.Context, rel models.Relationship) (models.Relationship, error) {
	row := relationshipModel{
		ID:          rel.ID,
		PatientID:   rel.Patient.ID,
		CaregiverID: rel.Caregiver.ID,
		TypeID:      rel.Type.ID,
		Status:      string(rel.Status),
		RoleType:    string(rel.Type.RoleType),
		Reason:      rel.Reason,
		RequestDate: rel.RequestDate,
		StartDate:   rel.StartDate,
		EndDate:     rel.EndDate,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.Relationship{}, ErrDuplicateRelationship
		}
		return models.Relationship{}, err
	}
	return r.GetRelationship(ctx, row.ID)
}

func (r *Repository) GetRelationship(ctx context.Context, id uuid.UUID) (models.Relationship, error) {
	var row relationshipModel
	err := r.db.WithContext(ctx).
		Preload("Patient").Preload("Caregiver").Preload("Type").
		First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Relationship{}, ErrRelationshipNotFound
	}
	if err != nil {
		return models.Relationship{}, err
	}
	return mapRelationshipModel(row), nil
}

type RelationshipFilter struct {
	PatientID   *uuid.UUID
	CaregiverID *uuid.UUID
	Status      models.RelationshipStatus
	Limit       int
}

func (r *Repository) ListRelationships(ctx context.Context, filter RelationshipFilter) ([]models.Relationship, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := r.db.WithContext(ctx).
		Preload("Patient").Preload("Caregiver").Preload("Type").
		Order("created_at DESC").Limit(limit)
	if filter.PatientID != nil {
		query = query.Where("patient_id = ?", *filter.PatientID)
	}
	if filter.CaregiverID != nil {
		query = query.Where("caregiver_id = ?", *filter.CaregiverID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}

	var rows []relationshipModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	relationships := make([]models.Relationship, 0, len(rows))
	for _, row := range rows {
		relationships = append(relationships, mapRelationshipModel(row))
	}
	return relationships, nil
}

func (r *Repository) UpdateRelationshipStatus(ctx context.Context, id uuid.UUID, status models.RelationshipStatus, reason string) error {
	result := r.db.WithContext(ctx).Model(&relationshipModel{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     string(status),
		"reason":     reason,
		"updated_at": time.Now().UTC(),
	})
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrDuplicateRelationship
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRelationshipNotFound
	}
	return nil
}

// PatientHasSelf reports whether the patient has a SELF relationship other
// than the excluded one.
func (r *Repository) PatientHasSelf(ctx context.Context, patientID, exclude uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&relationshipModel{}).
		Where("patient_id = ? AND role_type = ? AND id <> ?",
			patientID, string(models.RoleTypeSelf), exclude).
		Count(&count).Error
	return count > 0, err
}

// CaregiverHasSelf reports whether the caregiver already is the
// patient-of-self of some patient, other than in the excluded relationship.
func (r *Repository) CaregiverHasSelf(ctx context.Context, caregiverID, exclude uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&relationshipModel{}).
		Where("caregiver_id = ? AND role_type = ? AND id <> ?",
			caregiverID, string(models.RoleTypeSelf), exclude).
		Count(&count).Error
	return count > 0, err
}

// ActivePairExists reports whether another PENDING or CONFIRMED relationship
// exists between the pair, regardless of type.
func (r *Repository) ActivePairExists(ctx context.Context, patientID, caregiverID, exclude uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&relationshipModel{}).
		Where("patient_id = ? AND caregiver_id = ? AND status IN ? AND id <> ?",
			patientID, caregiverID,
			[]string{string(models.RelationshipStatusPending), string(models.RelationshipStatusConfirmed)},
			exclude).
		Count(&count).Error
	return count > 0, err
}

// ListExpiryCandidates returns every CONFIRMED relationship whose type has
// an end age, with patient and type loaded for the age computation.
func (r *Repository) ListExpiryCandidates(ctx context.Context) ([]models.Relationship, error) {
	var rows []relationshipModel
	err := r.db.WithContext(ctx).
		Preload("Patient").Preload("Caregiver").Preload("Type").
		Joins("JOIN relationship_types ON relationship_types.id = relationships.type_id").
		Where("relationships.status = ? AND relationship_types.end_age IS NOT NULL",
			string(models.RelationshipStatusConfirmed)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	candidates := make([]models.Relationship, 0, len(rows))
	for _, row := range rows {
		candidates = append(candidates, mapRelationshipModel(row))
	}
	return candidates, nil
}

// Registration codes

func (r *Repository) CreateRegistrationCode(ctx context.Context, relationshipID uuid.UUID, code string) (models.RegistrationCode, error) {
	row := registrationCodeModel{
		ID:             uuid.New(),
		RelationshipID: relationshipID,
		Code:           code,
		Status:         string(models.RegistrationCodeStatusNew),
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.RegistrationCode{}, ErrDuplicateCode
		}
		return models.RegistrationCode{}, err
	}
	return mapCodeModel(row), nil
}

func (r *Repository) GetCodeByValue(ctx context.Context, code string) (models.RegistrationCode, error) {
	var row registrationCodeModel
	err := r.db.WithContext(ctx).First(&row, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.RegistrationCode{}, ErrCodeNotFound
	}
	if err != nil {
		return models.RegistrationCode{}, err
	}
	return mapCodeModel(row), nil
}

func (r *Repository) UpdateCodeStatus(ctx context.Context, id uuid.UUID, status models.RegistrationCodeStatus) error {
	result := r.db.WithContext(ctx).Model(&registrationCodeModel{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     string(status),
		"updated_at": time.Now().UTC(),
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCodeNotFound
	}
	return nil
}

func (r *Repository) IncrementCodeAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	err := r.db.WithContext(ctx).Model(&registrationCodeModel{}).Where("id = ?", id).
		UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error
	if err != nil {
		return 0, err
	}
	var row registrationCodeModel
	if err := r.db.WithContext(ctx).Select("attempts").First(&row, "id = ?", id).Error; err != nil {
		return 0, err
	}
	return row.Attempts, nil
}

// Sync failures

func (r *Repository) RecordSyncFailure(ctx context.Context, failure models.SyncFailure) error {
	payload, _ := json.Marshal(failure.Payload)
	row := syncFailureModel{
		System:    failure.System,
		PatientID: failure.PatientID,
		Payload:   datatypes.JSON(payload),
		CreatedAt: time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

// Mapping helpers

func mapTypeModel(row relationshipTypeModel) models.RelationshipType {
	return models.RelationshipType{
		ID:                     row.ID,
		Name:                   row.Name,
		Description:            row.Description,
		StartAge:               row.StartAge,
		EndAge:                 row.EndAge,
		FormRequired:           row.FormRequired,
		CanAnswerQuestionnaire: row.CanAnswerQuestionnaire,
		RoleType:               models.RoleType(row.RoleType),
	}
}

func mapPatientModel(row patientModel) models.Patient {
	patient := models.Patient{
		ID:          row.ID,
		FirstName:   row.FirstName,
		LastName:    row.LastName,
		DateOfBirth: row.DateOfBirth,
		DateOfDeath: row.DateOfDeath,
		Sex:         models.SexType(row.Sex),
		DataAccess:  models.DataAccessType(row.DataAccess),
		LegacyID:    row.LegacyID,

		NonInterpretableLabResultDelay: row.NonInterpretableLabResultDelay,
		InterpretableLabResultDelay:    row.InterpretableLabResultDelay,

		CreatedAt: row.CreatedAt,
	}
	if row.RAMQ != nil {
		patient.RAMQ = *row.RAMQ
	}
	return patient
}

func mapCaregiverModel(row caregiverProfileModel) models.CaregiverProfile {
	return models.CaregiverProfile{
		ID: row.ID,
		User: models.CaregiverUser{
			Username:  row.Username,
			FirstName: row.FirstName,
			LastName:  row.LastName,
			Email:     row.Email,
			Phone:     row.Phone,
			Language:  row.Language,
			IsActive:  row.IsActive,
		},
		LegacyID:  row.LegacyID,
		CreatedAt: row.CreatedAt,
	}
}

func mapRelationshipModel(row relationshipModel) models.Relationship {
	return models.Relationship{
		ID:          row.ID,
		Patient:     mapPatientModel(row.Patient),
		Caregiver:   mapCaregiverModel(row.Caregiver),
		Type:        mapTypeModel(row.Type),
		Status:      models.RelationshipStatus(row.Status),
		Reason:      row.Reason,
		RequestDate: row.RequestDate,
		StartDate:   row.StartDate,
		EndDate:     row.EndDate,
	}
}

func mapCodeModel(row registrationCodeModel) models.RegistrationCode {
	return models.RegistrationCode{
		ID:             row.ID,
		RelationshipID: row.RelationshipID,
		Code:           row.Code,
		Status:         models.RegistrationCodeStatus(row.Status),
		Attempts:       row.Attempts,
		CreatedAt:      row.CreatedAt,
	}
}

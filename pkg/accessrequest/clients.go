package accessrequest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/opalhealth/backend/pkg/common/httpclient"
	"github.com/opalhealth/backend/pkg/common/models"
)

const outboundRetries = 3

// LegacyClient talks to the bridge service in front of the legacy hospital
// database. New patients and caregiver type changes are mirrored there.
type LegacyClient struct {
	baseURL string
	client  *http.Client
}

func NewLegacyClient(baseURL string, timeout time.Duration) *LegacyClient {
	return &LegacyClient{
		baseURL: baseURL,
		client:  httpclient.New(timeout),
	}
}

type legacyPatientPayload struct {
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	DateOfBirth string     `json:"date_of_birth"`
	DateOfDeath *string    `json:"date_of_death,omitempty"`
	Sex         string     `json:"sex"`
	RAMQ        string     `json:"ramq,omitempty"`
	MRNs        []mrnEntry `json:"mrns"`

	SelfEmail    string `json:"self_email,omitempty"`
	SelfLanguage string `json:"self_language,omitempty"`
}

type mrnEntry struct {
	Site     string `json:"site"`
	MRN      string `json:"mrn"`
	IsActive bool   `json:"is_active"`
}

func (c *LegacyClient) InitializeNewPatient(ctx context.Context, patient models.Patient, mrns []models.HospitalPatient, selfCaregiver *models.CaregiverProfile) (int, error) {
	payload := legacyPatientPayload{
		FirstName:   patient.FirstName,
		LastName:    patient.LastName,
		DateOfBirth: patient.DateOfBirth.Format("2006-01-02"),
		Sex:         string(patient.Sex),
		RAMQ:        patient.RAMQ,
	}
	if patient.DateOfDeath != nil {
		dod := patient.DateOfDeath.Format("2006-01-02")
		payload.DateOfDeath = &dod
	}
	for _, mrn := range mrns {
		payload.MRNs = append(payload.MRNs, mrnEntry{Site: mrn.SiteCode, MRN: mrn.MRN, IsActive: mrn.IsActive})
	}
	if selfCaregiver != nil {
		payload.SelfEmail = selfCaregiver.User.Email
		payload.SelfLanguage = selfCaregiver.User.Language
	}

	var result struct {
		LegacyID int `json:"legacy_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/patients", payload, &result); err != nil {
		return 0, err
	}
	return result.LegacyID, nil
}

func (c *LegacyClient) UpdateUserType(ctx context.Context, caregiverLegacyID int, userType string) error {
	path := fmt.Sprintf("/api/users/%d/type", caregiverLegacyID)
	return c.do(ctx, http.MethodPut, path, map[string]string{"user_type": userType}, nil)
}

func (c *LegacyClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	return doJSON(ctx, c.client, method, c.baseURL+path, body, out)
}

// IntegrationClient notifies one hospital integration engine that a patient
// now exists in the portal so inbound clinical feeds start flowing.
type IntegrationClient struct {
	baseURL string
	client  *http.Client
}

func NewIntegrationClient(baseURL string, timeout time.Duration) *IntegrationClient {
	return &IntegrationClient{
		baseURL: baseURL,
		client:  httpclient.New(timeout),
	}
}

func (c *IntegrationClient) Name() string {
	if u, err := url.Parse(c.baseURL); err == nil && u.Host != "" {
		return u.Host
	}
	return c.baseURL
}

func (c *IntegrationClient) NotifyNewPatient(ctx context.Context, mrns []models.HospitalPatient, patientID uuid.UUID) error {
	payload := struct {
		PatientID string     `json:"patient_id"`
		MRNs      []mrnEntry `json:"mrns"`
	}{PatientID: patientID.String()}
	for _, mrn := range mrns {
		payload.MRNs = append(payload.MRNs, mrnEntry{Site: mrn.SiteCode, MRN: mrn.MRN, IsActive: mrn.IsActive})
	}
	return doJSON(ctx, c.client, http.MethodPost, c.baseURL+"/api/patients/notify", payload, nil)
}

// DatabankClient seeds consent placeholders for research data sharing.
type DatabankClient struct {
	baseURL string
	client  *http.Client
}

func NewDatabankClient(baseURL string, timeout time.Duration) *DatabankClient {
	return &DatabankClient{
		baseURL: baseURL,
		client:  httpclient.New(timeout),
	}
}

func (c *DatabankClient) CreateDatabankConsent(ctx context.Context, patient models.Patient) (bool, error) {
	payload := map[string]string{
		"patient_id":    patient.ID.String(),
		"date_of_birth": patient.DateOfBirth.Format("2006-01-02"),
	}
	var result struct {
		Created bool `json:"created"`
	}
	if err := doJSON(ctx, c.client, http.MethodPost, c.baseURL+"/api/consents", payload, &result); err != nil {
		return false, err
	}
	return result.Created, nil
}

func doJSON(ctx context.Context, client *http.Client, method, url string, body, out interface{}) error {
	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	return httpclient.Retry(ctx, outboundRetries, 200*time.Millisecond, func() error {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(encoded))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return fmt.Errorf("%s %s: status %d: %s", method, url, resp.StatusCode, string(data))
		}
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	})
}

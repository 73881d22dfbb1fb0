// Package testutil provides common test utilities and helpers for ReliefPipe tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/BTreeMap/ReliefPipe/internal/models"
	"github.com/BTreeMap/ReliefPipe/internal/store"
)

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes an APIResponse envelope and validates its status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus models.APIStatus) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	status, ok := response["status"].(string)
	if !ok {
		t.Error("response missing or invalid 'status' field")
		return response
	}
	if status != string(expectedStatus) {
		t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
	}
	return response
}

// CreateFormRequest builds a form-encoded POST request like the ones Twilio sends.
func CreateFormRequest(t *testing.T, target string, values url.Values) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// SeedTurns adds sample turns and receipts to the store.
func SeedTurns(t *testing.T, s store.Store) []models.TurnRecord {
	t.Helper()
	turns := []models.TurnRecord{
		{ID: "t_seed_1", InputType: models.InputTypeText, Text: "start form", Intent: models.IntentStartForm,
			ResponseText: "Starting FEMA_IA. Please provide: name, address, proof_of_loss, insurance_info.", Time: 10},
		{ID: "t_seed_2", InputType: models.InputTypeSMS, PhoneNumber: "+15551234567", Text: "status 42",
			Intent: models.IntentCheckStatus, ResponseText: "Application 42 status: Approved", SMSSent: true, Time: 20},
	}
	for _, turn := range turns {
		if err := s.AddTurn(turn); err != nil {
			t.Fatalf("failed to add test turn: %v", err)
		}
	}
	if err := s.AddReceipt(models.Receipt{To: "+15551234567", Status: models.MessageStatusSent, Time: 20}); err != nil {
		t.Fatalf("failed to add test receipt: %v", err)
	}
	return turns
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t *testing.T, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}

// Package models defines the core data structures for ReliefPipe.
//
// It includes the conversation turn types, intents and entities produced by the
// intent parser, form definitions, delivery receipts and the JSON envelope used
// by the HTTP API. These types are shared across modules.
package models

import (
	"errors"
	"strings"
	"time"
)

// InputType identifies how a user's message reached the assistant.
type InputType string

const (
	// InputTypeText is typed text from the generic process endpoint.
	InputTypeText InputType = "text"
	// InputTypeAudio is raw recorded speech that must be transcribed first.
	InputTypeAudio InputType = "audio"
	// InputTypeSMS is an inbound text message; the reply is also sent by SMS.
	InputTypeSMS InputType = "sms"
)

// IsValidInputType checks if the given input type is supported.
func IsValidInputType(it InputType) bool {
	switch it {
	case InputTypeText, InputTypeAudio, InputTypeSMS:
		return true
	default:
		return false
	}
}

// ParseInputType normalizes a raw input_type parameter.
func ParseInputType(raw string) (InputType, error) {
	it := InputType(strings.ToLower(strings.TrimSpace(raw)))
	if it == "" {
		return "", ErrEmptyInputType
	}
	if !IsValidInputType(it) {
		return "", ErrInvalidInputType
	}
	return it, nil
}

// Intent is the classified purpose of an utterance. The set is open: any label
// the classifier emits is carried through, and unrecognized labels are routed
// to the clarification reply.
type Intent string

const (
	// IntentStartForm asks the assistant to begin an aid application form.
	IntentStartForm Intent = "start_form"
	// IntentSubmitDocument submits a supporting document for validation.
	IntentSubmitDocument Intent = "submit_document"
	// IntentCheckStatus looks up an existing application's case status.
	IntentCheckStatus Intent = "check_status"
	// IntentUnknown is used whenever classification fails or is inconclusive.
	IntentUnknown Intent = "unknown"
)

// Well-known entity names extracted by the intent parser.
const (
	EntityFormID        = "form_id"
	EntityDocumentPath  = "document_path"
	EntityApplicationID = "application_id"
)

// Entities maps entity names to their extracted values for a single request.
type Entities map[string]string

// Get returns the entity value for key, or fallback when it is absent or blank.
func (e Entities) Get(key, fallback string) string {
	if v, ok := e[key]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

// FormDefinition describes which fields must be collected for an aid form.
// Fields are kept in their declared order.
type FormDefinition struct {
	ID     string   `json:"id" yaml:"id"`
	Fields []string `json:"fields" yaml:"fields"`
}

// Turn is one complete request/response cycle through the orchestrator.
// It is created per request and discarded once the response is returned.
type Turn struct {
	ID            string    `json:"id"`
	InputType     InputType `json:"input_type"`
	Input         []byte    `json:"-"`
	PhoneNumber   string    `json:"phone_number,omitempty"`
	Text          string    `json:"text"` // normalized input text
	Intent        Intent    `json:"intent"`
	Entities      Entities  `json:"entities,omitempty"`
	ResponseText  string    `json:"response_text"`
	ResponseAudio []byte    `json:"-"`
	SMSSent       bool      `json:"sms_sent"`
	StartedAt     time.Time `json:"started_at"`
}

// TurnRecord is the persisted audit form of a Turn.
type TurnRecord struct {
	ID           string    `json:"id"`
	InputType    InputType `json:"input_type"`
	PhoneNumber  string    `json:"phone_number,omitempty"`
	Text         string    `json:"text"`
	Intent       Intent    `json:"intent"`
	ResponseText string    `json:"response_text"`
	AudioBytes   int       `json:"audio_bytes"`
	SMSSent      bool      `json:"sms_sent"`
	Time         int64     `json:"time"`
}

// Record converts a completed turn into its audit record.
func (t *Turn) Record() TurnRecord {
	return TurnRecord{
		ID:           t.ID,
		InputType:    t.InputType,
		PhoneNumber:  t.PhoneNumber,
		Text:         t.Text,
		Intent:       t.Intent,
		ResponseText: t.ResponseText,
		AudioBytes:   len(t.ResponseAudio),
		SMSSent:      t.SMSSent,
		Time:         t.StartedAt.Unix(),
	}
}

// Error variables for better error handling and testability
var (
	ErrEmptyInputType   = errors.New("input_type is required")
	ErrInvalidInputType = errors.New("input_type must be one of text, audio, sms")
	ErrEmptyRecipient   = errors.New("recipient cannot be empty")
)

// MessageStatus represents the delivery status of a message.
type MessageStatus string

const (
	// MessageStatusSent indicates the message was sent.
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusFailed indicates the message failed to send.
	MessageStatusFailed MessageStatus = "failed"
)

// Receipt records an outbound SMS delivery attempt.
type Receipt struct {
	To     string        `json:"to"`
	Status MessageStatus `json:"status"`
	Time   int64         `json:"time"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// API Response types for consistent JSON responses

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// Error creates an error API response with the given message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}

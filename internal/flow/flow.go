// Package flow implements the conversation orchestrator.
//
// A turn is normalized to text, classified into an intent and dispatched to the
// handler registered for that intent. The reply is optionally sent by SMS,
// synthesized to speech and recorded in the turn log. Provider failures never
// escape a turn: each one is replaced by a fallback value at the step where it
// happened.
package flow

import (
	"context"

	"github.com/BTreeMap/ReliefPipe/internal/forms"
	"github.com/BTreeMap/ReliefPipe/internal/models"
)

// ClarificationText is the reply for intents without a handler.
const ClarificationText = "Sorry, I didn't understand. Could you clarify?"

// DefaultFormID is used when a start_form request names no form.
const DefaultFormID = forms.FormIndividualAssistance

// Handler produces the reply text for one classified turn.
type Handler interface {
	Handle(ctx context.Context, entities models.Entities) string
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, entities models.Entities) string

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, entities models.Entities) string {
	return f(ctx, entities)
}

// FormService starts forms and validates submitted documents.
type FormService interface {
	StartForm(formID string) string
	ProcessDocument(ctx context.Context, path, formHint string) string
}

// StatusService answers application status questions.
type StatusService interface {
	CheckStatus(ctx context.Context, applicationID string) string
}

// StartFormHandler replies with the fields of the requested form.
func StartFormHandler(forms FormService) Handler {
	return HandlerFunc(func(ctx context.Context, entities models.Entities) string {
		return forms.StartForm(entities.Get(models.EntityFormID, DefaultFormID))
	})
}

// SubmitDocumentHandler validates the referenced document against its form.
// A form_id entity, when present, selects the form explicitly.
func SubmitDocumentHandler(forms FormService) Handler {
	return HandlerFunc(func(ctx context.Context, entities models.Entities) string {
		return forms.ProcessDocument(ctx,
			entities.Get(models.EntityDocumentPath, ""),
			entities.Get(models.EntityFormID, ""))
	})
}

// CheckStatusHandler looks up the referenced application.
func CheckStatusHandler(status StatusService) Handler {
	return HandlerFunc(func(ctx context.Context, entities models.Entities) string {
		return status.CheckStatus(ctx, entities.Get(models.EntityApplicationID, ""))
	})
}

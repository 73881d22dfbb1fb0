// Package nlp classifies user utterances into intents and extracts entities.
//
// Two classifiers are provided: RasaParser talks to a Rasa HTTP server that
// serves the trained NLU model, and OpenAIParser asks an OpenAI model to call a
// classification tool. Both satisfy Parser.
package nlp

import (
	"context"
	"errors"
	"strings"

	"github.com/BTreeMap/ReliefPipe/internal/models"
)

// Parser maps free text to an intent and its entities.
type Parser interface {
	ParseIntent(ctx context.Context, text string) (models.Intent, models.Entities, error)
}

var (
	ErrMissingURL      = errors.New("rasa server URL not set")
	ErrMissingModel    = errors.New("model path is required")
	ErrNilClassifier   = errors.New("classifier client is nil")
	ErrInvalidResponse = errors.New("invalid classifier response")
)

// isBlank reports whether text carries nothing to classify.
func isBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}

// normalizeIntent maps an empty classifier label to IntentUnknown.
func normalizeIntent(name string) models.Intent {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.IntentUnknown
	}
	return models.Intent(name)
}

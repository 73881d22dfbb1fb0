package nlp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/BTreeMap/ReliefPipe/internal/genai"
	"github.com/BTreeMap/ReliefPipe/internal/models"
)

// ClassifyToolName is the function the model must call to report its classification.
const ClassifyToolName = "classify_intent"

const classifySystemPrompt = `You classify messages sent to a disaster-relief intake assistant.
Call classify_intent exactly once.
Use start_form when the user wants to begin an aid application, submit_document when they are sending a document,
check_status when they ask about an existing application and unknown for anything else.
Only fill entities that appear in the message. Known form ids: FEMA_IA (individual assistance) and FEMA_HMA (hazard mitigation).`

// toolCaller is the subset of genai.Client used for classification.
type toolCaller interface {
	CallTool(ctx context.Context, systemPrompt, userPrompt string, tool openai.ChatCompletionToolParam) (*genai.ToolCall, error)
}

// OpenAIParser classifies text by forcing a function call on an OpenAI model.
type OpenAIParser struct {
	client toolCaller
}

type classifyArguments struct {
	Intent        string `json:"intent"`
	FormID        string `json:"form_id"`
	DocumentPath  string `json:"document_path"`
	ApplicationID string `json:"application_id"`
}

// NewOpenAIParser creates a parser backed by the given GenAI client.
func NewOpenAIParser(client *genai.Client) (*OpenAIParser, error) {
	if client == nil {
		return nil, ErrNilClassifier
	}
	return &OpenAIParser{client: client}, nil
}

// ClassifyTool returns the tool definition offered to the model.
func ClassifyTool() openai.ChatCompletionToolParam {
	return openai.ChatCompletionToolParam{
		Type: "function",
		Function: shared.FunctionDefinitionParam{
			Name:        ClassifyToolName,
			Description: openai.String("Report the intent of the user's message and any entities it mentions."),
			Parameters: shared.FunctionParameters{
				"type": "object",
				"properties": map[string]any{
					"intent": map[string]any{
						"type": "string",
						"enum": []string{
							string(models.IntentStartForm),
							string(models.IntentSubmitDocument),
							string(models.IntentCheckStatus),
							string(models.IntentUnknown),
						},
						"description": "The user's intent",
					},
					models.EntityFormID: map[string]any{
						"type":        "string",
						"description": "Form identifier such as FEMA_IA or FEMA_HMA",
					},
					models.EntityDocumentPath: map[string]any{
						"type":        "string",
						"description": "Path of the document the user is submitting",
					},
					models.EntityApplicationID: map[string]any{
						"type":        "string",
						"description": "Application identifier whose status is requested",
					},
				},
				"required": []string{"intent"},
			},
		},
	}
}

// ParseIntent classifies text. Blank text is unknown without a model call.
func (p *OpenAIParser) ParseIntent(ctx context.Context, text string) (models.Intent, models.Entities, error) {
	if isBlank(text) {
		return models.IntentUnknown, models.Entities{}, nil
	}
	call, err := p.client.CallTool(ctx, classifySystemPrompt, text, ClassifyTool())
	if err != nil {
		return models.IntentUnknown, models.Entities{}, fmt.Errorf("openai classification failed: %w", err)
	}

	var args classifyArguments
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return models.IntentUnknown, models.Entities{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	entities := models.Entities{}
	for key, value := range map[string]string{
		models.EntityFormID:        args.FormID,
		models.EntityDocumentPath:  args.DocumentPath,
		models.EntityApplicationID: args.ApplicationID,
	} {
		if value != "" {
			entities[key] = value
		}
	}
	intent := normalizeIntent(args.Intent)
	slog.Debug("OpenAIParser.ParseIntent: classified", "intent", intent, "entityCount", len(entities))
	return intent, entities, nil
}

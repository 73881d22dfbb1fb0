package nlp

import (
	"context"
	"errors"
	"testing"

	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/ReliefPipe/internal/genai"
	"github.com/BTreeMap/ReliefPipe/internal/models"
)

// mockToolCaller records the prompt and returns a canned tool call.
type mockToolCaller struct {
	args   string
	err    error
	calls  int
	prompt string
	tool   string
}

func (m *mockToolCaller) CallTool(ctx context.Context, systemPrompt, userPrompt string, tool openai.ChatCompletionToolParam) (*genai.ToolCall, error) {
	m.calls++
	m.prompt = userPrompt
	m.tool = tool.Function.Name
	if m.err != nil {
		return nil, m.err
	}
	return &genai.ToolCall{Name: tool.Function.Name, Arguments: []byte(m.args)}, nil
}

func TestOpenAIParser_ParseIntent(t *testing.T) {
	caller := &mockToolCaller{args: `{"intent":"start_form","form_id":"FEMA_HMA","application_id":""}`}
	p := &OpenAIParser{client: caller}

	intent, entities, err := p.ParseIntent(context.Background(), "I want to apply for hazard mitigation")
	require.NoError(t, err)
	assert.Equal(t, models.IntentStartForm, intent)
	assert.Equal(t, models.Entities{models.EntityFormID: "FEMA_HMA"}, entities)
	assert.Equal(t, ClassifyToolName, caller.tool)
	assert.Equal(t, "I want to apply for hazard mitigation", caller.prompt)
}

func TestOpenAIParser_BlankText(t *testing.T) {
	caller := &mockToolCaller{}
	intent, _, err := (&OpenAIParser{client: caller}).ParseIntent(context.Background(), "\n\t")
	require.NoError(t, err)
	assert.Equal(t, models.IntentUnknown, intent)
	assert.Zero(t, caller.calls)
}

func TestOpenAIParser_Errors(t *testing.T) {
	p := &OpenAIParser{client: &mockToolCaller{err: errors.New("rate limited")}}
	intent, entities, err := p.ParseIntent(context.Background(), "hello")
	assert.Error(t, err)
	assert.Equal(t, models.IntentUnknown, intent)
	assert.Empty(t, entities)

	p = &OpenAIParser{client: &mockToolCaller{args: `{"intent":`}}
	_, _, err = p.ParseIntent(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrInvalidResponse)

	p = &OpenAIParser{client: &mockToolCaller{args: `{}`}}
	intent, _, err = p.ParseIntent(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, models.IntentUnknown, intent)
}

func TestNewOpenAIParser_NilClient(t *testing.T) {
	_, err := NewOpenAIParser(nil)
	assert.ErrorIs(t, err, ErrNilClassifier)
}

func TestClassifyTool(t *testing.T) {
	tool := ClassifyTool()
	assert.Equal(t, ClassifyToolName, tool.Function.Name)
	props, ok := tool.Function.Parameters["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "intent")
	assert.Contains(t, props, models.EntityApplicationID)
}

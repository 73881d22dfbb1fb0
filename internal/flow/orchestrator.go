package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/BTreeMap/ReliefPipe/internal/metrics"
	"github.com/BTreeMap/ReliefPipe/internal/models"
	"github.com/BTreeMap/ReliefPipe/internal/nlp"
	"github.com/BTreeMap/ReliefPipe/internal/util"
	"github.com/BTreeMap/ReliefPipe/internal/voice"
)

// DefaultProviderTimeout bounds every individual provider call in a turn.
const DefaultProviderTimeout = 30 * time.Second

// SpeechGateway is the speech and SMS side of a turn.
type SpeechGateway interface {
	TextToSpeech(ctx context.Context, text string) voice.Result[[]byte]
	SpeechToText(ctx context.Context, audio []byte) voice.Result[string]
	SendSMS(ctx context.Context, message, to string) voice.Result[struct{}]
}

// TurnRecorder appends completed turns to the turn log.
type TurnRecorder interface {
	AddTurn(t models.TurnRecord) error
}

// Reply is the outcome of one turn. Audio is never nil.
type Reply struct {
	Text     string          `json:"text"`
	Audio    []byte          `json:"-"`
	Intent   models.Intent   `json:"intent"`
	Entities models.Entities `json:"entities,omitempty"`
	TurnID   string          `json:"turn_id"`
}

// Opts holds configuration options for the orchestrator.
type Opts struct {
	ProviderTimeout time.Duration
	Recorder        TurnRecorder
	Handlers        map[models.Intent]Handler
	Now             func() time.Time
}

// Option defines a configuration option for the orchestrator.
type Option func(*Opts)

// WithProviderTimeout sets the per-call provider timeout.
func WithProviderTimeout(d time.Duration) Option {
	return func(o *Opts) { o.ProviderTimeout = d }
}

// WithTurnRecorder records every completed turn.
func WithTurnRecorder(r TurnRecorder) Option {
	return func(o *Opts) { o.Recorder = r }
}

// WithHandler adds or replaces the handler for intent.
func WithHandler(intent models.Intent, h Handler) Option {
	return func(o *Opts) {
		if o.Handlers == nil {
			o.Handlers = map[models.Intent]Handler{}
		}
		o.Handlers[intent] = h
	}
}

// withClock overrides the turn timestamp source.
func withClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// Orchestrator runs conversation turns. It is safe for concurrent use: the
// dispatch table is built once and never modified.
type Orchestrator struct {
	parser   nlp.Parser
	gateway  SpeechGateway
	handlers map[models.Intent]Handler
	timeout  time.Duration
	recorder TurnRecorder
	now      func() time.Time
}

// NewOrchestrator wires the standard dispatch table:
// start_form and submit_document go to forms, check_status to status.
func NewOrchestrator(parser nlp.Parser, gateway SpeechGateway, forms FormService, status StatusService, opts ...Option) (*Orchestrator, error) {
	if parser == nil || gateway == nil || forms == nil || status == nil {
		return nil, fmt.Errorf("orchestrator requires parser, gateway, forms and status services")
	}
	cfg := Opts{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = DefaultProviderTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	handlers := map[models.Intent]Handler{
		models.IntentStartForm:      StartFormHandler(forms),
		models.IntentSubmitDocument: SubmitDocumentHandler(forms),
		models.IntentCheckStatus:    CheckStatusHandler(status),
	}
	for intent, h := range cfg.Handlers {
		handlers[intent] = h
	}
	slog.Debug("Orchestrator configured", "providerTimeout", cfg.ProviderTimeout, "handlers", len(handlers), "recorder_set", cfg.Recorder != nil)

	return &Orchestrator{
		parser:   parser,
		gateway:  gateway,
		handlers: handlers,
		timeout:  cfg.ProviderTimeout,
		recorder: cfg.Recorder,
		now:      cfg.Now,
	}, nil
}

// Process runs one turn. It never fails: every provider error is replaced by
// its fallback and the reply always carries text and a non-nil audio slice.
func (o *Orchestrator) Process(ctx context.Context, inputType models.InputType, input []byte, phoneNumber string) Reply {
	turn := &models.Turn{
		ID:          util.NewTurnID(),
		InputType:   inputType,
		Input:       input,
		PhoneNumber: phoneNumber,
		StartedAt:   o.now(),
	}
	slog.Debug("Orchestrator.Process: turn started", "turnID", turn.ID, "inputType", inputType, "inputBytes", len(input), "phone_set", phoneNumber != "")

	turn.Text = o.normalize(ctx, turn)
	turn.Intent, turn.Entities = o.classify(ctx, turn)
	turn.ResponseText = o.dispatch(ctx, turn)

	if turn.InputType == models.InputTypeSMS && turn.PhoneNumber != "" {
		sctx, cancel := context.WithTimeout(ctx, o.timeout)
		res := o.gateway.SendSMS(sctx, turn.ResponseText, turn.PhoneNumber)
		cancel()
		turn.SMSSent = res.OK()
	}

	tctx, cancel := context.WithTimeout(ctx, o.timeout)
	speech := o.gateway.TextToSpeech(tctx, turn.ResponseText)
	cancel()
	turn.ResponseAudio = speech.Value
	if turn.ResponseAudio == nil {
		turn.ResponseAudio = []byte{}
	}

	o.record(turn)
	metrics.TurnsTotal.WithLabelValues(string(turn.InputType), string(turn.Intent)).Inc()
	slog.Info("Orchestrator.Process: turn completed", "turnID", turn.ID, "intent", turn.Intent, "smsSent", turn.SMSSent, "audioBytes", len(turn.ResponseAudio))

	return Reply{
		Text:     turn.ResponseText,
		Audio:    turn.ResponseAudio,
		Intent:   turn.Intent,
		Entities: turn.Entities,
		TurnID:   turn.ID,
	}
}

// normalize turns the raw input into text. Audio is transcribed; a failed
// transcription yields empty text. Any other input type is read as UTF-8.
func (o *Orchestrator) normalize(ctx context.Context, turn *models.Turn) string {
	if turn.InputType == models.InputTypeAudio {
		sctx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()
		res := o.gateway.SpeechToText(sctx, turn.Input)
		if !res.OK() {
			slog.Warn("Orchestrator.normalize: transcription failed, continuing with empty text", "turnID", turn.ID, "error", res.Err)
			return ""
		}
		return res.Value
	}
	if !utf8.Valid(turn.Input) {
		slog.Warn("Orchestrator.normalize: input is not valid UTF-8", "turnID", turn.ID)
	}
	return string(turn.Input)
}

// classify runs the intent parser; any error becomes unknown with no entities.
func (o *Orchestrator) classify(ctx context.Context, turn *models.Turn) (models.Intent, models.Entities) {
	cctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	start := time.Now()
	intent, entities, err := o.parser.ParseIntent(cctx, turn.Text)
	metrics.ObserveProvider(metrics.ProviderIntent, start, err)
	if err != nil {
		slog.Error("Orchestrator.classify: intent parsing failed", "turnID", turn.ID, "error", err)
		return models.IntentUnknown, models.Entities{}
	}
	if intent == "" {
		intent = models.IntentUnknown
	}
	if entities == nil {
		entities = models.Entities{}
	}
	slog.Debug("Orchestrator.classify: intent parsed", "turnID", turn.ID, "intent", intent, "entityCount", len(entities))
	return intent, entities
}

// dispatch routes the turn to its intent handler. A panicking handler is
// reported and answered with the clarification text.
func (o *Orchestrator) dispatch(ctx context.Context, turn *models.Turn) (reply string) {
	h, ok := o.handlers[turn.Intent]
	if !ok {
		slog.Debug("Orchestrator.dispatch: no handler for intent", "turnID", turn.ID, "intent", turn.Intent)
		return ClarificationText
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Orchestrator.dispatch: handler panicked", "turnID", turn.ID, "intent", turn.Intent, "panic", r)
			reply = ClarificationText
		}
	}()
	hctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	return h.Handle(hctx, turn.Entities)
}

func (o *Orchestrator) record(turn *models.Turn) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.AddTurn(turn.Record()); err != nil {
		slog.Error("Orchestrator.record: failed to record turn", "turnID", turn.ID, "error", err)
	}
}

// Package voice is the speech and SMS gateway used by the conversation flow.
//
// Gateway combines a speech synthesizer, a transcriber and an SMS sender.
// Every operation returns a Result instead of an error so callers always have
// a usable value: failures are logged, counted and paired with an empty value.
package voice

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BTreeMap/ReliefPipe/internal/metrics"
)

var ErrNotConfigured = errors.New("provider not configured")

// Result carries a provider value together with the error that produced it.
// Value is always safe to use; on failure it is the zero-length value.
type Result[T any] struct {
	Value T
	Err   error
}

// OK reports whether the call succeeded.
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Synthesizer converts text to encoded speech.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Transcriber converts recorded speech to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// SMSSender delivers a text message.
type SMSSender interface {
	SendSMS(ctx context.Context, to string, body string) error
}

// Gateway fronts the speech and SMS providers. Any provider may be nil, in
// which case its operation fails with ErrNotConfigured.
type Gateway struct {
	tts Synthesizer
	stt Transcriber
	sms SMSSender
}

// NewGateway builds a gateway from the given providers.
func NewGateway(tts Synthesizer, stt Transcriber, sms SMSSender) *Gateway {
	slog.Debug("Voice gateway configured", "tts_set", tts != nil, "stt_set", stt != nil, "sms_set", sms != nil)
	return &Gateway{tts: tts, stt: stt, sms: sms}
}

// TextToSpeech synthesizes text. On failure the value is an empty, non-nil slice.
func (g *Gateway) TextToSpeech(ctx context.Context, text string) Result[[]byte] {
	start := time.Now()
	var (
		audio []byte
		err   error
	)
	if g.tts == nil {
		err = ErrNotConfigured
	} else {
		audio, err = g.tts.Synthesize(ctx, text)
	}
	metrics.ObserveProvider(metrics.ProviderTTS, start, err)
	if err != nil {
		slog.Error("Gateway.TextToSpeech failed", "error", err, "textLength", len(text))
		return Result[[]byte]{Value: []byte{}, Err: err}
	}
	if audio == nil {
		audio = []byte{}
	}
	return Result[[]byte]{Value: audio}
}

// SpeechToText transcribes audio. On failure the value is the empty string.
func (g *Gateway) SpeechToText(ctx context.Context, audio []byte) Result[string] {
	start := time.Now()
	var (
		text string
		err  error
	)
	if g.stt == nil {
		err = ErrNotConfigured
	} else {
		text, err = g.stt.Transcribe(ctx, audio)
	}
	metrics.ObserveProvider(metrics.ProviderSTT, start, err)
	if err != nil {
		slog.Error("Gateway.SpeechToText failed", "error", err, "bytes", len(audio))
		return Result[string]{Err: err}
	}
	return Result[string]{Value: text}
}

// SendSMS sends message to the phone number to.
func (g *Gateway) SendSMS(ctx context.Context, message, to string) Result[struct{}] {
	start := time.Now()
	var err error
	if g.sms == nil {
		err = ErrNotConfigured
	} else {
		err = g.sms.SendSMS(ctx, to, message)
	}
	metrics.ObserveProvider(metrics.ProviderSMS, start, err)
	if err != nil {
		slog.Error("Gateway.SendSMS failed", "error", err, "to", to)
		return Result[struct{}]{Err: err}
	}
	slog.Debug("Gateway.SendSMS: message sent", "to", to)
	return Result[struct{}]{}
}

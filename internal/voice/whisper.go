package voice

import (
	"context"
)

// Whisper upload metadata; the recorded format is Ogg/Opus.
const (
	whisperFilename    = "speech.ogg"
	whisperContentType = "audio/ogg"
)

// whisperClient is the part of genai.Client used for transcription.
type whisperClient interface {
	Transcribe(ctx context.Context, audio []byte, filename, contentType string) (string, error)
}

// WhisperTranscriber transcribes with OpenAI Whisper.
type WhisperTranscriber struct {
	client whisperClient
}

// NewWhisperTranscriber wraps a GenAI client.
func NewWhisperTranscriber(client whisperClient) *WhisperTranscriber {
	return &WhisperTranscriber{client: client}
}

func (w *WhisperTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if w.client == nil {
		return "", ErrNotConfigured
	}
	return w.client.Transcribe(ctx, audio, whisperFilename, whisperContentType)
}

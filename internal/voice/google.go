package voice

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
)

// Google Speech defaults, for Opus-in-Ogg voice notes.
const (
	DefaultSTTLanguage  = "en-US"
	DefaultSampleRateHz = 48000
	DefaultSTTEncoding  = speechpb.RecognitionConfig_OGG_OPUS
)

// recognizeClient is the part of the Speech client used for synchronous recognition.
type recognizeClient interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
	Close() error
}

// GoogleSTTOpts holds configuration for the Google transcriber.
type GoogleSTTOpts struct {
	LanguageCode    string
	SampleRateHertz int32
	Encoding        speechpb.RecognitionConfig_AudioEncoding
	CredentialsFile string
}

// GoogleSTTOption defines a configuration option for the Google transcriber.
type GoogleSTTOption func(*GoogleSTTOpts)

func WithLanguageCode(code string) GoogleSTTOption {
	return func(o *GoogleSTTOpts) { o.LanguageCode = code }
}

func WithSampleRate(hz int32) GoogleSTTOption {
	return func(o *GoogleSTTOpts) { o.SampleRateHertz = hz }
}

func WithEncoding(enc speechpb.RecognitionConfig_AudioEncoding) GoogleSTTOption {
	return func(o *GoogleSTTOpts) { o.Encoding = enc }
}

func WithSTTCredentialsFile(path string) GoogleSTTOption {
	return func(o *GoogleSTTOpts) { o.CredentialsFile = path }
}

// GoogleTranscriber uses Google Cloud Speech-to-Text.
type GoogleTranscriber struct {
	client recognizeClient
	config *speechpb.RecognitionConfig
}

// NewGoogleTranscriber creates a Speech client using Application Default
// Credentials unless a credentials file is given. The language falls back to
// STT_LANGUAGE, then en-US.
func NewGoogleTranscriber(ctx context.Context, opts ...GoogleSTTOption) (*GoogleTranscriber, error) {
	cfg := GoogleSTTOpts{Encoding: DefaultSTTEncoding}
	for _, opt := range opts {
		opt(&cfg)
	}
	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := speech.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	return newGoogleTranscriber(client, cfg), nil
}

func newGoogleTranscriber(client recognizeClient, cfg GoogleSTTOpts) *GoogleTranscriber {
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = os.Getenv("STT_LANGUAGE")
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = DefaultSTTLanguage
	}
	if cfg.SampleRateHertz == 0 {
		cfg.SampleRateHertz = DefaultSampleRateHz
	}
	if cfg.Encoding == speechpb.RecognitionConfig_ENCODING_UNSPECIFIED {
		cfg.Encoding = DefaultSTTEncoding
	}
	slog.Debug("Google STT config loaded", "language", cfg.LanguageCode, "sampleRate", cfg.SampleRateHertz, "encoding", cfg.Encoding.String())
	return &GoogleTranscriber{
		client: client,
		config: &speechpb.RecognitionConfig{
			Encoding:                   cfg.Encoding,
			SampleRateHertz:            cfg.SampleRateHertz,
			LanguageCode:               cfg.LanguageCode,
			EnableAutomaticPunctuation: true,
		},
	}
}

// Transcribe sends audio for synchronous recognition and joins the best
// alternative of every result.
func (g *GoogleTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	resp, err := g.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: g.config,
		Audio:  &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: audio}},
	})
	if err != nil {
		return "", fmt.Errorf("speech recognition failed: %w", err)
	}

	parts := make([]string, 0, len(resp.GetResults()))
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if t := strings.TrimSpace(alts[0].GetTranscript()); t != "" {
			parts = append(parts, t)
		}
	}
	text := strings.Join(parts, " ")
	slog.Debug("GoogleTranscriber.Transcribe: recognized", "bytes", len(audio), "results", len(parts), "textLength", len(text))
	return text, nil
}

// Close releases the Speech client connection.
func (g *GoogleTranscriber) Close() error {
	return g.client.Close()
}

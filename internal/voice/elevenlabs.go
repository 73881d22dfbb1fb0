package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// ElevenLabs defaults.
const (
	DefaultElevenLabsBaseURL = "https://api.elevenlabs.io"
	// DefaultVoiceID is the premade "Rachel" voice. The API addresses voices by ID only.
	DefaultVoiceID      = "21m00Tcm4TlvDq8ikWAM"
	DefaultModelID      = "eleven_multilingual_v2"
	DefaultOutputFormat = "mp3_44100_128"
	DefaultTTSTimeout   = 30 * time.Second
)

var ErrMissingElevenLabsKey = errors.New("ELEVENLABS_API_KEY not set")

// VoiceSettings tunes the synthesized voice.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// DefaultVoiceSettings is a calm, clear reading voice.
var DefaultVoiceSettings = VoiceSettings{
	Stability:       0.7,
	SimilarityBoost: 0.7,
	Style:           0.2,
	UseSpeakerBoost: true,
}

// ElevenLabsOpts holds configuration for the ElevenLabs synthesizer.
type ElevenLabsOpts struct {
	APIKey     string
	VoiceID    string
	ModelID    string
	BaseURL    string
	HTTPClient *http.Client
	Settings   *VoiceSettings
}

// ElevenLabsOption defines a configuration option for the ElevenLabs synthesizer.
type ElevenLabsOption func(*ElevenLabsOpts)

func WithElevenLabsAPIKey(key string) ElevenLabsOption {
	return func(o *ElevenLabsOpts) { o.APIKey = key }
}

func WithVoiceID(id string) ElevenLabsOption {
	return func(o *ElevenLabsOpts) { o.VoiceID = id }
}

func WithModelID(id string) ElevenLabsOption {
	return func(o *ElevenLabsOpts) { o.ModelID = id }
}

func WithElevenLabsBaseURL(base string) ElevenLabsOption {
	return func(o *ElevenLabsOpts) { o.BaseURL = base }
}

func WithElevenLabsHTTPClient(c *http.Client) ElevenLabsOption {
	return func(o *ElevenLabsOpts) { o.HTTPClient = c }
}

func WithVoiceSettings(s VoiceSettings) ElevenLabsOption {
	return func(o *ElevenLabsOpts) { o.Settings = &s }
}

// ElevenLabs synthesizes speech with the ElevenLabs streaming endpoint.
type ElevenLabs struct {
	apiKey   string
	voiceID  string
	modelID  string
	baseURL  string
	http     *http.Client
	settings VoiceSettings
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// NewElevenLabs creates a synthesizer. Unset options fall back to
// ELEVENLABS_API_KEY, ELEVENLABS_VOICE_ID and ELEVENLABS_MODEL_ID.
func NewElevenLabs(opts ...ElevenLabsOption) (*ElevenLabs, error) {
	var cfg ElevenLabsOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("ELEVENLABS_API_KEY")
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = os.Getenv("ELEVENLABS_VOICE_ID")
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = DefaultVoiceID
	}
	if cfg.ModelID == "" {
		cfg.ModelID = os.Getenv("ELEVENLABS_MODEL_ID")
	}
	if cfg.ModelID == "" {
		cfg.ModelID = DefaultModelID
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultElevenLabsBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTTSTimeout}
	}
	settings := DefaultVoiceSettings
	if cfg.Settings != nil {
		settings = *cfg.Settings
	}
	slog.Debug("ElevenLabs config loaded", "APIKey_set", cfg.APIKey != "", "voiceID", cfg.VoiceID, "modelID", cfg.ModelID)
	if cfg.APIKey == "" {
		return nil, ErrMissingElevenLabsKey
	}

	return &ElevenLabs{
		apiKey:   cfg.APIKey,
		voiceID:  cfg.VoiceID,
		modelID:  cfg.ModelID,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		http:     cfg.HTTPClient,
		settings: settings,
	}, nil
}

// Synthesize streams MP3 audio for text and returns the whole payload.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(ttsRequest{Text: text, ModelID: e.modelID, VoiceSettings: e.settings})
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s/stream?output_format=%s",
		e.baseURL, url.PathEscape(e.voiceID), DefaultOutputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build tts request: %w", err)
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tts request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, fmt.Errorf("failed to read tts stream: %w", err)
	}
	slog.Debug("ElevenLabs.Synthesize: audio received", "bytes", buf.Len(), "voiceID", e.voiceID)
	return buf.Bytes(), nil
}

package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/BTreeMap/ReliefPipe/internal/models"
)

// DefaultRasaURL is the address of a locally running Rasa server.
const DefaultRasaURL = "http://localhost:5005"

// RasaOpts holds configuration for the Rasa parser.
type RasaOpts struct {
	URL        string
	HTTPClient *http.Client
}

// RasaOption defines a configuration option for the Rasa parser.
type RasaOption func(*RasaOpts)

// WithRasaURL sets the Rasa server base URL.
func WithRasaURL(url string) RasaOption {
	return func(o *RasaOpts) { o.URL = url }
}

// WithRasaHTTPClient overrides the HTTP client used for Rasa calls.
func WithRasaHTTPClient(c *http.Client) RasaOption {
	return func(o *RasaOpts) { o.HTTPClient = c }
}

// RasaParser classifies text with a Rasa NLU server.
type RasaParser struct {
	baseURL string
	http    *http.Client
}

type rasaParseRequest struct {
	Text string `json:"text"`
}

type rasaParseResponse struct {
	Intent struct {
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
	} `json:"intent"`
	Entities []struct {
		Entity string `json:"entity"`
		Value  any    `json:"value"`
	} `json:"entities"`
}

type rasaLoadModelRequest struct {
	ModelFile string `json:"model_file"`
}

// NewRasaParser creates a parser for the Rasa server at RASA_URL unless overridden.
func NewRasaParser(opts ...RasaOption) *RasaParser {
	cfg := RasaOpts{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.URL == "" {
		cfg.URL = os.Getenv("RASA_URL")
	}
	if cfg.URL == "" {
		cfg.URL = DefaultRasaURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	slog.Debug("Rasa parser config loaded", "url", cfg.URL)
	return &RasaParser{baseURL: strings.TrimRight(cfg.URL, "/"), http: cfg.HTTPClient}
}

// LoadModel asks the Rasa server to replace its active model with the one at path.
func (p *RasaParser) LoadModel(ctx context.Context, path string) error {
	if strings.TrimSpace(path) == "" {
		return ErrMissingModel
	}
	body, err := json.Marshal(rasaLoadModelRequest{ModelFile: path})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, p.baseURL+"/model", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build load model request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("failed to load model: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	slog.Info("RasaParser.LoadModel: model loaded", "path", path)
	return nil
}

// ParseIntent sends text to the Rasa parse endpoint. Blank text is unknown
// without a network call.
func (p *RasaParser) ParseIntent(ctx context.Context, text string) (models.Intent, models.Entities, error) {
	if isBlank(text) {
		return models.IntentUnknown, models.Entities{}, nil
	}
	body, err := json.Marshal(rasaParseRequest{Text: text})
	if err != nil {
		return models.IntentUnknown, models.Entities{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/model/parse", bytes.NewReader(body))
	if err != nil {
		return models.IntentUnknown, models.Entities{}, fmt.Errorf("failed to build parse request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return models.IntentUnknown, models.Entities{}, fmt.Errorf("rasa parse failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.IntentUnknown, models.Entities{}, fmt.Errorf("rasa parse failed: status %d", resp.StatusCode)
	}

	var parsed rasaParseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return models.IntentUnknown, models.Entities{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	entities := models.Entities{}
	for _, e := range parsed.Entities {
		if e.Entity == "" {
			continue
		}
		// Later duplicates overwrite earlier ones.
		entities[e.Entity] = entityString(e.Value)
	}
	intent := normalizeIntent(parsed.Intent.Name)
	slog.Debug("RasaParser.ParseIntent: classified", "intent", intent, "confidence", parsed.Intent.Confidence, "entityCount", len(entities))
	return intent, entities, nil
}

// entityString renders an entity value, which Rasa may return as a non-string.
func entityString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}

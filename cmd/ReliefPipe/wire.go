package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/BTreeMap/ReliefPipe/internal/fema"
	"github.com/BTreeMap/ReliefPipe/internal/forms"
	"github.com/BTreeMap/ReliefPipe/internal/genai"
	"github.com/BTreeMap/ReliefPipe/internal/messaging"
	"github.com/BTreeMap/ReliefPipe/internal/nlp"
	"github.com/BTreeMap/ReliefPipe/internal/store"
	"github.com/BTreeMap/ReliefPipe/internal/twiliosms"
	"github.com/BTreeMap/ReliefPipe/internal/voice"
)

// components holds everything the orchestrator depends on.
type components struct {
	parser  nlp.Parser
	gateway *voice.Gateway
	forms   *forms.Processor
	status  *fema.Client

	sms     *messaging.SMSService
	closers []io.Closer
}

// Close stops the SMS service and releases provider clients.
func (c *components) Close() {
	if c.sms != nil {
		c.sms.Stop()
	}
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil {
			slog.Warn("components.Close: failed to close provider client", "error", err)
		}
	}
}

// buildComponents constructs every provider client. The speech and SMS
// providers are optional: a provider that cannot be built is left out and its
// operation falls back at turn time.
func buildComponents(ctx context.Context, config Config, turnLog store.Store) (*components, error) {
	c := &components{}

	var genaiClient *genai.Client
	if config.OpenAIKey != "" {
		client, err := genai.NewClient(genai.WithAPIKey(config.OpenAIKey))
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
		}
		genaiClient = client
	}

	parser, err := buildParser(ctx, config, genaiClient)
	if err != nil {
		return nil, err
	}
	c.parser = parser

	processor, err := buildFormProcessor(ctx, config, c)
	if err != nil {
		return nil, err
	}
	c.forms = processor

	status, err := buildStatusClient(ctx, config, c)
	if err != nil {
		return nil, err
	}
	c.status = status

	var tts voice.Synthesizer
	if el, err := voice.NewElevenLabs(); err != nil {
		slog.Warn("Text-to-speech disabled", "error", err)
	} else {
		tts = el
	}

	stt := buildTranscriber(ctx, config, genaiClient, c)

	var sms voice.SMSSender
	if sender := buildSMSSender(ctx, config); sender != nil {
		svc, err := messaging.NewSMSService(sender, turnLog)
		if err != nil {
			return nil, fmt.Errorf("failed to create SMS service: %w", err)
		}
		c.sms = svc
		sms = svc
	}

	c.gateway = voice.NewGateway(tts, stt, sms)
	return c, nil
}

// buildParser selects the intent classifier.
func buildParser(ctx context.Context, config Config, genaiClient *genai.Client) (nlp.Parser, error) {
	switch config.IntentProvider {
	case IntentProviderOpenAI:
		if genaiClient == nil {
			return nil, fmt.Errorf("intent provider %q requires OPENAI_API_KEY", config.IntentProvider)
		}
		return nlp.NewOpenAIParser(genaiClient)
	case IntentProviderRasa, "":
		parser := nlp.NewRasaParser()
		if config.RasaModelPath != "" {
			if err := parser.LoadModel(ctx, config.RasaModelPath); err != nil {
				return nil, fmt.Errorf("failed to load Rasa model: %w", err)
			}
		}
		return parser, nil
	default:
		return nil, fmt.Errorf("unknown intent provider %q", config.IntentProvider)
	}
}

// buildFormProcessor loads the form registry and, when Document AI is
// configured, the document extractor.
func buildFormProcessor(ctx context.Context, config Config, c *components) (*forms.Processor, error) {
	registry := forms.DefaultRegistry()
	if config.FormsFile != "" {
		loaded, err := forms.LoadRegistry(config.FormsFile)
		if err != nil {
			return nil, err
		}
		registry = loaded
	}

	var extractor forms.Extractor
	var opts []forms.DocumentAIOption
	if config.GoogleCredsFile != "" {
		opts = append(opts, forms.WithCredentialsFile(config.GoogleCredsFile))
	}
	if docAI, err := forms.NewDocumentAIExtractor(ctx, opts...); err != nil {
		slog.Warn("Document extraction disabled", "error", err)
	} else {
		extractor = docAI
		c.closers = append(c.closers, docAI)
	}
	return forms.NewProcessor(registry, extractor, forms.WithDocumentsDir(config.DocumentsDir)), nil
}

// buildStatusClient creates the FEMA status client, with a Redis cache when
// REDIS_ADDR is set.
func buildStatusClient(ctx context.Context, config Config, c *components) (*fema.Client, error) {
	var opts []fema.Option
	if config.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: config.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("Status cache disabled, Redis unreachable", "addr", config.RedisAddr, "error", err)
			rdb.Close()
		} else {
			opts = append(opts, fema.WithCache(fema.NewRedisCache(rdb, config.StatusCacheTTL)))
			c.closers = append(c.closers, rdb)
		}
	}
	client, err := fema.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create status client: %w", err)
	}
	return client, nil
}

// buildTranscriber selects the speech-to-text provider. It returns nil when
// the provider cannot be built.
func buildTranscriber(ctx context.Context, config Config, genaiClient *genai.Client, c *components) voice.Transcriber {
	switch config.STTProvider {
	case STTProviderWhisper:
		if genaiClient == nil {
			slog.Warn("Speech-to-text disabled, whisper requires OPENAI_API_KEY")
			return nil
		}
		return voice.NewWhisperTranscriber(genaiClient)
	case STTProviderGoogle, "":
		var opts []voice.GoogleSTTOption
		if config.GoogleCredsFile != "" {
			opts = append(opts, voice.WithSTTCredentialsFile(config.GoogleCredsFile))
		}
		g, err := voice.NewGoogleTranscriber(ctx, opts...)
		if err != nil {
			slog.Warn("Speech-to-text disabled", "provider", STTProviderGoogle, "error", err)
			return nil
		}
		c.closers = append(c.closers, g)
		return g
	default:
		slog.Warn("Speech-to-text disabled, unknown provider", "provider", config.STTProvider)
		return nil
	}
}

// buildSMSSender selects the SMS transport. It returns nil when the
// transport cannot be built.
func buildSMSSender(ctx context.Context, config Config) messaging.SMSSender {
	switch config.SMSProvider {
	case SMSProviderSNS:
		sender, err := messaging.NewSNSSender(ctx, config.AWSRegion)
		if err != nil {
			slog.Warn("SMS disabled", "provider", SMSProviderSNS, "error", err)
			return nil
		}
		return sender
	case SMSProviderTwilio, "":
		client, err := twiliosms.NewClient(twiliosms.WithTimeout(config.ProviderTimeout))
		if err != nil {
			slog.Warn("SMS disabled", "provider", SMSProviderTwilio, "error", err)
			return nil
		}
		return client
	default:
		slog.Warn("SMS disabled, unknown provider", "provider", config.SMSProvider)
		return nil
	}
}

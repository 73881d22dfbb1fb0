// Package api provides the HTTP entry points for ReliefPipe.
//
// It exposes the Twilio SMS webhook, a generic processing endpoint for text and
// audio turns, the turn log, a health check and Prometheus metrics. Every
// request runs one conversation turn through the orchestrator.
//
// /turns and /receipts return applicants' phone numbers and message text.
// They are an internal operator surface: configure an admin token, or bind the
// server to a private address, before exposing it. The Twilio webhook checks
// X-Twilio-Signature whenever an auth token is configured.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	twilioclient "github.com/twilio/twilio-go/client"

	"github.com/BTreeMap/ReliefPipe/internal/audio"
	"github.com/BTreeMap/ReliefPipe/internal/flow"
	"github.com/BTreeMap/ReliefPipe/internal/models"
)

// Server defaults.
const (
	DefaultAddr            = ":8080"
	DefaultShutdownTimeout = 5 * time.Second
	DefaultReadTimeout     = 30 * time.Second
	// providerCallsPerTurn bounds the sequential provider calls in one turn:
	// transcription or SMS, classification, handler lookup and synthesis, plus one.
	providerCallsPerTurn = 5
	// writeTimeoutHeadroom covers local work and writing the reply.
	writeTimeoutHeadroom = 10 * time.Second
	// DefaultMaxBodyBytes caps request bodies, which may carry raw audio.
	DefaultMaxBodyBytes = 10 << 20
)

// DefaultWriteTimeout fits a worst-case turn at the default provider timeout.
var DefaultWriteTimeout = WriteTimeoutFor(flow.DefaultProviderTimeout)

var ErrMissingDependency = errors.New("api server requires an orchestrator and an audio store")

// WriteTimeoutFor returns a response write timeout that outlasts a turn whose
// provider calls each take up to providerTimeout.
func WriteTimeoutFor(providerTimeout time.Duration) time.Duration {
	if providerTimeout <= 0 {
		providerTimeout = flow.DefaultProviderTimeout
	}
	return providerCallsPerTurn*providerTimeout + writeTimeoutHeadroom
}

// signatureValidator checks Twilio request signatures.
type signatureValidator interface {
	Validate(url string, params map[string]string, expectedSignature string) bool
}

// TurnProcessor runs one conversation turn.
type TurnProcessor interface {
	Process(ctx context.Context, inputType models.InputType, input []byte, phoneNumber string) flow.Reply
}

// TurnLog lists recorded turns and receipts.
type TurnLog interface {
	GetTurns(limit int) ([]models.TurnRecord, error)
	GetReceipts() ([]models.Receipt, error)
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr            string
	TurnLog         TurnLog
	MaxBodyBytes    int64
	ProviderTimeout time.Duration
	TwilioAuthToken string
	PublicURL       string
	AdminToken      string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithTurnLog exposes the turn log on /turns and /receipts.
func WithTurnLog(l TurnLog) Option {
	return func(o *Opts) { o.TurnLog = l }
}

// WithMaxBodyBytes caps request body size.
func WithMaxBodyBytes(n int64) Option {
	return func(o *Opts) { o.MaxBodyBytes = n }
}

// WithProviderTimeout sizes the write timeout for the orchestrator's per-call timeout.
func WithProviderTimeout(d time.Duration) Option {
	return func(o *Opts) { o.ProviderTimeout = d }
}

// WithTwilioAuthToken enables X-Twilio-Signature checks on the webhook.
func WithTwilioAuthToken(token string) Option {
	return func(o *Opts) { o.TwilioAuthToken = token }
}

// WithPublicURL sets the externally visible base URL Twilio signs, such as
// https://relief.example.org. Without it the URL is rebuilt from the request.
func WithPublicURL(base string) Option {
	return func(o *Opts) { o.PublicURL = strings.TrimRight(base, "/") }
}

// WithAdminToken requires "Authorization: Bearer <token>" on /turns and /receipts.
func WithAdminToken(token string) Option {
	return func(o *Opts) { o.AdminToken = token }
}

// Server handles HTTP requests.
type Server struct {
	orch         TurnProcessor
	audio        audio.Store
	turnLog      TurnLog
	addr         string
	maxBodyBytes int64
	writeTimeout time.Duration
	validator    signatureValidator
	publicURL    string
	adminToken   string
	router       chi.Router
}

// NewServer builds the router. The turn log is optional.
func NewServer(orch TurnProcessor, audioStore audio.Store, opts ...Option) (*Server, error) {
	if orch == nil || audioStore == nil {
		return nil, ErrMissingDependency
	}
	cfg := Opts{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	s := &Server{
		orch:         orch,
		audio:        audioStore,
		turnLog:      cfg.TurnLog,
		addr:         cfg.Addr,
		maxBodyBytes: cfg.MaxBodyBytes,
		writeTimeout: WriteTimeoutFor(cfg.ProviderTimeout),
		publicURL:    cfg.PublicURL,
		adminToken:   cfg.AdminToken,
	}
	if cfg.TwilioAuthToken != "" {
		v := twilioclient.NewRequestValidator(cfg.TwilioAuthToken)
		s.validator = &v
	}
	s.router = s.routes()
	slog.Debug("API server configured",
		"addr", s.addr,
		"turnLog_set", s.turnLog != nil,
		"writeTimeout", s.writeTimeout,
		"twilioSignature_set", s.validator != nil,
		"publicURL", s.publicURL,
		"adminToken_set", s.adminToken != "")
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.limitBody)

	r.With(s.verifyTwilioSignature).Post("/webhook/twilio", s.twilioWebhookHandler)
	r.Post("/process", s.processHandler)
	r.Group(func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Get("/turns", s.turnsHandler)
		r.Get("/receipts", s.receiptsHandler)
	})
	r.Get("/health", s.healthHandler)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Handler returns the HTTP handler for the server's routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// WriteTimeout returns the HTTP write timeout used by Run.
func (s *Server) WriteTimeout() time.Duration {
	return s.writeTimeout
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: s.writeTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("ReliefPipe API listening", "addr", s.addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
		slog.Info("Server.Run: shutting down", "reason", ctx.Err())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server.Run: graceful shutdown did not complete", "error", err)
			if closeErr := srv.Close(); closeErr != nil {
				slog.Error("Server.Run: failed to close server", "error", closeErr)
			}
			return err
		}
		slog.Info("Server.Run: stopped gracefully")
		return nil
	}
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// verifyTwilioSignature rejects webhook calls whose X-Twilio-Signature does
// not match the form parameters. It passes everything through when no auth
// token is configured.
func (s *Server) verifyTwilioSignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.validator == nil {
			next.ServeHTTP(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			slog.Warn("Server.verifyTwilioSignature: failed to parse form", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid form body"))
			return
		}
		params := make(map[string]string, len(r.PostForm))
		for k, v := range r.PostForm {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}
		signature := r.Header.Get("X-Twilio-Signature")
		if signature == "" || !s.validator.Validate(s.webhookURL(r), params, signature) {
			slog.Warn("Server.verifyTwilioSignature: rejected webhook call", "remoteAddr", r.RemoteAddr, "signature_set", signature != "")
			writeJSONResponse(w, http.StatusForbidden, models.Error("Invalid Twilio signature"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// webhookURL is the URL Twilio signed: the public base when configured,
// otherwise the request's scheme, host and URI.
func (s *Server) webhookURL(r *http.Request) string {
	if s.publicURL != "" {
		return s.publicURL + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// requireAdmin guards the turn log with a bearer token when one is configured.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="reliefpipe"`)
			writeJSONResponse(w, http.StatusUnauthorized, models.Error("Unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

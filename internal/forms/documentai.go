package forms

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
)

// DefaultDocumentAILocation is the processor region used when none is configured.
const DefaultDocumentAILocation = "us"

// processClient is the subset of the Document AI client used by the extractor.
type processClient interface {
	ProcessDocument(ctx context.Context, req *documentaipb.ProcessRequest, opts ...gax.CallOption) (*documentaipb.ProcessResponse, error)
	Close() error
}

// DocumentAIOpts holds configuration for the Document AI extractor.
type DocumentAIOpts struct {
	ProjectID       string
	Location        string
	ProcessorID     string
	CredentialsFile string
}

// DocumentAIOption defines a configuration option for the Document AI extractor.
type DocumentAIOption func(*DocumentAIOpts)

// WithProjectID sets the Google Cloud project that owns the processor.
func WithProjectID(id string) DocumentAIOption {
	return func(o *DocumentAIOpts) { o.ProjectID = id }
}

// WithLocation sets the processor region (e.g. "us" or "eu").
func WithLocation(location string) DocumentAIOption {
	return func(o *DocumentAIOpts) { o.Location = location }
}

// WithProcessorID sets the Document AI processor identifier.
func WithProcessorID(id string) DocumentAIOption {
	return func(o *DocumentAIOpts) { o.ProcessorID = id }
}

// WithCredentialsFile uses a service-account JSON file instead of application default credentials.
func WithCredentialsFile(path string) DocumentAIOption {
	return func(o *DocumentAIOpts) { o.CredentialsFile = path }
}

// DocumentAIExtractor extracts form fields with Google Cloud Document AI.
type DocumentAIExtractor struct {
	client        processClient
	processorName string
}

// NewDocumentAIExtractor creates an extractor bound to one Document AI processor.
// Unset options fall back to GOOGLE_CLOUD_PROJECT, DOCUMENTAI_LOCATION and DOCUMENTAI_PROCESSOR_ID.
func NewDocumentAIExtractor(ctx context.Context, opts ...DocumentAIOption) (*DocumentAIExtractor, error) {
	var cfg DocumentAIOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ProjectID == "" {
		cfg.ProjectID = os.Getenv("GOOGLE_CLOUD_PROJECT")
	}
	if cfg.Location == "" {
		cfg.Location = os.Getenv("DOCUMENTAI_LOCATION")
	}
	if cfg.Location == "" {
		cfg.Location = DefaultDocumentAILocation
	}
	if cfg.ProcessorID == "" {
		cfg.ProcessorID = os.Getenv("DOCUMENTAI_PROCESSOR_ID")
	}
	slog.Debug("DocumentAIExtractor config loaded",
		"project_set", cfg.ProjectID != "",
		"location", cfg.Location,
		"processor_set", cfg.ProcessorID != "",
		"credentials_file_set", cfg.CredentialsFile != "")

	if cfg.ProjectID == "" || cfg.ProcessorID == "" {
		return nil, fmt.Errorf("document AI project ID and processor ID must be provided")
	}

	clientOpts := []option.ClientOption{
		option.WithEndpoint(fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)),
	}
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := documentai.NewDocumentProcessorClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create document AI client: %w", err)
	}
	return newDocumentAIExtractor(client, ProcessorName(cfg.ProjectID, cfg.Location, cfg.ProcessorID)), nil
}

func newDocumentAIExtractor(client processClient, processorName string) *DocumentAIExtractor {
	return &DocumentAIExtractor{client: client, processorName: processorName}
}

// ProcessorName builds the fully qualified processor resource name.
func ProcessorName(projectID, location, processorID string) string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s", projectID, location, processorID)
}

// Extract sends the raw document to the processor and maps each detected
// entity type to its mention text. Nested properties are flattened; when a
// type repeats, the last occurrence wins.
func (e *DocumentAIExtractor) Extract(ctx context.Context, content []byte, mimeType string) (map[string]string, error) {
	req := &documentaipb.ProcessRequest{
		Name: e.processorName,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  content,
				MimeType: mimeType,
			},
		},
	}
	resp, err := e.client.ProcessDocument(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("process document: %w", err)
	}

	fields := make(map[string]string)
	collectEntities(resp.GetDocument().GetEntities(), fields)
	slog.Debug("DocumentAIExtractor.Extract: entities mapped", "processor", e.processorName, "count", len(fields))
	return fields, nil
}

func collectEntities(entities []*documentaipb.Document_Entity, into map[string]string) {
	for _, ent := range entities {
		if ent.GetType() != "" {
			into[ent.GetType()] = ent.GetMentionText()
		}
		collectEntities(ent.GetProperties(), into)
	}
}

// Close releases the underlying client connection.
func (e *DocumentAIExtractor) Close() error {
	return e.client.Close()
}

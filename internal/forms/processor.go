package forms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BTreeMap/ReliefPipe/internal/metrics"
	"github.com/BTreeMap/ReliefPipe/internal/models"
)

// DefaultMIMEType is used when a document's extension does not identify its type.
const DefaultMIMEType = "application/pdf"

// proofOfLossField is the field whose presence marks a document as an IA form.
const proofOfLossField = "proof_of_loss"

// DefaultDocumentsDir is where submitted documents are read from unless
// configured otherwise.
const DefaultDocumentsDir = "documents"

var (
	ErrNoDocumentPath     = errors.New("no document path provided")
	ErrPathOutsideRoot    = errors.New("document path is outside the documents folder")
	ErrDocumentUnreadable = errors.New("document could not be read")
)

// Extractor detects form fields in a document. The returned map is keyed by
// detected field type with the field's text content as value.
type Extractor interface {
	Extract(ctx context.Context, content []byte, mimeType string) (map[string]string, error)
}

// ProcessorOpts holds configuration options for the Processor.
type ProcessorOpts struct {
	DocumentsDir string
}

// ProcessorOption defines a configuration option for the Processor.
type ProcessorOption func(*ProcessorOpts)

// WithDocumentsDir confines document reads to dir.
func WithDocumentsDir(dir string) ProcessorOption {
	return func(o *ProcessorOpts) { o.DocumentsDir = dir }
}

// Processor starts form sessions and validates submitted documents.
type Processor struct {
	registry  *Registry
	extractor Extractor
	docsDir   string
	// readFile reads a path relative to docsDir.
	readFile func(rel string) ([]byte, error)
}

// NewProcessor creates a Processor over an immutable registry. Documents are
// only read from inside the documents directory (DefaultDocumentsDir unless
// WithDocumentsDir is given).
func NewProcessor(registry *Registry, extractor Extractor, opts ...ProcessorOption) *Processor {
	if registry == nil {
		registry = DefaultRegistry()
	}
	var cfg ProcessorOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DocumentsDir == "" {
		cfg.DocumentsDir = DefaultDocumentsDir
	}
	docsDir, err := filepath.Abs(cfg.DocumentsDir)
	if err != nil {
		slog.Warn("NewProcessor: failed to resolve documents directory", "dir", cfg.DocumentsDir, "error", err)
		docsDir = filepath.Clean(cfg.DocumentsDir)
	}
	slog.Debug("Document processor configured", "documentsDir", docsDir, "extractor_set", extractor != nil)

	p := &Processor{
		registry:  registry,
		extractor: extractor,
		docsDir:   docsDir,
	}
	p.readFile = p.readFromRoot
	return p
}

// Registry returns the registry the processor validates against.
func (p *Processor) Registry() *Registry {
	return p.registry
}

// StartForm returns the list of fields the user must provide for formID, or
// an instruction naming the valid identifiers when formID is not registered.
func (p *Processor) StartForm(formID string) string {
	def, ok := p.registry.Get(formID)
	if !ok {
		slog.Debug("Processor.StartForm: unknown form requested", "formID", formID)
		return p.unknownFormMessage()
	}
	slog.Debug("Processor.StartForm: starting form", "formID", formID, "fields", len(def.Fields))
	return fmt.Sprintf("Starting %s. Please provide: %s.", def.ID, strings.Join(def.Fields, ", "))
}

func (p *Processor) unknownFormMessage() string {
	ids := p.registry.IDs()
	choices := ids[0]
	if len(ids) > 1 {
		choices = strings.Join(ids[:len(ids)-1], ", ") + " or " + ids[len(ids)-1]
	}
	return fmt.Sprintf("Unknown form. Try %s.", choices)
}

// ProcessDocument extracts the fields of the document at path and reports
// which required fields are missing. formHint selects the form explicitly
// when it names a registered form; otherwise the form is inferred from the
// detected fields. Extraction failures are reported in the returned text.
func (p *Processor) ProcessDocument(ctx context.Context, path, formHint string) string {
	fields, err := p.extract(ctx, path)
	if err != nil {
		slog.Error("Processor.ProcessDocument: extraction failed", "path", path, "error", err)
		return fmt.Sprintf("Document AI error: %v", userFacing(err))
	}

	formID := p.resolveForm(formHint, fields)
	def, ok := p.registry.Get(formID)
	if !ok {
		slog.Error("Processor.ProcessDocument: inferred form not registered", "formID", formID)
		return fmt.Sprintf("Document AI error: form %s is not registered", formID)
	}

	missing := MissingFields(def, fields)
	if len(missing) > 0 {
		slog.Info("Processor.ProcessDocument: document incomplete", "formID", formID, "missing", missing)
		return fmt.Sprintf("Missing fields: %s.", strings.Join(missing, ", "))
	}
	slog.Info("Processor.ProcessDocument: document complete", "formID", formID, "path", path)
	return fmt.Sprintf("Document processed for %s successfully.", formID)
}

func (p *Processor) extract(ctx context.Context, path string) (map[string]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrNoDocumentPath
	}
	if p.extractor == nil {
		return nil, errors.New("document extractor not configured")
	}
	rel, err := p.resolvePath(path)
	if err != nil {
		return nil, err
	}
	content, err := p.readFile(rel)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDocumentUnreadable, err)
	}

	start := time.Now()
	fields, err := p.extractor.Extract(ctx, content, mimeTypeFor(path))
	metrics.ObserveProvider(metrics.ProviderDocumentAI, start, err)
	if err != nil {
		return nil, err
	}
	slog.Debug("Processor.extract: fields detected", "path", path, "count", len(fields))
	return fields, nil
}

// resolvePath maps a user-supplied path to a path relative to the documents
// directory. Relative paths are taken from the documents directory; absolute
// paths must already lie inside it.
func (p *Processor) resolvePath(path string) (string, error) {
	candidate := filepath.Clean(path)
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(p.docsDir, candidate)
	}
	rel, err := filepath.Rel(p.docsDir, candidate)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		slog.Warn("Processor.resolvePath: rejected document path", "path", path, "documentsDir", p.docsDir)
		return "", ErrPathOutsideRoot
	}
	return rel, nil
}

// readFromRoot reads rel through an os.Root so symlinks cannot leave the
// documents directory.
func (p *Processor) readFromRoot(rel string) ([]byte, error) {
	root, err := os.OpenRoot(p.docsDir)
	if err != nil {
		return nil, err
	}
	defer root.Close()
	f, err := root.Open(rel)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// userFacing strips file system details from errors shown to the user.
func userFacing(err error) error {
	if errors.Is(err, ErrDocumentUnreadable) {
		return ErrDocumentUnreadable
	}
	return err
}

// resolveForm prefers an explicit registered hint; otherwise a detected
// proof_of_loss field means the IA form and anything else the HMA form.
func (p *Processor) resolveForm(formHint string, fields map[string]string) string {
	if formHint != "" && p.registry.Has(formHint) {
		return formHint
	}
	if _, ok := fields[proofOfLossField]; ok {
		return FormIndividualAssistance
	}
	return FormHazardMitigation
}

// MissingFields returns def's required fields absent from detected, in declared order.
func MissingFields(def models.FormDefinition, detected map[string]string) []string {
	var missing []string
	for _, field := range def.Fields {
		if _, ok := detected[field]; !ok {
			missing = append(missing, field)
		}
	}
	return missing
}

func mimeTypeFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return DefaultMIMEType
	}
	mt := mime.TypeByExtension(ext)
	if mt == "" {
		return DefaultMIMEType
	}
	// Drop parameters such as "; charset=utf-8".
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}

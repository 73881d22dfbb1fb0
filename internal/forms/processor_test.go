package forms

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/BTreeMap/ReliefPipe/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExtractor returns canned fields and records what it was asked to extract.
type fakeExtractor struct {
	fields   map[string]string
	err      error
	calls    int
	mimeType string
	content  []byte
}

func (f *fakeExtractor) Extract(ctx context.Context, content []byte, mimeType string) (map[string]string, error) {
	f.calls++
	f.mimeType = mimeType
	f.content = content
	return f.fields, f.err
}

// newDocsProcessor returns a processor confined to a fresh documents directory.
func newDocsProcessor(t *testing.T, ext Extractor) (*Processor, string) {
	t.Helper()
	dir := t.TempDir()
	return NewProcessor(DefaultRegistry(), ext, WithDocumentsDir(dir)), dir
}

func writeDocument(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 test"), 0o600))
	return path
}

func TestStartForm(t *testing.T) {
	p := NewProcessor(DefaultRegistry(), nil)

	assert.Equal(t, "Starting FEMA_IA. Please provide: name, address, proof_of_loss, insurance_info.", p.StartForm("FEMA_IA"))
	assert.Equal(t, "Starting FEMA_HMA. Please provide: project_plan, budget, eligibility.", p.StartForm("FEMA_HMA"))
	assert.Equal(t, "Unknown form. Try FEMA_IA or FEMA_HMA.", p.StartForm("XYZ"))
}

func TestStartFormUnknownWithCustomRegistry(t *testing.T) {
	r, err := NewRegistry(
		models.FormDefinition{ID: "A", Fields: []string{"x"}},
		models.FormDefinition{ID: "B", Fields: []string{"y"}},
		models.FormDefinition{ID: "C", Fields: []string{"z"}},
	)
	require.NoError(t, err)
	p := NewProcessor(r, nil)
	assert.Equal(t, "Unknown form. Try A, B or C.", p.StartForm("D"))

	single, err := NewRegistry(models.FormDefinition{ID: "ONLY", Fields: []string{"x"}})
	require.NoError(t, err)
	assert.Equal(t, "Unknown form. Try ONLY.", NewProcessor(single, nil).StartForm("nope"))
}

func TestProcessDocumentMissingProofOfLoss(t *testing.T) {
	ext := &fakeExtractor{fields: map[string]string{
		"name":           "Jane Doe",
		"address":        "1 Main St",
		"insurance_info": "Policy 123",
	}}
	p, dir := newDocsProcessor(t, ext)

	got := p.ProcessDocument(context.Background(), writeDocument(t, dir, "claim.pdf"), FormIndividualAssistance)
	assert.Equal(t, "Missing fields: proof_of_loss.", got)
	assert.Equal(t, 1, ext.calls)
	assert.Equal(t, "application/pdf", ext.mimeType)
}

func TestProcessDocumentHMASuccess(t *testing.T) {
	ext := &fakeExtractor{fields: map[string]string{
		"project_plan": "Elevate structure",
		"budget":       "$40,000",
		"eligibility":  "Yes",
	}}
	p, dir := newDocsProcessor(t, ext)

	got := p.ProcessDocument(context.Background(), writeDocument(t, dir, "plan.pdf"), "")
	assert.Equal(t, "Document processed for FEMA_HMA successfully.", got)
}

func TestProcessDocumentInfersIAFromProofOfLoss(t *testing.T) {
	ext := &fakeExtractor{fields: map[string]string{
		"proof_of_loss": "Photos attached",
		"address":       "1 Main St",
	}}
	p, dir := newDocsProcessor(t, ext)

	got := p.ProcessDocument(context.Background(), writeDocument(t, dir, "claim.pdf"), "")
	assert.Equal(t, "Missing fields: name, insurance_info.", got, "missing fields are listed in registry order")
}

func TestProcessDocumentHeuristicWithoutHint(t *testing.T) {
	ext := &fakeExtractor{fields: map[string]string{"name": "Jane Doe"}}
	p, dir := newDocsProcessor(t, ext)

	got := p.ProcessDocument(context.Background(), writeDocument(t, dir, "doc.pdf"), "UNREGISTERED")
	assert.Equal(t, "Missing fields: project_plan, budget, eligibility.", got, "unregistered hint falls back to inference")
}

func TestProcessDocumentErrors(t *testing.T) {
	ext := &fakeExtractor{err: errors.New("quota exceeded")}
	p, dir := newDocsProcessor(t, ext)

	assert.Equal(t, "Document AI error: quota exceeded", p.ProcessDocument(context.Background(), writeDocument(t, dir, "doc.pdf"), ""))
	assert.Equal(t, "Document AI error: no document path provided", p.ProcessDocument(context.Background(), "", ""))

	got := p.ProcessDocument(context.Background(), filepath.Join(dir, "missing.pdf"), "")
	assert.Equal(t, "Document AI error: document could not be read", got, "file system details are not echoed")
	assert.Equal(t, 1, ext.calls, "extractor is not called when the file cannot be read")

	unconfigured := NewProcessor(DefaultRegistry(), nil, WithDocumentsDir(dir))
	assert.Equal(t, "Document AI error: document extractor not configured",
		unconfigured.ProcessDocument(context.Background(), writeDocument(t, dir, "doc.pdf"), ""))
}

func TestProcessDocumentMIMEType(t *testing.T) {
	ext := &fakeExtractor{fields: map[string]string{}}
	p, dir := newDocsProcessor(t, ext)

	p.ProcessDocument(context.Background(), writeDocument(t, dir, "scan.png"), "")
	assert.Equal(t, "image/png", ext.mimeType)

	p.ProcessDocument(context.Background(), writeDocument(t, dir, "noext"), "")
	assert.Equal(t, DefaultMIMEType, ext.mimeType)
}

func TestProcessDocumentRelativePath(t *testing.T) {
	ext := &fakeExtractor{fields: map[string]string{"project_plan": "p", "budget": "b", "eligibility": "e"}}
	p, dir := newDocsProcessor(t, ext)
	writeDocument(t, dir, "claims/plan.pdf")

	got := p.ProcessDocument(context.Background(), "claims/plan.pdf", "")
	assert.Equal(t, "Document processed for FEMA_HMA successfully.", got)
	assert.Equal(t, []byte("%PDF-1.4 test"), ext.content)
}

func TestProcessDocumentRejectsPathsOutsideDocumentsDir(t *testing.T) {
	ext := &fakeExtractor{fields: map[string]string{}}
	p, dir := newDocsProcessor(t, ext)

	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("vm\n"), 0o600))
	rel, err := filepath.Rel(dir, secret)
	require.NoError(t, err)

	for _, path := range []string{
		secret,
		rel,
		"../secret.txt",
		"claims/../../secret.txt",
		"/etc/hostname",
		".",
		dir,
	} {
		got := p.ProcessDocument(context.Background(), path, "")
		assert.Equal(t, "Document AI error: document path is outside the documents folder", got, "path %q", path)
	}
	assert.Zero(t, ext.calls, "extractor must never see files outside the documents directory")
}

func TestProcessDocumentSymlinkEscape(t *testing.T) {
	ext := &fakeExtractor{fields: map[string]string{}}
	p, dir := newDocsProcessor(t, ext)

	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("vm\n"), 0o600))
	if err := os.Symlink(filepath.Join(outside, "secret.txt"), filepath.Join(dir, "link.pdf")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	got := p.ProcessDocument(context.Background(), "link.pdf", "")
	assert.Equal(t, "Document AI error: document could not be read", got)
	assert.Zero(t, ext.calls)
}

func TestNewProcessorDefaultDocumentsDir(t *testing.T) {
	p := NewProcessor(nil, nil)
	abs, err := filepath.Abs(DefaultDocumentsDir)
	require.NoError(t, err)
	assert.Equal(t, abs, p.docsDir)
}

func TestMissingFields(t *testing.T) {
	def := models.FormDefinition{ID: "X", Fields: []string{"a", "b", "c"}}
	assert.Equal(t, []string{"a", "c"}, MissingFields(def, map[string]string{"b": "1"}))
	assert.Empty(t, MissingFields(def, map[string]string{"a": "", "b": "", "c": ""}))
}

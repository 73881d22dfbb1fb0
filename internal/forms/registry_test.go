package forms

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BTreeMap/ReliefPipe/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{FormIndividualAssistance, FormHazardMitigation}, r.IDs())

	ia, ok := r.Get(FormIndividualAssistance)
	require.True(t, ok)
	assert.Equal(t, []string{"name", "address", "proof_of_loss", "insurance_info"}, ia.Fields)

	hma, ok := r.Get(FormHazardMitigation)
	require.True(t, ok)
	assert.Equal(t, []string{"project_plan", "budget", "eligibility"}, hma.Fields)
}

func TestRegistryIsImmutable(t *testing.T) {
	fields := []string{"a", "b"}
	r, err := NewRegistry(models.FormDefinition{ID: "X", Fields: fields})
	require.NoError(t, err)

	fields[0] = "mutated"
	got, _ := r.Get("X")
	assert.Equal(t, []string{"a", "b"}, got.Fields, "registry must not alias caller slices")

	got.Fields[1] = "mutated"
	again, _ := r.Get("X")
	assert.Equal(t, []string{"a", "b"}, again.Fields, "Get must return a copy")
}

func TestNewRegistryValidation(t *testing.T) {
	_, err := NewRegistry()
	assert.ErrorIs(t, err, ErrEmptyRegistry)

	_, err = NewRegistry(models.FormDefinition{ID: " ", Fields: []string{"a"}})
	assert.ErrorIs(t, err, ErrEmptyFormID)

	_, err = NewRegistry(models.FormDefinition{ID: "A"})
	assert.ErrorIs(t, err, ErrNoFields)

	_, err = NewRegistry(
		models.FormDefinition{ID: "A", Fields: []string{"x"}},
		models.FormDefinition{ID: "A", Fields: []string{"y"}},
	)
	assert.ErrorIs(t, err, ErrDuplicateFormID)
}

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forms.yaml")
	content := `forms:
  - id: FEMA_IA
    fields: [name, address, proof_of_loss, insurance_info]
  - id: SBA_LOAN
    fields:
      - name
      - tax_return
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	r, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"FEMA_IA", "SBA_LOAN"}, r.IDs())
	loan, ok := r.Get("SBA_LOAN")
	require.True(t, ok)
	assert.Equal(t, []string{"name", "tax_return"}, loan.Fields)
}

func TestLoadRegistryErrors(t *testing.T) {
	_, err := LoadRegistry(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("forms: []\n"), 0o600))
	_, err = LoadRegistry(path)
	assert.ErrorIs(t, err, ErrEmptyRegistry)
}

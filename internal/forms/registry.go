// Package forms implements the document processor for disaster-relief aid forms.
//
// It owns the form registry (which fields each aid form requires), starts form
// sessions by listing those fields, and validates submitted documents against
// the registry using a document-extraction service.
package forms

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BTreeMap/ReliefPipe/internal/models"
	"gopkg.in/yaml.v3"
)

// Built-in FEMA form identifiers.
const (
	// FormIndividualAssistance is FEMA Individuals and Households assistance.
	FormIndividualAssistance = "FEMA_IA"
	// FormHazardMitigation is FEMA Hazard Mitigation Assistance.
	FormHazardMitigation = "FEMA_HMA"
)

var (
	ErrEmptyRegistry   = errors.New("form registry must define at least one form")
	ErrEmptyFormID     = errors.New("form id cannot be empty")
	ErrNoFields        = errors.New("form must declare at least one field")
	ErrDuplicateFormID = errors.New("duplicate form id")
)

// Registry is an immutable set of form definitions. It is built once at
// startup and only read afterwards, so it is safe to share across requests.
type Registry struct {
	forms map[string]models.FormDefinition
	order []string
}

// NewRegistry validates the definitions and returns a registry holding private copies of them.
func NewRegistry(defs ...models.FormDefinition) (*Registry, error) {
	if len(defs) == 0 {
		return nil, ErrEmptyRegistry
	}
	r := &Registry{forms: make(map[string]models.FormDefinition, len(defs))}
	for _, def := range defs {
		id := strings.TrimSpace(def.ID)
		if id == "" {
			return nil, ErrEmptyFormID
		}
		if len(def.Fields) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoFields, id)
		}
		if _, exists := r.forms[id]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateFormID, id)
		}
		fields := make([]string, len(def.Fields))
		copy(fields, def.Fields)
		r.forms[id] = models.FormDefinition{ID: id, Fields: fields}
		r.order = append(r.order, id)
	}
	return r, nil
}

// DefaultRegistry returns the built-in FEMA form definitions.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		models.FormDefinition{ID: FormIndividualAssistance, Fields: []string{"name", "address", "proof_of_loss", "insurance_info"}},
		models.FormDefinition{ID: FormHazardMitigation, Fields: []string{"project_plan", "budget", "eligibility"}},
	)
	if err != nil {
		panic(fmt.Sprintf("invalid built-in form registry: %v", err))
	}
	return r
}

// registryFile is the on-disk YAML layout accepted by LoadRegistry.
type registryFile struct {
	Forms []models.FormDefinition `yaml:"forms"`
}

// LoadRegistry reads form definitions from a YAML file of the form:
//
//	forms:
//	  - id: FEMA_IA
//	    fields: [name, address, proof_of_loss, insurance_info]
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read form registry %s: %w", path, err)
	}
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse form registry %s: %w", path, err)
	}
	r, err := NewRegistry(file.Forms...)
	if err != nil {
		return nil, fmt.Errorf("invalid form registry %s: %w", path, err)
	}
	slog.Debug("Registry.LoadRegistry: loaded form definitions", "path", path, "count", len(r.order))
	return r, nil
}

// Get returns the definition for id. The returned Fields slice is a copy.
func (r *Registry) Get(id string) (models.FormDefinition, bool) {
	def, ok := r.forms[id]
	if !ok {
		return models.FormDefinition{}, false
	}
	fields := make([]string, len(def.Fields))
	copy(fields, def.Fields)
	return models.FormDefinition{ID: def.ID, Fields: fields}, true
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.forms[id]
	return ok
}

// IDs returns the registered form identifiers in declaration order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

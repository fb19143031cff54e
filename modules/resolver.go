// Package modules maps a project's library-construction-method string to
// the realm module that knows how to process it.
package modules

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ngisweden/yggdrasil/projectdb"
)

// registrySchema validates the registry file shape at load time.
const registrySchema = `{
	"type": "object",
	"additionalProperties": {
		"type": "object",
		"properties": {
			"module": {"type": "string", "minLength": 1},
			"prefix": {"type": "boolean"}
		},
		"required": ["module"],
		"additionalProperties": false
	}
}`

// Entry is one registry mapping from a method string to a realm module.
type Entry struct {
	// Module is the realm identifier registered by a realm package.
	Module string `json:"module"`
	// Prefix marks the key as a prefix pattern rather than an exact
	// method name.
	Prefix bool `json:"prefix,omitempty"`
}

// Resolver resolves project documents to realm module identifiers.
type Resolver struct {
	registry map[string]Entry
	logger   *slog.Logger
}

// NewResolver creates a resolver over an in-memory registry.
func NewResolver(registry map[string]Entry, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = map[string]Entry{}
	}
	return &Resolver{registry: registry, logger: logger}
}

// LoadRegistry reads and validates a registry file.
func LoadRegistry(path string, logger *slog.Logger) (*Resolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read module registry: %w", err)
	}

	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("parse module registry %s: %w", path, err)
	}
	schema := jsonschema.MustCompileString("module_registry.json", registrySchema)
	if err := schema.Validate(generic); err != nil {
		return nil, fmt.Errorf("invalid module registry %s: %w", path, err)
	}

	var registry map[string]Entry
	if err := json.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("parse module registry %s: %w", path, err)
	}
	return NewResolver(registry, logger), nil
}

// Resolve maps a project document to a realm module identifier. Exact
// method matches win; otherwise the first prefix entry whose key prefixes
// the method is used. Callers must not depend on a particular tie-break
// when multiple prefixes match. A missing method or an unresolved one
// returns ok=false.
func (r *Resolver) Resolve(doc *projectdb.ProjectDocument) (string, bool) {
	method, ok := doc.LibraryConstructionMethod()
	if !ok {
		r.logger.Debug("project has no library construction method", "project", doc.ProjectID)
		return "", false
	}
	if entry, ok := r.registry[method]; ok {
		return entry.Module, true
	}
	for key, entry := range r.registry {
		if entry.Prefix && strings.HasPrefix(method, key) {
			return entry.Module, true
		}
	}
	r.logger.Debug("no realm module for method", "project", doc.ProjectID, "method", method)
	return "", false
}

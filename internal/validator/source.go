package validator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source loads an endpoint specification table.
type Source interface {
	Load(ctx context.Context) ([]EndpointSpec, error)
}

// FileSource reads the table from a YAML document of the form
//
//	endpoints:
//	  - path: /v1/networks/reporting/entity
//	    method: POST
//	    required: [columns, from, to, timezone_id]
//	    types: {columns: array, timezone_id: integer}
type FileSource struct {
	Path string
}

type fileDocument struct {
	Endpoints []EndpointSpec `yaml:"endpoints"`
}

func (f FileSource) Load(ctx context.Context) ([]EndpointSpec, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read endpoint spec %s: %w", f.Path, err)
	}
	return ParseSpecs(raw)
}

// ParseSpecs decodes and sanity-checks a YAML endpoint table.
func ParseSpecs(raw []byte) ([]EndpointSpec, error) {
	var doc fileDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode endpoint spec: %w", err)
	}
	if len(doc.Endpoints) == 0 {
		return nil, errors.New("endpoint spec contains no endpoints")
	}

	seen := make(map[string]struct{}, len(doc.Endpoints))
	for i := range doc.Endpoints {
		ep := &doc.Endpoints[i]
		if ep.Path == "" {
			return nil, fmt.Errorf("endpoint %d: path is required", i)
		}
		if _, dup := seen[ep.Path]; dup {
			return nil, fmt.Errorf("endpoint %s: declared twice", ep.Path)
		}
		seen[ep.Path] = struct{}{}
		ep.Method = strings.ToUpper(ep.Method)
		if ep.Method == "" {
			return nil, fmt.Errorf("endpoint %s: method is required", ep.Path)
		}
	}
	return doc.Endpoints, nil
}

// StaticSource serves a fixed table.
type StaticSource []EndpointSpec

func (s StaticSource) Load(context.Context) ([]EndpointSpec, error) {
	if len(s) == 0 {
		return nil, errors.New("static endpoint table is empty")
	}
	return s, nil
}

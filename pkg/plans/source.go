package plans

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Source defines how plans are loaded into the catalog.
type Source interface {
	Load(ctx context.Context) ([]Plan, error)
}

type inMemSource struct {
	plans []Plan
}

// NewInMemSource returns a Source serving a deep copy of the given plans.
func NewInMemSource(plans ...Plan) Source {
	cp := make([]Plan, 0, len(plans))
	for _, p := range plans {
		cp = append(cp, p.clone())
	}
	return &inMemSource{plans: cp}
}

func (s *inMemSource) Load(_ context.Context) ([]Plan, error) {
	cp := make([]Plan, 0, len(s.plans))
	for _, p := range s.plans {
		cp = append(cp, p.clone())
	}
	return cp, nil
}

// yamlDocument is the on-disk catalog layout.
type yamlDocument struct {
	Plans []Plan `yaml:"plans"`
}

type yamlSource struct {
	read func() (io.ReadCloser, error)
}

// NewYAMLSource returns a Source reading a YAML plan catalog from the given file.
//
//	plans:
//	  - id: free
//	    name: Free
//	    tier: 0
//	    limits:
//	      files_per_month: 10
//	      storage_bytes: 104857600
//	    features: [merge, split]
func NewYAMLSource(path string) Source {
	return &yamlSource{read: func() (io.ReadCloser, error) { return os.Open(path) }}
}

// NewYAMLBytesSource returns a Source parsing an in-memory YAML catalog.
func NewYAMLBytesSource(data []byte) Source {
	return &yamlSource{read: func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}}
}

func (s *yamlSource) Load(_ context.Context) ([]Plan, error) {
	r, err := s.read()
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	defer r.Close()

	var doc yamlDocument
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	return doc.Plans, nil
}

package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

//go:embed seed/therapists.yaml
var defaultSeed []byte

type seedFile struct {
	Therapists []TherapistProfile `yaml:"therapists"`
}

// LoadSeed upserts every profile in a YAML seed document, in file order,
// keeping each entry's verification status. It returns the number of
// profiles loaded.
func (s *Store) LoadSeed(r io.Reader) (int, error) {
	var doc seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return 0, nil
		}
		return 0, fmt.Errorf("catalog: decode seed: %w", err)
	}
	for i, p := range doc.Therapists {
		if _, err := s.upsert(p, upsertSeed); err != nil {
			return i, fmt.Errorf("catalog: seed entry %d (%s): %w", i, p.ID, err)
		}
	}
	return len(doc.Therapists), nil
}

// LoadDefaultSeed loads the built-in directory.
func (s *Store) LoadDefaultSeed() (int, error) {
	return s.LoadSeed(bytes.NewReader(defaultSeed))
}

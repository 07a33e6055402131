package classifier

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidArtifact is wrapped by every artifact validation failure.
var ErrInvalidArtifact = errors.New("invalid classifier artifact")

// LoadVectorizer reads a vectorizer artifact. YAML and JSON are both
// accepted since JSON is valid YAML.
func LoadVectorizer(path string) (*TextVectorizer, error) {
	var spec VectorizerSpec
	if err := readArtifact(path, &spec); err != nil {
		return nil, err
	}
	v, err := NewTextVectorizer(spec)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// LoadModel reads a classifier model artifact.
func LoadModel(path string) (ProbabilisticModel, error) {
	var spec ModelSpec
	if err := readArtifact(path, &spec); err != nil {
		return nil, err
	}
	m, err := NewModel(spec)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func readArtifact(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read artifact: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidArtifact, path, err)
	}
	return nil
}

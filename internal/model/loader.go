package model

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/mind-engage/pbpd/internal/powder"
)

// fileExts are tried in order for model_<code>.<ext>. YAML is a superset of
// JSON, so one decoder serves both.
var fileExts = []string{".yaml", ".yml", ".json"}

// FileName returns the base name (without extension) of g's model file.
func FileName(g powder.Group) string { return "model_" + string(g) }

// DecodeLinear reads a linear model definition. If the file omits the group,
// g is used.
func DecodeLinear(r io.Reader, g powder.Group) (*Linear, error) {
	var m Linear
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", g.Code(), err)
	}
	if m.Group == "" {
		m.Group = g
	}
	if m.Group != g {
		return nil, fmt.Errorf("model file for %s declares group %q", g.Code(), m.Group)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadDir registers every model file found in dir. Missing files are not an
// error: that group stays unregistered and requests for it fail with
// NotFoundError. Malformed files are an error.
func LoadDir(dir string) (*MapRegistry, error) {
	reg := NewMapRegistry()
	for _, g := range powder.Groups() {
		m, err := loadGroup(dir, g)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		reg.Register(g, m)
	}
	return reg, nil
}

func loadGroup(dir string, g powder.Group) (*Linear, error) {
	for _, ext := range fileExts {
		path := filepath.Join(dir, FileName(g)+ext)
		f, err := os.Open(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		m, err := DecodeLinear(f, g)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return m, nil
	}
	return nil, fs.ErrNotExist
}

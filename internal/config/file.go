package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for config files that are neither YAML
// nor JSON.
var ErrUnsupportedFormat = errors.New("config: unsupported file format")

// Load reads path into v. YAML (.yaml, .yml) and JSON with comments
// (.json, .jsonc) are accepted; both are decoded through the yaml tags,
// so durations may be written as "120ms". Unknown keys are an error.
// Fields absent from the file keep the values already in v.
func Load(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
	case ".json", ".jsonc":
		// JSON is a subset of YAML once comments and trailing commas go
		data = jsonc.ToJSON(data)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	if err := decode(data, v); err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	return nil
}

func decode(data []byte, v any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

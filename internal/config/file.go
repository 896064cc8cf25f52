package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ErrUnknownExtension is returned when the file extension
// does not match any supported format.
var ErrUnknownExtension = errors.New("config: unknown file extension")

// Format is a configuration file format.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatOf returns the format of the file based on its extension.
func FormatOf(path string) (Format, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))

	switch ext {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownExtension, ext)
	}
}

// DecodeFile reads the file at path and decodes it into v
// with the decoder selected by the file extension.
func DecodeFile(path string, v any) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := Decode(format, data, v); err != nil {
		return fmt.Errorf("config: decoding %s: %w", path, err)
	}

	return nil
}

// Decode decodes data in the given format into v.
// Unknown fields are rejected in every format.
func Decode(format Format, data []byte, v any) error {
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		return dec.Decode(v)

	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		return dec.Decode(v)

	case FormatTOML:
		md, err := toml.Decode(string(data), v)
		if err != nil {
			return err
		}

		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("unknown fields %v", undecoded)
		}

		return nil

	default:
		return fmt.Errorf("%w: %q", ErrUnknownExtension, format)
	}
}

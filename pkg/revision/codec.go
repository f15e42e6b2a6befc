package revision

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Codec serializes a manifest to and from bytes.
type Codec interface {
	Name() string
	Encode(m *Manifest) ([]byte, error)
	Decode(data []byte) (*Manifest, error)
}

// CodecFor picks a codec from the manifest file extension.
// Anything other than .yaml/.yml is treated as JSON.
func CodecFor(path string) Codec {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAMLCodec{}
	default:
		return JSONCodec{}
	}
}

// CodecByName returns the codec for "json" or "yaml".
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "json":
		return JSONCodec{}, nil
	case "yaml", "yml":
		return YAMLCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown manifest format %q", name)
	}
}

// JSONCodec writes a key-sorted, two-space indented JSON object.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Encode(m *Manifest) ([]byte, error) {
	// encoding/json sorts map keys.
	data, err := json.MarshalIndent(m.Map(), "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func (JSONCodec) Decode(data []byte) (*Manifest, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return NewManifest(), nil
	}
	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return validated(entries)
}

// YAMLCodec writes a key-sorted YAML mapping.
type YAMLCodec struct{}

func (YAMLCodec) Name() string { return "yaml" }

func (YAMLCodec) Encode(m *Manifest) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m.Map()); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (YAMLCodec) Decode(data []byte) (*Manifest, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return NewManifest(), nil
	}
	var entries map[string]string
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return validated(entries)
}

// validated rejects empty keys or values so a lookup never yields a partial answer.
func validated(entries map[string]string) (*Manifest, error) {
	m := NewManifest()
	for k, v := range entries {
		if k == "" || v == "" {
			return nil, fmt.Errorf("manifest entry %q -> %q has an empty side", k, v)
		}
		m.Set(k, v)
	}
	return m, nil
}

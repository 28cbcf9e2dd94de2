// Package prefstore persists per-project timestamp preferences in small files,
// one per project/configuration scope.
package prefstore

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// File extensions for supported codecs.
const (
	jsonExtension = ".json"
	yamlExtension = ".yaml"
)

// Codec names accepted by CodecByName.
const (
	CodecJSON = "json"
	CodecYAML = "yaml"
)

// Default indentation for pretty-printed files.
const (
	defaultIndent     = "  "
	defaultYAMLIndent = 2
)

// Codec defines how a store document is serialized.
type Codec interface {
	// Encode writes the document to the writer.
	Encode(w io.Writer, doc any) error
	// Decode reads the document from the reader.
	Decode(r io.Reader, doc any) error
	// Extension returns the file extension for this codec (e.g., ".json").
	Extension() string
}

// JSONCodec implements Codec using indented JSON.
type JSONCodec struct{}

// Encode implements Codec.Encode.
func (JSONCodec) Encode(w io.Writer, doc any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", defaultIndent)

	err := encoder.Encode(doc)
	if err != nil {
		return fmt.Errorf("json encode: %w", err)
	}

	return nil
}

// Decode implements Codec.Decode.
func (JSONCodec) Decode(r io.Reader, doc any) error {
	err := json.NewDecoder(r).Decode(doc)
	if err != nil {
		return fmt.Errorf("json decode: %w", err)
	}

	return nil
}

// Extension implements Codec.Extension.
func (JSONCodec) Extension() string {
	return jsonExtension
}

// YAMLCodec implements Codec using YAML.
type YAMLCodec struct{}

// Encode implements Codec.Encode.
func (YAMLCodec) Encode(w io.Writer, doc any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(defaultYAMLIndent)

	err := encoder.Encode(doc)
	if err != nil {
		return fmt.Errorf("yaml encode: %w", err)
	}

	err = encoder.Close()
	if err != nil {
		return fmt.Errorf("yaml encode: %w", err)
	}

	return nil
}

// Decode implements Codec.Decode.
func (YAMLCodec) Decode(r io.Reader, doc any) error {
	err := yaml.NewDecoder(r).Decode(doc)
	if err != nil {
		return fmt.Errorf("yaml decode: %w", err)
	}

	return nil
}

// Extension implements Codec.Extension.
func (YAMLCodec) Extension() string {
	return yamlExtension
}

// CodecByName returns the codec registered under name.
func CodecByName(name string) (Codec, error) {
	switch name {
	case CodecJSON, "":
		return JSONCodec{}, nil
	case CodecYAML:
		return YAMLCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// Package compiledb loads CMake-style compilation databases (compile_commands.json)
// and turns their records into compile units.
package compiledb

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// DefaultFilename is the file name CMake writes when CMAKE_EXPORT_COMPILE_COMMANDS is on.
const DefaultFilename = "compile_commands.json"

const (
	schemaErrRequired = "required"
	detailProperty    = "property"
)

//go:embed record.schema.json
var recordSchemaJSON []byte

var recordSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(recordSchemaJSON))
})

// Record is one validated object of a compilation database.
type Record struct {
	Directory string `json:"directory"`
	Command   string `json:"command"`
	File      string `json:"file"`
	Output    string `json:"output,omitempty"`
}

// Load reads and validates the database at path.
func Load(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	defer file.Close()

	return Decode(file)
}

// Decode reads a database from r. Array elements that are not objects are skipped;
// any object that fails validation aborts the whole pass.
func Decode(r io.Reader) ([]Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: top-level value is not an array", ErrMalformedDatabase)
	}

	var elements []json.RawMessage

	err = json.Unmarshal(trimmed, &elements)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDatabase, err)
	}

	schema, err := recordSchema()
	if err != nil {
		return nil, fmt.Errorf("compile record schema: %w", err)
	}

	records := make([]Record, 0, len(elements))

	for idx, raw := range elements {
		if !isObject(raw) {
			continue
		}

		rec, decodeErr := decodeRecord(schema, idx, raw)
		if decodeErr != nil {
			return nil, decodeErr
		}

		records = append(records, rec)
	}

	return records, nil
}

func decodeRecord(schema *gojsonschema.Schema, idx int, raw json.RawMessage) (Record, error) {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return Record{}, fmt.Errorf("%w: record %d: %w", ErrMalformedDatabase, idx, err)
	}

	if !result.Valid() {
		return Record{}, fieldError(idx, result.Errors()[0])
	}

	var rec Record

	err = json.Unmarshal(raw, &rec)
	if err != nil {
		return Record{}, fmt.Errorf("%w: record %d: %w", ErrMalformedDatabase, idx, err)
	}

	return rec, nil
}

func fieldError(idx int, verr gojsonschema.ResultError) *FieldError {
	field := verr.Field()

	if verr.Type() == schemaErrRequired {
		if prop, ok := verr.Details()[detailProperty].(string); ok {
			field = prop
		}
	}

	return &FieldError{Index: idx, Field: field, Reason: verr.Description()}
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)

	return len(trimmed) > 0 && trimmed[0] == '{'
}

package report

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// ErrSchemaVersion is returned when decoding a document with a missing or
// unsupported schemaVersion.
var ErrSchemaVersion = errors.New("unsupported report schema version")

//go:embed schema.json
var schemaJSON string

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func reportSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = jsonschema.CompileString("report.schema.json", schemaJSON)
	})
	return compiledSchema, schemaErr
}

// Encode writes the report as indented JSON.
func (r *Report) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// Decode parses a report document. The schema version is checked before
// anything else, then the document is validated against the report schema.
func Decode(data []byte) (*Report, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("decode report: invalid JSON")
	}

	version := gjson.GetBytes(data, "schemaVersion")
	if !version.Exists() {
		return nil, fmt.Errorf("%w: schemaVersion is missing", ErrSchemaVersion)
	}
	if version.Type != gjson.Number || version.Int() != SchemaVersion {
		return nil, fmt.Errorf("%w: got %s, want %d", ErrSchemaVersion, version.Raw, SchemaVersion)
	}

	schema, err := reportSchema()
	if err != nil {
		return nil, fmt.Errorf("compile report schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("report does not match schema: %w", err)
	}

	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &r, nil
}

// Load reads and decodes a report file.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	r, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Save encodes the report to a file.
func (r *Report) Save(path string) error {
	var buf bytes.Buffer
	if err := r.Encode(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

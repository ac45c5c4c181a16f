package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"txcalc/internal/domain/transaction"
)

// readDocument decodes a YAML or JSON document. YAML is a superset of
// JSON, so both go through the YAML decoder and are re-encoded as JSON to
// honour the document's field names.
func readDocument(stdin io.Reader, path string) (*transaction.Document, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var raw map[string]any
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	var doc transaction.Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if doc.DocType == "" {
		return nil, fmt.Errorf("decode %s: doctype is required", path)
	}
	return &doc, nil
}

// writeDocument prints doc in the requested format.
func writeDocument(w io.Writer, format string, doc *transaction.Document) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	switch format {
	case "json":
		_, err = fmt.Fprintln(w, string(b))
		return err
	case "yaml":
		var v any
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

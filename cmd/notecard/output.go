package main

import (
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// printResult writes v as indented JSON or as YAML. Raw responses are
// decoded first so YAML sees a document, not a byte string.
func printResult(w io.Writer, format string, v any) error {
	if format == formatYAML {
		if raw, ok := v.(json.RawMessage); ok {
			var doc any
			if err := json.Unmarshal(raw, &doc); err != nil {
				return err
			}
			v = doc
		}
		b, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(b, '\n'))
	return err
}

package summary

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrEmpty is returned when a summary file holds no JSON document.
var ErrEmpty = errors.New("summary: empty document")

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

// ParseFile reads the first summary document in path.
func ParseFile(path string) (*Summary, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes the first JSON document from r. Trailing documents (the
// probe appends one per monitored process tree in some modes) are ignored.
func Parse(r io.Reader) (*Summary, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmpty
		}
		return nil, err
	}
	sch, err := summarySchema()
	if err != nil {
		return nil, err
	}
	if err := sch.Validate(doc); err != nil {
		return nil, fmt.Errorf("summary: invalid document: %w", err)
	}
	obj, _ := doc.(map[string]any)
	return fromDocument(obj)
}

func fromDocument(obj map[string]any) (*Summary, error) {
	s := New()
	for key, raw := range obj {
		switch key {
		case "category":
			s.Category = strings.TrimSpace(fmt.Sprint(raw))
		case "command":
			s.Command = fmt.Sprint(raw)
		case "exit_type":
			s.ExitType = strings.TrimSpace(fmt.Sprint(raw))
		case "exit_status":
			n, _ := raw.(json.Number)
			v, err := n.Int64()
			if err != nil {
				return nil, fmt.Errorf("summary: exit_status: %w", err)
			}
			s.ExitStatus = int(v)
		case "host":
			s.Host = strings.TrimSpace(fmt.Sprint(raw))
		case "limits_exceeded":
			sub, ok := raw.(map[string]any)
			if !ok || len(sub) == 0 {
				continue
			}
			le, err := fromDocument(sub)
			if err != nil {
				return nil, fmt.Errorf("summary: limits_exceeded: %w", err)
			}
			s.LimitsExceeded = le
		default:
			r := Resource(key)
			if !r.Known() {
				continue
			}
			v, unit, err := decodeMeasurement(raw)
			if err != nil {
				return nil, fmt.Errorf("summary: %s: %w", key, err)
			}
			cv, err := toCanonical(r, v, unit)
			if err != nil {
				return nil, fmt.Errorf("summary: %s: %w", key, err)
			}
			s.Set(r, cv)
		}
	}
	return s, nil
}

// decodeMeasurement accepts either a bare number or a [number, "unit"] pair.
func decodeMeasurement(raw any) (float64, string, error) {
	switch v := raw.(type) {
	case json.Number:
		f, err := v.Float64()
		return f, "", err
	case []any:
		if len(v) == 0 {
			return 0, "", fmt.Errorf("empty measurement")
		}
		n, ok := v[0].(json.Number)
		if !ok {
			return 0, "", fmt.Errorf("measurement value is %T, want number", v[0])
		}
		f, err := n.Float64()
		if err != nil {
			return 0, "", err
		}
		unit := ""
		if len(v) > 1 {
			unit, _ = v[1].(string)
		}
		return f, strings.TrimSpace(unit), nil
	default:
		return 0, "", fmt.Errorf("unexpected measurement %T", raw)
	}
}

func summarySchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		measurement := map[string]any{
			"anyOf": []any{
				map[string]any{"type": "number"},
				map[string]any{
					"type":        "array",
					"minItems":    1,
					"maxItems":    2,
					"prefixItems": []any{map[string]any{"type": "number"}, map[string]any{"type": "string"}},
				},
			},
		}
		props := map[string]any{}
		for _, r := range Resources {
			props[string(r)] = map[string]any{"$ref": "#/$defs/measurement"}
		}
		limits := map[string]any{
			"type":       []any{"object", "null"},
			"properties": props,
		}
		top := map[string]any{}
		for k, v := range props {
			top[k] = v
		}
		top["category"] = map[string]any{"type": "string"}
		top["command"] = map[string]any{"type": "string"}
		top["exit_type"] = map[string]any{"type": "string"}
		top["exit_status"] = map[string]any{"type": "integer"}
		top["host"] = map[string]any{"type": "string"}
		top["limits_exceeded"] = limits
		doc := map[string]any{
			"$schema":    "https://json-schema.org/draft/2020-12/schema",
			"type":       "object",
			"properties": top,
			"$defs":      map[string]any{"measurement": measurement},
		}
		b, err := json.Marshal(doc)
		if err != nil {
			schemaErr = err
			return
		}
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource("summary.json", bytes.NewReader(b)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile("summary.json")
	})
	return schema, schemaErr
}

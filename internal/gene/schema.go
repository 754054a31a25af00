package gene

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// recordSchema is the wire contract for gene records arriving from pull
// responses, push payloads, and manual imports. It is deliberately looser
// than Validate: the schema rejects malformed shapes, Validate enforces
// the semantic invariants on top.
const recordSchema = `{
	"type": "object",
	"required": ["id", "name", "category", "strategy", "metadata"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"version": {"type": "string"},
		"name": {"type": "string", "minLength": 1, "maxLength": 30},
		"category": {"enum": ["debug", "coding", "writing", "analysis", "planning", "tool"]},
		"trigger": {"type": "string"},
		"strategy": {
			"type": "object",
			"required": ["description"],
			"properties": {
				"description": {"type": "string"},
				"steps": {"type": "array", "items": {"type": "string"}},
				"tips": {"type": "array", "items": {"type": "string"}}
			}
		},
		"capsules": {"type": "object", "additionalProperties": {"type": "string"}},
		"metadata": {
			"type": "object",
			"properties": {
				"author": {"enum": ["platform", "user"]},
				"scope": {"enum": ["private", "team", "platform"]},
				"roles": {"type": "array", "items": {"type": "string"}},
				"tags": {"type": "array", "items": {"type": "string"}, "maxItems": 10},
				"score": {"type": "number", "minimum": 0, "maximum": 5},
				"usage_count": {"type": "integer", "minimum": 0}
			}
		}
	}
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func compiled() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(recordSchema))
		if err != nil {
			schemaErr = fmt.Errorf("unmarshal gene schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("gene.json", doc); err != nil {
			schemaErr = fmt.Errorf("add gene schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile("gene.json")
	})
	return compiledSchema, schemaErr
}

// ValidateRecord checks a raw JSON gene record against the wire schema
// and then decodes it. Used on every record crossing a trust boundary.
func ValidateRecord(raw json.RawMessage) (*Gene, error) {
	schema, err := compiled()
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("gene record is not valid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("gene record failed schema validation: %w", err)
	}
	var g Gene
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("decode gene record: %w", err)
	}
	return &g, nil
}

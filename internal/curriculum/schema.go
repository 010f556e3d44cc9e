package curriculum

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["subject", "class", "academic_year", "chapters"],
  "properties": {
    "subject": {"type": "string", "minLength": 1},
    "class": {"type": "string", "minLength": 1},
    "academic_year": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{4}$"},
    "status": {"enum": ["draft", "approved", "published"]},
    "chapters": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "name"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string", "minLength": 1},
          "code": {"type": "string"},
          "order": {"type": "integer"},
          "estimated_duration": {"type": "number", "minimum": 0},
          "duration_unit": {"enum": ["hours", "weeks"]},
          "learning_outcomes": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["id", "outcome"],
              "properties": {
                "id": {"type": "string", "minLength": 1},
                "outcome": {"type": "string", "minLength": 1},
                "bloom_level": {"type": "string"}
              }
            }
          }
        }
      }
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(documentSchema)

// ParseDocument decodes YAML and checks it against the document schema. A
// document that fails the check is rejected whole.
func ParseDocument(data []byte) (Document, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Document{}, fmt.Errorf("decode yaml: %w", err)
	}
	if raw == nil {
		return Document{}, fmt.Errorf("empty document")
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(raw))
	if err != nil {
		return Document{}, fmt.Errorf("schema check: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return Document{}, fmt.Errorf("invalid document: %s", strings.Join(msgs, "; "))
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("decode document: %w", err)
	}
	if doc.Status == "" {
		doc.Status = StatusPublished
	}
	for i := range doc.Chapters {
		if doc.Chapters[i].DurationUnit == "" {
			doc.Chapters[i].DurationUnit = Hours
		}
	}
	return doc, nil
}

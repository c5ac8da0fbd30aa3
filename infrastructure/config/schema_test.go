package config

import (
	"encoding/json"
	"testing"
)

func TestGenerateSchema(t *testing.T) {
	t.Parallel()

	schema := GenerateSchema()
	if schema.Type != "object" || schema.Title != "Threadgate Configuration" {
		t.Errorf("schema = %s %s", schema.Type, schema.Title)
	}
	for _, prop := range []string{"service", "poll", "cache", "resilience", "logging"} {
		if _, ok := schema.Properties[prop]; !ok {
			t.Errorf("missing property: %s", prop)
		}
	}
	if got := schema.Properties["cache"].Properties["backend"].Enum; len(got) != 4 {
		t.Errorf("cache.backend enum = %v", got)
	}
}

func TestSchemaJSON(t *testing.T) {
	t.Parallel()

	s, err := SchemaJSON()
	if err != nil {
		t.Fatalf("SchemaJSON() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		t.Fatalf("SchemaJSON() is not valid JSON: %v", err)
	}
	if decoded["$schema"] != "https://json-schema.org/draft/2020-12/schema" {
		t.Errorf("$schema = %v", decoded["$schema"])
	}
}

package config

import "encoding/json"

// JSONSchema represents a JSON Schema document.
type JSONSchema struct {
	Schema      string                 `json:"$schema,omitempty"`
	ID          string                 `json:"$id,omitempty"`
	Title       string                 `json:"title,omitempty"`
	Description string                 `json:"description,omitempty"`
	Type        string                 `json:"type,omitempty"`
	Properties  map[string]*JSONSchema `json:"properties,omitempty"`
	Required    []string               `json:"required,omitempty"`
	Enum        []string               `json:"enum,omitempty"`
	Default     any                    `json:"default,omitempty"`
	Minimum     *float64               `json:"minimum,omitempty"`
	Format      string                 `json:"format,omitempty"`
}

// GenerateSchema generates a JSON Schema for the configuration file.
func GenerateSchema() *JSONSchema {
	return &JSONSchema{
		Schema:      "https://json-schema.org/draft/2020-12/schema",
		ID:          "https://github.com/felixgeelhaar/threadgate/threadgate.schema.json",
		Title:       "Threadgate Configuration",
		Description: "Configuration of the gatectl interaction-policy tool",
		Type:        "object",
		Required:    []string{"service"},
		Properties: map[string]*JSONSchema{
			"service":    generateServiceSchema(),
			"poll":       generatePollSchema(),
			"cache":      generateCacheSchema(),
			"resilience": generateResilienceSchema(),
			"logging":    generateLoggingSchema(),
		},
	}
}

func generateServiceSchema() *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: "Backend the policy records are stored on",
		Required:    []string{"pds_url"},
		Properties: map[string]*JSONSchema{
			"pds_url": {
				Type:        "string",
				Format:      "uri",
				Description: "Base URL of the account's data server",
				Default:     "https://bsky.social",
			},
			"appview_url": {
				Type:        "string",
				Format:      "uri",
				Description: "Base URL of the read path (default: pds_url)",
			},
			"identifier": {
				Type:        "string",
				Description: "Account handle or DID",
			},
			"access_token": {
				Type:        "string",
				Description: "Bearer token used for writes; use ${VAR} to read it from the environment",
			},
			"timeout": durationSchema("Timeout of one request", "10s"),
		},
	}
}

func generatePollSchema() *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: "Waiting for a saved policy to appear on the read path",
		Properties: map[string]*JSONSchema{
			"max_attempts": {
				Type:        "integer",
				Description: "Read-path fetches before giving up",
				Minimum:     floatPtr(0),
				Default:     5,
			},
			"delay": durationSchema("Wait between fetches", "1s"),
		},
	}
}

func generateCacheSchema() *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: "View cache",
		Properties: map[string]*JSONSchema{
			"backend": {
				Type:    "string",
				Enum:    []string{"none", "memory", "redis", "badger"},
				Default: "memory",
			},
			"ttl": durationSchema("How long a view is cached", "1m"),
			"max_size": {
				Type:        "integer",
				Description: "Entries kept by the memory backend",
				Minimum:     floatPtr(0),
				Default:     1000,
			},
			"redis": {
				Type: "object",
				Properties: map[string]*JSONSchema{
					"address":    {Type: "string", Default: "localhost:6379"},
					"password":   {Type: "string"},
					"db":         {Type: "integer", Minimum: floatPtr(0)},
					"key_prefix": {Type: "string", Default: "threadgate:"},
				},
			},
			"badger": {
				Type:        "object",
				Description: "On-disk backend keeping views between runs",
				Properties: map[string]*JSONSchema{
					"dir": {Type: "string", Description: "Data directory"},
				},
			},
		},
	}
}

func generateResilienceSchema() *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: "Transport resilience",
		Properties: map[string]*JSONSchema{
			"retry": {
				Type: "object",
				Properties: map[string]*JSONSchema{
					"max_attempts":  {Type: "integer", Minimum: floatPtr(0), Default: 3},
					"initial_delay": durationSchema("Delay before the first retry", "200ms"),
				},
			},
			"circuit_breaker": {
				Type: "object",
				Properties: map[string]*JSONSchema{
					"threshold": {Type: "integer", Minimum: floatPtr(0), Default: 5},
					"timeout":   durationSchema("How long the circuit stays open", "30s"),
				},
			},
			"max_concurrent": {
				Type:        "integer",
				Description: "In-flight request limit",
				Minimum:     floatPtr(0),
				Default:     8,
			},
		},
	}
}

func generateLoggingSchema() *JSONSchema {
	return &JSONSchema{
		Type: "object",
		Properties: map[string]*JSONSchema{
			"level": {
				Type:    "string",
				Enum:    []string{"trace", "debug", "info", "warn", "error"},
				Default: "info",
			},
			"format": {
				Type:    "string",
				Enum:    []string{"console", "json"},
				Default: "console",
			},
		},
	}
}

func durationSchema(description, def string) *JSONSchema {
	return &JSONSchema{
		Type:        "string",
		Format:      "duration",
		Description: description,
		Default:     def,
	}
}

func floatPtr(f float64) *float64 {
	return &f
}

// SchemaJSON returns the JSON Schema as a JSON string.
func SchemaJSON() (string, error) {
	data, err := json.MarshalIndent(GenerateSchema(), "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

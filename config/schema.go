package config

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Jiadezhende/CleanSightBackend/errors"
)

// configSchema constrains the shape and ranges of the config file before it
// is unmarshalled. Cross-field rules live in Config.Validate.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "engine": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "segment_length":    {"type": "integer", "minimum": 1},
        "realtime_capacity": {"type": "integer", "minimum": 1},
        "workers":           {"type": "integer", "minimum": 1},
        "worker_queue":      {"type": "integer", "minimum": 1},
        "frame_rate":        {"type": "integer", "minimum": 1},
        "task_timeout_ms":   {"type": "integer", "minimum": 1},
        "idle_sleep_ms":     {"type": "integer", "minimum": 0},
        "output_root":       {"type": "string", "minLength": 1},
        "cache_policy":      {"type": "string", "enum": ["unbounded", "drop-oldest", "reject"]},
        "cache_max_depth":   {"type": "integer", "minimum": 1},
        "ingest_rate_limit": {"type": "number", "minimum": 0},
        "ingest_burst":      {"type": "integer", "minimum": 0}
      }
    },
    "server": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "listen_addr":      {"type": "string", "minLength": 1},
        "metrics_port":     {"type": "integer", "minimum": 0, "maximum": 65535},
        "push_interval_ms": {"type": "integer", "minimum": 1}
      }
    },
    "nats": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "url": {"type": "string"}
      }
    },
    "log": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "level":  {"type": "string", "enum": ["debug", "info", "warn", "error"]},
        "format": {"type": "string", "enum": ["json", "text"]}
      }
    }
  }
}`

// Schema returns the embedded JSON schema for the config file format.
func Schema() string {
	return configSchema
}

// validateSchema checks raw config JSON against the embedded schema.
func validateSchema(data []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(configSchema)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return errors.WrapInvalid(err, "Config", "validateSchema", "schema validation")
	}
	if result.Valid() {
		return nil
	}

	var b strings.Builder
	for i, desc := range result.Errors() {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %s", desc.Field(), desc.Description())
	}
	return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "validateSchema", b.String())
}

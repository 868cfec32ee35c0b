// schema-exporter writes the embedded config-file JSON schema to disk and
// optionally validates config files against it. Deployment tooling consumes
// the exported schema for editor completion and CI checks.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Jiadezhende/CleanSightBackend/config"
)

func main() {
	outFile := flag.String("out", "./schemas/config.v1.json", "Output path for the config schema")
	flag.Parse()

	log.Printf("Schema Exporter")
	log.Printf("  Output: %s", *outFile)

	if err := writeSchema(*outFile); err != nil {
		log.Fatalf("Failed to write schema: %v", err)
	}
	log.Printf("  Generated: %s", *outFile)

	// Remaining args are config files to validate against the schema.
	for _, path := range flag.Args() {
		if err := validateFile(path); err != nil {
			log.Fatalf("Validation failed for %s: %v", path, err)
		}
		log.Printf("  Valid: %s", path)
	}

	log.Printf("Schema export complete")
}

// writeSchema re-indents the embedded schema and writes it out.
func writeSchema(path string) error {
	var pretty json.RawMessage
	if err := json.Unmarshal([]byte(config.Schema()), &pretty); err != nil {
		return err
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, append(out, '\n'), 0644)
}

func validateFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	schemaLoader := gojsonschema.NewStringLoader(config.Schema())
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return err
	}
	if !result.Valid() {
		for _, desc := range result.Errors() {
			log.Printf("  - %s: %s", desc.Field(), desc.Description())
		}
		return errInvalidConfig
	}
	return nil
}

var errInvalidConfig = &validationError{}

type validationError struct{}

func (*validationError) Error() string { return "config does not match schema" }

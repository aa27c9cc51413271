// Command generate-schema writes the JSON schema of the dittodav
// configuration file, for editor completion and validation.
//
// The options of each mount type are free-form in the configuration
// struct, so their schemas are emitted separately under $defs, keyed by
// mount type.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"

	"github.com/marmos91/dittodav/pkg/config"
	"github.com/marmos91/dittodav/pkg/storage/local"
	"github.com/marmos91/dittodav/pkg/storage/object/minioclient"
	"github.com/marmos91/dittodav/pkg/storage/object/s3client"
)

const schemaID = "https://github.com/marmos91/dittodav/config.schema.json"

func main() {
	out := flag.String("out", "config.schema.json", "Output file")
	flag.Parse()
	if flag.NArg() > 0 {
		*out = flag.Arg(0)
	}

	if err := run(*out); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Configuration schema written to %s\n", *out)
}

func run(path string) error {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	schema := r.Reflect(&config.Config{})
	schema.ID = schemaID
	schema.Title = "dittodav configuration"
	schema.Description = "Repositories, mounts and listeners of the dittodav WebDAV gateway"

	if schema.Definitions == nil {
		schema.Definitions = jsonschema.Definitions{}
	}
	for mountType, options := range map[string]any{
		config.MountLocal:  &local.Config{},
		config.MountS3:     &s3client.Config{},
		config.MountMinio:  &minioclient.Config{},
		config.MountMemory: &config.MemoryMountConfig{},
	} {
		def := r.Reflect(options)
		def.Version = ""
		def.Title = mountType + " mount options"
		schema.Definitions["mount_"+mountType] = def
	}

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// Command rip2-schema writes the canonical RIP2 descriptor set to disk.
// The service loads this file at runtime; regenerating it is only needed
// when the canonical schema changes.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/aquasight/sonarcam/internal/rip2"
)

var out = flag.String("out", "waterlinked_rip2.pb", "Output path for the serialized descriptor set")

func main() {
	flag.Parse()

	raw, err := rip2.MarshalCanonicalSchema()
	if err != nil {
		log.Fatalf("Failed to serialize schema: %v", err)
	}
	if err := os.WriteFile(*out, raw, 0o644); err != nil {
		log.Fatalf("Failed to write %s: %v", *out, err)
	}
	log.Printf("Wrote %d bytes to %s", len(raw), *out)
}

// Package main emits the table protocol JSON Schema.
package main

import (
	"flag"

	"github.com/hearthvtt/hearth/internal/platform/config"
	"github.com/hearthvtt/hearth/internal/tools/schemagen"
)

func main() {
	var outPath string
	var sourceDir string
	flag.StringVar(&outPath, "out", "", "path to write the JSON schema")
	flag.StringVar(&sourceDir, "source", "internal/table/protocol", "protocol package directory for doc comments")
	flag.Parse()

	if outPath == "" {
		config.Exitf("-out is required")
	}
	if err := schemagen.Run(outPath, sourceDir); err != nil {
		config.Exitf("write protocol schema: %v", err)
	}
}

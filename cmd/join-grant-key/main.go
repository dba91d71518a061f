// Package main provides a one-shot utility for join key generation.
//
// It emits the asymmetric keypair the table gateway uses to verify join
// grants.
package main

import (
	"os"

	"github.com/hearthvtt/hearth/internal/platform/config"
	"github.com/hearthvtt/hearth/internal/tools/joingrant"
)

func main() {
	if err := joingrant.Run(os.Stdout, nil); err != nil {
		config.Exitf("generate join grant key: %v", err)
	}
}

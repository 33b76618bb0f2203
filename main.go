// main is the entry point for the smittestopp analysis CLI.
package main

import (
	"os"

	"github.com/smittestopp/smittestoppbackend/cmd"
	"github.com/smittestopp/smittestoppbackend/internal/contract"
)

func main() {
	if err := cmd.Execute(); err != nil {
		contract.Logger.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcpauth/oauth-bridge/cmd"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Msg("mcp-oauth-bridge exited with an error")
		os.Exit(1)
	}
}

package main

import (
	"os"

	"certtrust/internal/cmd"

	"github.com/rs/zerolog/log"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Msg("certtrust failed")
		os.Exit(1)
	}
}

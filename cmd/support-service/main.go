package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/frictionless-support/support-service/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Msg("exit")
		os.Exit(1)
	}
}

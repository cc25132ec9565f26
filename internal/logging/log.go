// Package logging installs the console logger shared by the commands.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func init() {
	Setup(os.Stdout)
}

// Setup points the global logger at out.
func Setup(out io.Writer) {
	output := zerolog.ConsoleWriter{
		Out:        out,
		PartsOrder: []string{"level", "message"},
	}

	log.Logger = zerolog.New(output).With().Logger()
}

// SetLevel sets the global level from its name ("debug", "info", ...).
// An empty name keeps the current level.
func SetLevel(name string) error {
	if name == "" {
		return nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

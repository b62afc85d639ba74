package mapreduce

import (
	"os"

	"github.com/rs/zerolog"
)

// NewLogger builds the process-wide structured logger that the Server
// dispatch loop, each Master and the client log through, carrying a
// "component" field instead of the teacher's bare log.Printf prefix.
// Mapper and reducer sub-tasks do not log.
func NewLogger(component string) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

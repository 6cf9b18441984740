// Package cli contains helper functions related to flag parsing, logging
// and user-facing output.
package cli

import (
	"os"

	"gopkg.in/op/go-logging.v1"
)

var log = logging.MustGetLogger("cli")

// InitLogging initialises the stderr logging backend. Verbosity maps onto
// levels: 0 errors only (-s), 1 warnings (the default), 2 notice, 3 info,
// 4+ debug (-d).
func InitLogging(verbosity int) {
	level := logging.WARNING
	switch {
	case verbosity <= 0:
		level = logging.ERROR
	case verbosity == 1:
		level = logging.WARNING
	case verbosity == 2:
		level = logging.NOTICE
	case verbosity == 3:
		level = logging.INFO
	default:
		level = logging.DEBUG
	}
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	formatted := logging.NewBackendFormatter(backend, logFormatter())
	leveled := logging.AddModuleLevel(formatted)
	leveled.SetLevel(level, "")
	logging.SetBackend(leveled)
}

func logFormatter() logging.Formatter {
	return logging.MustStringFormatter("%{time:15:04:05.000} %{level:7s}: %{message}")
}

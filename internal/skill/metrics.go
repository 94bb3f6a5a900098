package skill

import (
	"strings"

	"github.com/sweeney/gpio-skill/internal/metrics"
)

const subSystem = "skill"

var (
	commandsTotal = metrics.MustRegisterCounterVec(subSystem,
		"commands_total",
		"Number of command intents handled",
		"command")
	queriesTotal = metrics.MustRegisterCounterVec(subSystem,
		"system_queries_total",
		"Number of system query intents handled",
		"object")
	utterancesTotal = metrics.MustRegisterCounter(subSystem,
		"utterances_total",
		"Number of utterances sent to the host")
)

// Labels are limited to known words so unrecognized speech cannot grow the
// label set.
func commandLabel(command string) string {
	switch command {
	case "BLINK", "STATUS", "TURN", "SET":
		return strings.ToLower(command)
	}
	return "other"
}

func queryLabel(object string) string {
	switch strings.ToUpper(object) {
	case "NAME", "GPIO", "MODULES", "PATH":
		return strings.ToLower(object)
	}
	return "other"
}

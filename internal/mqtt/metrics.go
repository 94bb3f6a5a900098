package mqtt

import "github.com/sweeney/gpio-skill/internal/metrics"

const subSystem = "mqtt"

var (
	publishedTotal = metrics.MustRegisterCounterVec(subSystem,
		"published_total",
		"Number of messages published",
		"topic")
	publishFailuresTotal = metrics.MustRegisterCounter(subSystem,
		"publish_failures_total",
		"Number of failed publish attempts")
	bufferedGauge = metrics.MustRegisterGauge(subSystem,
		"buffered_messages",
		"Number of messages waiting for a broker connection")
	droppedTotal = metrics.MustRegisterCounter(subSystem,
		"dropped_messages_total",
		"Number of messages dropped from a full backlog")
	commandsTotal = metrics.MustRegisterCounterVec(subSystem,
		"commands_total",
		"Number of inbound command messages",
		"result")
)

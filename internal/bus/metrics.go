package bus

import "github.com/sweeney/gpio-skill/internal/metrics"

const subSystem = "bus"

var (
	connectedGauge = metrics.MustRegisterGauge(subSystem,
		"connected",
		"1 while the message bus connection is open")
	receivedTotal = metrics.MustRegisterCounterVec(subSystem,
		"messages_received_total",
		"Number of messages read from the bus",
		"kind")
	sentTotal = metrics.MustRegisterCounterVec(subSystem,
		"messages_sent_total",
		"Number of messages written to the bus",
		"type")
	handlerErrorsTotal = metrics.MustRegisterCounter(subSystem,
		"handler_errors_total",
		"Number of intent handlers that returned an error")
)

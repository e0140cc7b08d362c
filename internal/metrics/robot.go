package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Robot command metrics, kept in their own package so the robot core and the
// bridge can both update them without importing each other.

var (
	CommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "botvac_commands_total",
		Help: "Robot commands sent to the relay, by command and result",
	}, []string{"command", "result"})

	CleaningFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "botvac_cleaning_fallbacks_total",
		Help: "startCleaning requests resent with a non-persistent map",
	})

	CommandDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "botvac_command_duration_seconds",
		Help:    "Relay round-trip time per command",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"command"})

	BridgeRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "botvac_bridge_requests_total",
		Help: "Dispatched bridge requests, by action and final status",
	}, []string{"action", "status"})

	UnsupportedDevices = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "botvac_unsupported_devices_total",
		Help: "Robot sessions rejected because of an unsupported service version",
	})
)

// Register registers the robot metrics on the given registry (or default if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{CommandsTotal, CleaningFallbacks, CommandDuration, BridgeRequests, UnsupportedDevices} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

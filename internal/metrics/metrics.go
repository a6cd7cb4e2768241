// Package metrics defines the daemon's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	inputState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gpio_manager_input_state",
		Help: "Effective state of each input (1 = on, 0 = off)",
	}, []string{"input"})

	inputSmoothedState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gpio_manager_input_smoothed_state",
		Help: "Time-weighted majority state of each input per smoothing window",
	}, []string{"input", "window"})

	inputTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gpio_manager_input_transitions_total",
		Help: "Detected input transitions by new state",
	}, []string{"input", "state"}) // state=on|off

	pinReadErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gpio_manager_pin_read_errors_total",
		Help: "Failed pin reads per input",
	}, []string{"input"})

	listenerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gpio_manager_listener_failures_total",
		Help: "Change listener errors and panics per device",
	}, []string{"device"})

	outputSwitches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gpio_manager_output_switches_total",
		Help: "Successful output switches by requested state",
	}, []string{"output", "state"}) // state=on|off

	mqttBuffered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gpio_manager_mqtt_buffered_messages",
		Help: "MQTT messages held while the broker is unreachable",
	})
)

func stateLabel(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func boolValue(on bool) float64 {
	if on {
		return 1
	}
	return 0
}

// RecordTransition counts a transition and updates the input state gauge.
func RecordTransition(input string, on bool) {
	inputTransitions.WithLabelValues(input, stateLabel(on)).Inc()
	inputState.WithLabelValues(input).Set(boolValue(on))
}

// RecordSmoothed sets the smoothed state gauge for one window.
func RecordSmoothed(input, window string, on bool) {
	inputSmoothedState.WithLabelValues(input, window).Set(boolValue(on))
}

// RecordReadError counts a failed pin read.
func RecordReadError(input string) {
	pinReadErrors.WithLabelValues(input).Inc()
}

// RecordListenerFailure counts a listener that returned an error or panicked.
func RecordListenerFailure(device string) {
	listenerFailures.WithLabelValues(device).Inc()
}

// RecordOutputSwitch counts a successful output write.
func RecordOutputSwitch(output string, on bool) {
	outputSwitches.WithLabelValues(output, stateLabel(on)).Inc()
}

// SetMQTTBuffered sets the number of buffered MQTT messages.
func SetMQTTBuffered(n int) {
	mqttBuffered.Set(float64(n))
}

package observability

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Detection outcomes.
const (
	DetectionTarget        = "target"
	DetectionNone          = "none"
	DetectionProtocolError = "protocol_error"
)

var (
	registerOnce sync.Once

	detectionResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "turret",
			Subsystem: "detection",
			Name:      "results_total",
			Help:      "Detection replies by outcome.",
		},
		[]string{"result"},
	)
	loopRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "turret",
			Subsystem: "supervisor",
			Name:      "restarts_total",
			Help:      "Loop failures followed by a restart.",
		},
		[]string{"loop"},
	)
	rangeSamples = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "turret",
			Subsystem: "range",
			Name:      "samples_total",
			Help:      "Range sensor frames by validity.",
		},
		[]string{"valid"},
	)
	fireRequests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "turret",
			Subsystem: "fire",
			Name:      "requests_total",
			Help:      "Fire commands sent to the motor controller.",
		},
	)
	yawDuty = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "turret",
			Subsystem: "yaw",
			Name:      "duty",
			Help:      "Last commanded yaw PWM duty.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(detectionResults, loopRestarts, rangeSamples, fireRequests, yawDuty)
	})
}

func RecordDetection(result string) {
	RegisterMetrics()
	detectionResults.WithLabelValues(result).Inc()
}

func RecordLoopRestart(loop string) {
	RegisterMetrics()
	loopRestarts.WithLabelValues(loop).Inc()
}

func RecordRangeSample(valid bool) {
	RegisterMetrics()
	rangeSamples.WithLabelValues(strconv.FormatBool(valid)).Inc()
}

func RecordFire() {
	RegisterMetrics()
	fireRequests.Inc()
}

func SetYawDuty(duty uint8) {
	RegisterMetrics()
	yawDuty.Set(float64(duty))
}

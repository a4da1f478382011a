// Package metrics exposes Prometheus instruments for ring sessions and
// scheduling.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sagealarm_sessions_started_total",
		Help: "Ring sessions created from a wake trigger",
	})

	sessionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sagealarm_sessions_finished_total",
		Help: "Ring sessions that reached a terminal state",
	}, []string{"state"}) // state=Dismissed|Exhausted

	sessionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sagealarm_session_active",
		Help: "Whether a ring session is currently active (1) or not (0)",
	})

	ringCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sagealarm_ring_cycles_total",
		Help: "Ring cycles played",
	})

	puzzleTaps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sagealarm_puzzle_taps_total",
		Help: "Puzzle taps by outcome",
	}, []string{"outcome"}) // outcome=correct|wrong|solved

	timersPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sagealarm_timers_pending",
		Help: "Wake timers currently registered",
	})

	scheduleErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sagealarm_schedule_errors_total",
		Help: "Failures to schedule the next occurrence of an alarm",
	}, []string{"reason"}) // reason=unschedulable|scheduler|store
)

func SessionStarted() {
	sessionsStarted.Inc()
	sessionActive.Set(1)
}

func SessionFinished(state string) {
	sessionsFinished.WithLabelValues(state).Inc()
	sessionActive.Set(0)
}

func RingCycle() {
	ringCycles.Inc()
}

func PuzzleTap(outcome string) {
	puzzleTaps.WithLabelValues(outcome).Inc()
}

func SetTimersPending(n int) {
	timersPending.Set(float64(n))
}

func ScheduleError(reason string) {
	scheduleErrors.WithLabelValues(reason).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

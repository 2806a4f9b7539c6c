// Package metrics exposes Prometheus collectors for the call lifecycle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is safe to use as a nil pointer; every method is then a no-op.
type Recorder struct {
	callsCreated   *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	timeouts       *prometheus.CounterVec
	notifyFailures *prometheus.CounterVec
	pushSent       *prometheus.CounterVec
	sockets        prometheus.Gauge
	pendingRings   prometheus.Gauge
}

// NewRecorder builds the collectors and registers them on reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		callsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calls_created_total",
				Help: "Total number of calls created",
			},
			[]string{"room_type"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "call_transitions_total",
				Help: "Committed call status transitions",
			},
			[]string{"from", "to"},
		),
		timeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "call_ring_timeouts_total",
				Help: "Ring timeouts that fired, by outcome (expired or skipped)",
			},
			[]string{"outcome"},
		),
		notifyFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "call_notification_failures_total",
				Help: "Notifications that could not be delivered, by channel",
			},
			[]string{"channel"},
		),
		pushSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "call_push_sent_total",
				Help: "Push notifications handed to the push provider",
			},
			[]string{"platform", "result"},
		),
		sockets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "call_socket_connections",
			Help: "Open signaling websocket connections on this process",
		}),
		pendingRings: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "call_pending_ring_timeouts",
			Help: "Armed ring timeouts on this process",
		}),
	}
	for _, c := range []prometheus.Collector{
		r.callsCreated, r.transitions, r.timeouts, r.notifyFailures, r.pushSent, r.sockets, r.pendingRings,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) CallCreated(roomType string) {
	if r == nil {
		return
	}
	r.callsCreated.WithLabelValues(roomType).Inc()
}

func (r *Recorder) Transition(from, to string) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(from, to).Inc()
}

func (r *Recorder) RingTimeout(expired bool) {
	if r == nil {
		return
	}
	outcome := "skipped"
	if expired {
		outcome = "expired"
	}
	r.timeouts.WithLabelValues(outcome).Inc()
}

func (r *Recorder) NotifyFailed(channel string) {
	if r == nil {
		return
	}
	r.notifyFailures.WithLabelValues(channel).Inc()
}

func (r *Recorder) PushSent(platform string, ok bool) {
	if r == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	r.pushSent.WithLabelValues(platform, result).Inc()
}

func (r *Recorder) SocketOpened() {
	if r == nil {
		return
	}
	r.sockets.Inc()
}

func (r *Recorder) SocketClosed() {
	if r == nil {
		return
	}
	r.sockets.Dec()
}

func (r *Recorder) SetPendingRings(n int) {
	if r == nil {
		return
	}
	r.pendingRings.Set(float64(n))
}

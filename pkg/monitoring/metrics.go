package monitoring

import "github.com/prometheus/client_golang/prometheus"

const namespace = "opencloud"

var (
	// AuthRefresh counts locked refresh outcomes by result.
	AuthRefresh = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "refresh_total",
		Help:      "Token refresh attempts that hit the network, by outcome.",
	}, []string{"outcome"})

	AuthLogins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "login_total",
		Help:      "Login attempts by result.",
	}, []string{"result"})

	SessionRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "requests_total",
		Help:      "Session service calls by operation and result.",
	}, []string{"op", "result"})

	SignalingFrames = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "signaling",
		Name:      "frames_total",
		Help:      "Signaling frames by direction and kind.",
	}, []string{"dir", "kind"})

	SignalingConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "signaling",
		Name:      "connected",
		Help:      "1 when the signaling socket is connected.",
	})
)

func init() {
	prometheus.MustRegister(AuthRefresh, AuthLogins, SessionRequests, SignalingFrames, SignalingConnections)
}

// Result converts an error into a metric label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

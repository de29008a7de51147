package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the auth counters. A nil *Metrics records nothing.
type Metrics struct {
	logins      *prometheus.CounterVec
	exchanges   *prometheus.CounterVec
	refreshes   *prometheus.CounterVec
	invalidated *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by method and result.",
		}, []string{"method", "result"}),
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_token_exchanges_total",
			Help: "Temporary token exchanges by result.",
		}, []string{"result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_refresh_total",
			Help: "Refresh token rotations by result.",
		}, []string{"result"}),
		invalidated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_sessions_invalidated_total",
			Help: "Sessions invalidated by scope.",
		}, []string{"scope"}),
	}
	reg.MustRegister(m.logins, m.exchanges, m.refreshes, m.invalidated)
	return m
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

func (m *Metrics) Login(method string, err error) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(method, result(err)).Inc()
}

func (m *Metrics) Exchange(err error) {
	if m == nil {
		return
	}
	m.exchanges.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) Refresh(err error) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) Invalidated(scope string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.invalidated.WithLabelValues(scope).Add(float64(n))
}

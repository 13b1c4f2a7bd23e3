// Package metrics exposes Prometheus counters for authentication outcomes.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives auth events. Services depend on this rather than on
// Prometheus directly.
type Recorder interface {
	Login(ok bool)
	Refresh(ok bool)
	TokenIssued(kind string)
	TokensRevoked(kind string, n int64)
	IdentityResolved(source, outcome string)
	TokensSwept(n int64)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Login(bool)                      {}
func (Nop) Refresh(bool)                    {}
func (Nop) TokenIssued(string)              {}
func (Nop) TokensRevoked(string, int64)     {}
func (Nop) IdentityResolved(string, string) {}
func (Nop) TokensSwept(int64)               {}

// Auth holds the Prometheus collectors.
type Auth struct {
	registry *prometheus.Registry

	LoginsTotal             *prometheus.CounterVec
	RefreshesTotal          *prometheus.CounterVec
	TokensIssuedTotal       *prometheus.CounterVec
	TokensRevokedTotal      *prometheus.CounterVec
	IdentityResolutions     *prometheus.CounterVec
	ExpiredTokensSweptTotal prometheus.Counter
}

// NewAuth creates the collectors and registers them, together with the Go
// runtime and process collectors, into a fresh registry.
func NewAuth() *Auth {
	m := &Auth{
		registry: prometheus.NewRegistry(),
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authkeeper_logins_total",
				Help: "Login attempts by result",
			},
			[]string{"success"},
		),
		RefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authkeeper_refreshes_total",
				Help: "Refresh token rotations by result",
			},
			[]string{"success"},
		),
		TokensIssuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authkeeper_tokens_issued_total",
				Help: "Tokens issued by kind",
			},
			[]string{"kind"},
		),
		TokensRevokedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authkeeper_tokens_revoked_total",
				Help: "Tokens revoked by kind",
			},
			[]string{"kind"},
		),
		IdentityResolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authkeeper_identity_resolutions_total",
				Help: "Identity resolutions by credential source and outcome",
			},
			[]string{"source", "outcome"},
		),
		ExpiredTokensSweptTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "authkeeper_expired_tokens_swept_total",
				Help: "Expired tokens removed by the sweeper",
			},
		),
	}

	m.registry.MustRegister(
		m.LoginsTotal,
		m.RefreshesTotal,
		m.TokensIssuedTotal,
		m.TokensRevokedTotal,
		m.IdentityResolutions,
		m.ExpiredTokensSweptTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Auth) Login(ok bool) {
	m.LoginsTotal.WithLabelValues(strconv.FormatBool(ok)).Inc()
}

func (m *Auth) Refresh(ok bool) {
	m.RefreshesTotal.WithLabelValues(strconv.FormatBool(ok)).Inc()
}

func (m *Auth) TokenIssued(kind string) {
	m.TokensIssuedTotal.WithLabelValues(kind).Inc()
}

func (m *Auth) TokensRevoked(kind string, n int64) {
	if n > 0 {
		m.TokensRevokedTotal.WithLabelValues(kind).Add(float64(n))
	}
}

func (m *Auth) IdentityResolved(source, outcome string) {
	m.IdentityResolutions.WithLabelValues(source, outcome).Inc()
}

func (m *Auth) TokensSwept(n int64) {
	if n > 0 {
		m.ExpiredTokensSweptTotal.Add(float64(n))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Auth) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

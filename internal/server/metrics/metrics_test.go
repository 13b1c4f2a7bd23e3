package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuth_Counters(t *testing.T) {
	m := NewAuth()

	m.Login(true)
	m.Login(false)
	m.Login(false)
	m.Refresh(true)
	m.TokenIssued("api")
	m.TokensRevoked("refresh", 3)
	m.TokensRevoked("refresh", 0)
	m.IdentityResolved("cookie", "ok")
	m.TokensSwept(4)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoginsTotal.WithLabelValues("true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LoginsTotal.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefreshesTotal.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokensIssuedTotal.WithLabelValues("api")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.TokensRevokedTotal.WithLabelValues("refresh")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IdentityResolutions.WithLabelValues("cookie", "ok")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ExpiredTokensSweptTotal))
}

func TestAuth_Handler(t *testing.T) {
	m := NewAuth()
	m.TokenIssued("refresh")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `authkeeper_tokens_issued_total{kind="refresh"} 1`)
}

func TestNop_SatisfiesRecorder(t *testing.T) {
	var r Recorder = Nop{}
	r.Login(true)
	r.TokensSwept(1)
}

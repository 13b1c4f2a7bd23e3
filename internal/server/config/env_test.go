package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetAfter removes variables a dotenv load may have introduced.
func unsetAfter(t *testing.T, names ...string) {
	t.Helper()
	t.Cleanup(func() {
		for _, n := range names {
			os.Unsetenv(n)
		}
	})
}

func TestParseEnv_Variables(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}

	t.Setenv(EnvHTTPAddr, ":9999")
	t.Setenv(EnvDatabaseDSN, "postgres://env")
	t.Setenv(EnvSecretKey, "env-secret")
	t.Setenv(EnvSecretKeyID, "env-kid")
	t.Setenv(EnvVerifyKeys, "a:one, b:two")
	t.Setenv(EnvIssuer, "env-issuer")
	t.Setenv(EnvAdminMail, "root@example.com")
	t.Setenv(EnvAdminPassword, "")
	t.Setenv(EnvCleanupSchedule, "@daily")
	t.Setenv(EnvShutdownTimeout, "5s")

	var cfg Config
	cfg.LoadDefaults()
	parseEnv(&cfg)

	want := Config{
		EndpointAddrHTTP: ":9999",
		DatabaseDSN:      "postgres://env",
		SecretKey:        "env-secret",
		SecretKeyID:      "env-kid",
		VerifyKeys:       map[string]string{"a": "one", "b": "two"},
		Issuer:           "env-issuer",
		AdminMail:        "root@example.com",
		CleanupSchedule:  "@daily",
		ShutdownTimeout:  5 * time.Second,
	}
	assert.Empty(t, cmp.Diff(want, cfg))
}

func TestParseEnv_DotenvFile(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("AUTH_ISSUER=from-file\nAUTH_ADMIN_MAIL=file@example.com\n"), 0o600))
	unsetAfter(t, EnvIssuer)

	// process environment wins over the file
	t.Setenv(EnvAdminMail, "proc@example.com")

	os.Args = []string{"testbin", "-env", path}

	var cfg Config
	cfg.LoadDefaults()
	parseEnv(&cfg)

	assert.Equal(t, "from-file", cfg.Issuer)
	assert.Equal(t, "proc@example.com", cfg.AdminMail)
}

func TestParseEnv_Errors(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	t.Run("missing env file", func(t *testing.T) {
		os.Args = []string{"testbin", "-env", filepath.Join(t.TempDir(), "absent.env")}
		require.Panics(t, func() { parseEnv(&Config{}) })
	})

	t.Run("bad duration", func(t *testing.T) {
		os.Args = []string{"testbin"}
		t.Setenv(EnvShutdownTimeout, "soon")
		require.Panics(t, func() { parseEnv(&Config{}) })
	})

	t.Run("bad key list", func(t *testing.T) {
		os.Args = []string{"testbin"}
		t.Setenv(EnvVerifyKeys, "nocolon")
		require.Panics(t, func() { parseEnv(&Config{}) })
	})
}

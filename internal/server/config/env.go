package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
)

// Environment variables read by parseEnv.
const (
	EnvHTTPAddr        = "AUTH_HTTP_ADDR"
	EnvDatabaseDSN     = "AUTH_DATABASE_DSN"
	EnvSecretKey       = "AUTH_SECRET_KEY"
	EnvSecretKeyID     = "AUTH_SECRET_KEY_ID"
	EnvVerifyKeys      = "AUTH_VERIFY_KEYS"
	EnvIssuer          = "AUTH_ISSUER"
	EnvAdminMail       = "AUTH_ADMIN_MAIL"
	EnvAdminPassword   = "AUTH_ADMIN_PASSWORD"
	EnvCleanupSchedule = "AUTH_CLEANUP_SCHEDULE"
	EnvShutdownTimeout = "AUTH_SHUTDOWN_TIMEOUT"
)

// parseEnv loads a dotenv file (the one named by -env, else ./.env if
// present) and overlays AUTH_* variables. Variables already set in the
// process environment take precedence over the file. A named file that
// cannot be loaded or a malformed value panics.
func parseEnv(config *Config) {
	if path := flagx.EnvFileFlags(); path != "" {
		if err := godotenv.Load(path); err != nil {
			panic(err)
		}
	} else {
		_ = godotenv.Load()
	}

	lookupString(&config.EndpointAddrHTTP, EnvHTTPAddr)
	lookupString(&config.DatabaseDSN, EnvDatabaseDSN)
	lookupString(&config.SecretKey, EnvSecretKey)
	lookupString(&config.SecretKeyID, EnvSecretKeyID)
	lookupString(&config.Issuer, EnvIssuer)
	lookupString(&config.AdminMail, EnvAdminMail)
	lookupString(&config.AdminPassword, EnvAdminPassword)
	lookupString(&config.CleanupSchedule, EnvCleanupSchedule)

	if v, ok := os.LookupEnv(EnvVerifyKeys); ok {
		keys, err := parseKeyList(v)
		if err != nil {
			panic(err)
		}
		config.VerifyKeys = keys
	}

	if v, ok := os.LookupEnv(EnvShutdownTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			panic(fmt.Errorf("%s: %w", EnvShutdownTimeout, err))
		}
		config.ShutdownTimeout = d
	}
}

func lookupString(dst *string, name string) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		*dst = v
	}
}

// parseKeyList reads "kid1:secret1,kid2:secret2".
func parseKeyList(s string) (map[string]string, error) {
	out := map[string]string{}
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		id, secret, ok := strings.Cut(item, ":")
		if !ok || id == "" || secret == "" {
			return nil, fmt.Errorf("%s: malformed entry %q", EnvVerifyKeys, item)
		}
		out[id] = secret
	}
	return out, nil
}

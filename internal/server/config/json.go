package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations use
// timex.Duration, so both "10s" and integer nanoseconds are accepted.
type JsonConfig struct {
	EndpointAddrHTTP string            `json:"endpoint_addr_http"`
	DatabaseDSN      string            `json:"database_dsn"`
	SecretKey        string            `json:"secret_key"`
	SecretKeyID      string            `json:"secret_key_id"`
	VerifyKeys       map[string]string `json:"verify_keys"`
	Issuer           string            `json:"issuer"`
	AdminMail        string            `json:"admin_mail"`
	AdminPassword    string            `json:"admin_password"`
	CleanupSchedule  string            `json:"cleanup_schedule"`
	ShutdownTimeout  timex.Duration    `json:"shutdown_timeout"`
}

// parseJson overlays values from the file named by -c or -config. Keys that
// are absent from the file leave the current value alone. An unreadable or
// invalid file panics.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.SecretKeyID, c.SecretKeyID)
	setString(&config.Issuer, c.Issuer)
	setString(&config.AdminMail, c.AdminMail)
	setString(&config.AdminPassword, c.AdminPassword)
	setString(&config.CleanupSchedule, c.CleanupSchedule)
	if c.VerifyKeys != nil {
		config.VerifyKeys = c.VerifyKeys
	}
	if c.ShutdownTimeout.Duration > 0 {
		config.ShutdownTimeout = c.ShutdownTimeout.Duration
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

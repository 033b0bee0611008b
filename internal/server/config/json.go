package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/paygate/internal/flagx"
	"github.com/dmitrijs2005/paygate/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "15m" and integer nanoseconds.
//
// Pointer fields distinguish "absent" from an explicit false/empty value so a
// partial file only overrides what it names.
type JsonConfig struct {
	EndpointAddrHTTP             string          `json:"endpoint_addr_http"`
	EndpointAddrGRPC             string          `json:"endpoint_addr_grpc"`
	DatabaseDSN                  string          `json:"database_dsn"`
	AccessTokenSecret            string          `json:"access_token_secret"`
	RefreshTokenSecret           string          `json:"refresh_token_secret"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`
	EncryptionKey                string          `json:"encryption_key"`
	HMACAlgorithm                string          `json:"hmac_algorithm"`
	ReplayWindow                 *timex.Duration `json:"replay_window"`
	CheckoutSessionTTL           *timex.Duration `json:"checkout_session_ttl"`
	WebhookTimeout               *timex.Duration `json:"webhook_timeout"`
	CookieSecure                 *bool           `json:"cookie_secure"`
	AuthRateLimit                string          `json:"auth_rate_limit"`
	Development                  *bool           `json:"development"`
	LogLevel                     string          `json:"log_level"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path comes from -c/-config or, failing that, PAYGATE_CONFIG. If
// neither is set nothing is loaded. An unreadable file or invalid JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
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

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.AccessTokenSecret, c.AccessTokenSecret)
	setString(&config.RefreshTokenSecret, c.RefreshTokenSecret)
	setString(&config.EncryptionKey, c.EncryptionKey)
	setString(&config.HMACAlgorithm, c.HMACAlgorithm)
	setString(&config.AuthRateLimit, c.AuthRateLimit)
	setString(&config.LogLevel, c.LogLevel)

	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration != nil {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.ReplayWindow != nil {
		config.ReplayWindow = c.ReplayWindow.Duration
	}
	if c.CheckoutSessionTTL != nil {
		config.CheckoutSessionTTL = c.CheckoutSessionTTL.Duration
	}
	if c.WebhookTimeout != nil {
		config.WebhookTimeout = c.WebhookTimeout.Duration
	}
	if c.CookieSecure != nil {
		config.CookieSecure = *c.CookieSecure
	}
	if c.Development != nil {
		config.Development = *c.Development
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/paygate/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string     HTTP bind address (e.g., ":8080")
//	-g string     gRPC health bind address (e.g., ":50051")
//	-d string     PostgreSQL DSN
//	-s string     access token secret
//	-f string     refresh token secret
//	-t int        access token validity, minutes
//	-r int        refresh token validity, minutes
//	-k string     base64 encryption key (32 bytes decoded)
//	-m string     HMAC algorithm
//	-w duration   replay window (e.g., "5m")
//	-o duration   checkout session TTL
//	-h duration   webhook timeout
//	-l string     auth rate limit (e.g., "40-H")
//	-v string     log level
//	-x            secure checkout cookie
//	-dev          development mode
//
// Notes:
//   - os.Args is filtered first with flagx.FilterArgsWithBools so the -c
//     config flag and unrelated arguments never reach this flag set.
//   - Token lifetimes are accepted as integers in minutes.
func parseFlags(config *Config) {
	args := flagx.FilterArgsWithBools(os.Args[1:],
		[]string{"-a", "-g", "-d", "-s", "-f", "-t", "-r", "-k", "-m", "-w", "-o", "-h", "-l", "-v"},
		[]string{"-x", "-dev"},
	)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "gRPC health address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.AccessTokenSecret, "s", config.AccessTokenSecret, "access token secret")
	fs.StringVar(&config.RefreshTokenSecret, "f", config.RefreshTokenSecret, "refresh token secret")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")
	refreshTokenValidityDuration := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh_token_validity_duration (in minutes)")

	fs.StringVar(&config.EncryptionKey, "k", config.EncryptionKey, "base64 AES-256 key for merchant secrets")
	fs.StringVar(&config.HMACAlgorithm, "m", config.HMACAlgorithm, "HMAC algorithm (sha256, sha384, sha512)")
	fs.DurationVar(&config.ReplayWindow, "w", config.ReplayWindow, "signed request replay window")
	fs.DurationVar(&config.CheckoutSessionTTL, "o", config.CheckoutSessionTTL, "checkout session TTL")
	fs.DurationVar(&config.WebhookTimeout, "h", config.WebhookTimeout, "webhook delivery timeout")
	fs.StringVar(&config.AuthRateLimit, "l", config.AuthRateLimit, "auth endpoints rate limit")
	fs.StringVar(&config.LogLevel, "v", config.LogLevel, "log level")
	fs.BoolVar(&config.CookieSecure, "x", config.CookieSecure, "mark checkout cookie Secure")
	fs.BoolVar(&config.Development, "dev", config.Development, "development mode")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidityDuration) * time.Minute
}

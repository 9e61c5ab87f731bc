package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-f string   frontend base URL
//	-t int      access token validity, minutes
//	-r int      refresh token validity, minutes
//	-p int      password reset token validity, minutes
//	-k string   Kafka broker address
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers in minutes and then converted
//     to time.Duration values.
//   - Secrets and OAuth credentials are intentionally not exposed as flags;
//     use environment variables or the JSON file for those.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-f", "-t", "-r", "-p", "-k"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.FrontendURL, "f", config.FrontendURL, "frontend base URL")

	accessTokenTTL := fs.Int("t", int(config.AccessTokenTTL.Minutes()), "access_token_ttl (in minutes)")
	refreshTokenTTL := fs.Int("r", int(config.RefreshTokenTTL.Minutes()), "refresh_token_ttl (in minutes)")
	passwordResetTokenTTL := fs.Int("p", int(config.PasswordResetTokenTTL.Minutes()), "password_reset_token_ttl (in minutes)")

	fs.StringVar(&config.KafkaBroker, "k", config.KafkaBroker, "Kafka broker address")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenTTL = time.Duration(*accessTokenTTL) * time.Minute
	config.RefreshTokenTTL = time.Duration(*refreshTokenTTL) * time.Minute
	config.PasswordResetTokenTTL = time.Duration(*passwordResetTokenTTL) * time.Minute
}

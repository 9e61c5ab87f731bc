package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv populates Config fields from environment variables, loading a
// .env file from the working directory first when one exists. A missing
// .env file is not an error; explicitly exported variables always win
// because godotenv does not overwrite them.
//
// Duration variables accept Go duration strings such as "15m" or "168h".
// Invalid duration values are ignored and the previous value is kept.
func parseEnv(config *Config) {
	_ = godotenv.Load()

	setString(&config.EndpointAddrHTTP, "ENDPOINT_ADDR_HTTP")
	setString(&config.DatabaseDSN, "DATABASE_DSN")
	setString(&config.FrontendURL, "FRONTEND_URL")
	setString(&config.AccessTokenSecret, "ACCESS_TOKEN_SECRET")
	setString(&config.RefreshTokenSecret, "REFRESH_TOKEN_SECRET")
	setString(&config.PasswordResetSecret, "PASSWORD_RESET_SECRET")
	setDuration(&config.AccessTokenTTL, "ACCESS_TOKEN_TTL")
	setDuration(&config.RefreshTokenTTL, "REFRESH_TOKEN_TTL")
	setDuration(&config.PasswordResetTokenTTL, "PASSWORD_RESET_TOKEN_TTL")
	setString(&config.GoogleClientID, "GOOGLE_CLIENT_ID")
	setString(&config.GoogleClientSecret, "GOOGLE_CLIENT_SECRET")
	setString(&config.GoogleRedirectURL, "GOOGLE_REDIRECT_URL")
	setString(&config.KafkaBroker, "KAFKA_BROKER")
	setString(&config.KafkaTopic, "KAFKA_TOPIC")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return
	}
	*dst = d
}

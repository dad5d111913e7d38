package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dascribs/authcore/internal/timex"
)

// JsonConfig is the on-disk shape of the config file.
//
// Durations use timex.Duration so both "90s" strings and integer nanoseconds
// are accepted. Only keys present with non-zero values override the target.
type JsonConfig struct {
	HTTPAddr       string         `json:"http_addr"`
	DatabaseDSN    string         `json:"database_dsn"`
	SecretKey      string         `json:"secret_key"`
	BearerTokenTTL timex.Duration `json:"bearer_token_ttl"`
	LogLevel       string         `json:"log_level"`
	LogFormat      string         `json:"log_format"`

	SessionTimeout     timex.Duration `json:"session_timeout"`
	MaxSessionsPerUser int            `json:"max_sessions_per_user"`
	SweepInterval      timex.Duration `json:"sweep_interval"`

	VerificationTTL      timex.Duration `json:"verification_ttl"`
	VerificationWindow   timex.Duration `json:"verification_window"`
	VerificationMax      int            `json:"verification_max"`
	VerificationCooldown timex.Duration `json:"verification_cooldown"`
	ResetTTL             timex.Duration `json:"reset_ttl"`
	ResetWindow          timex.Duration `json:"reset_window"`
	ResetMax             int            `json:"reset_max"`

	MinPasswordLength int    `json:"min_password_length"`
	PasswordHasher    string `json:"password_hasher"`

	FrontendURL        string `json:"frontend_url"`
	Dispatcher         string `json:"dispatcher"`
	DispatcherFilePath string `json:"dispatcher_file"`
	AMQPURL            string `json:"amqp_url"`
	AMQPQueue          string `json:"amqp_queue"`
	NATSURL            string `json:"nats_url"`
	NATSSubject        string `json:"nats_subject"`

	RedisAddr        string         `json:"redis_addr"`
	LoginMaxAttempts int            `json:"login_max_attempts"`
	LoginLockout     timex.Duration `json:"login_lockout"`

	RolesFile           string   `json:"roles_file"`
	CORSAllowedOrigins  []string `json:"cors_allowed_origins"`
	PublicRatePerMinute int      `json:"public_rate_per_minute"`
}

// parseJson loads the file at path (if any) and copies its non-zero values into config.
func parseJson(config *Config, path string) error {
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return err
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.BearerTokenTTL, c.BearerTokenTTL)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)

	setDuration(&config.SessionTimeout, c.SessionTimeout)
	setInt(&config.MaxSessionsPerUser, c.MaxSessionsPerUser)
	setDuration(&config.SweepInterval, c.SweepInterval)

	setDuration(&config.VerificationTTL, c.VerificationTTL)
	setDuration(&config.VerificationWindow, c.VerificationWindow)
	setInt(&config.VerificationMax, c.VerificationMax)
	setDuration(&config.VerificationCooldown, c.VerificationCooldown)
	setDuration(&config.ResetTTL, c.ResetTTL)
	setDuration(&config.ResetWindow, c.ResetWindow)
	setInt(&config.ResetMax, c.ResetMax)

	setInt(&config.MinPasswordLength, c.MinPasswordLength)
	setString(&config.PasswordHasher, c.PasswordHasher)

	setString(&config.FrontendURL, c.FrontendURL)
	setString(&config.Dispatcher, c.Dispatcher)
	setString(&config.DispatcherFilePath, c.DispatcherFilePath)
	setString(&config.AMQPURL, c.AMQPURL)
	setString(&config.AMQPQueue, c.AMQPQueue)
	setString(&config.NATSURL, c.NATSURL)
	setString(&config.NATSSubject, c.NATSSubject)

	setString(&config.RedisAddr, c.RedisAddr)
	setInt(&config.LoginMaxAttempts, c.LoginMaxAttempts)
	setDuration(&config.LoginLockout, c.LoginLockout)

	setString(&config.RolesFile, c.RolesFile)
	if len(c.CORSAllowedOrigins) > 0 {
		config.CORSAllowedOrigins = c.CORSAllowedOrigins
	}
	setInt(&config.PublicRatePerMinute, c.PublicRatePerMinute)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}

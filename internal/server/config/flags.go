package config

import (
	"flag"
	"io"

	"github.com/dascribs/authcore/internal/flagx"
)

// parseFlags overrides selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string     HTTP bind address (e.g. ":8080")
//	-d string     PostgreSQL DSN
//	-s string     JWT HMAC secret key
//	-t duration   bearer token lifetime (e.g. "24h")
//	-m int        max concurrent sessions per user
//	-l string     log level
//	-x string     message dispatcher (log|file|amqp|nats|memory)
//	-f string     frontend base URL for links
//	-r string     redis address for the login throttle
//	-o list       comma-separated CORS allowed origins
//
// Arguments are first filtered with flagx.FilterArgs so flags owned by other
// layers (such as -c) do not cause parse errors.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-d", "-s", "-t", "-m", "-l", "-x", "-f", "-r", "-o"})

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.DurationVar(&config.BearerTokenTTL, "t", config.BearerTokenTTL, "bearer token lifetime")
	fs.IntVar(&config.MaxSessionsPerUser, "m", config.MaxSessionsPerUser, "max sessions per user")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.Dispatcher, "x", config.Dispatcher, "message dispatcher")
	fs.StringVar(&config.FrontendURL, "f", config.FrontendURL, "frontend base URL")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")

	origins := flagx.StringList(config.CORSAllowedOrigins)
	fs.Var(&origins, "o", "CORS allowed origins")

	if err := fs.Parse(args); err != nil {
		return err
	}
	config.CORSAllowedOrigins = origins
	return nil
}

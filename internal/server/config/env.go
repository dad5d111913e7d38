package config

import (
	"context"

	"github.com/sethvargo/go-envconfig"
)

// parseEnv overlays AUTHCORE_* variables onto cfg. Unset variables keep the
// values already present from defaults or the JSON file.
func parseEnv(ctx context.Context, cfg *Config, l envconfig.Lookuper) error {
	return envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: envconfig.PrefixLookuper(EnvPrefix, l),
	})
}

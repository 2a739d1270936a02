package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Paths locates the optional main config file. Leaving Main empty is not
// an error: defaults plus environment variables are a valid
// configuration for local/dev runs. A Main that names a file which does
// not exist is an error.
type Paths struct {
	Main string
}

// Load loads configuration from, in priority order:
//  1. Defaults (setDefaults)
//  2. An optional TOML config file
//  3. ERDE_-prefixed environment variables
//
// and then validates the result. The returned Config is the single
// immutable value passed into the pipeline constructor (§9).
func Load(paths Paths) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if paths.Main != "" {
		if err := loadMainConfig(v, paths.Main); err != nil {
			return nil, fmt.Errorf("loading main config: %w", err)
		}
	}

	v.SetEnvPrefix("ERDE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only reaches Unmarshal for keys viper already knows
	// about, so keys with no default are bound explicitly.
	for _, key := range []string{"rpc_url", "treasury_address", "contracts.vault", "contracts.stability_pool", "contracts.reward_distributor", "contracts.emission_manager", "contracts.lp_tokens"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	cfg.sourcePath = paths.Main

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func loadMainConfig(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config file does not exist: %s", path)
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	return nil
}

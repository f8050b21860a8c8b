// Package config loads quill's configuration from QUILL_-prefixed
// environment variables, applies defaults, and validates the result.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// AppConfig holds every recognised option. The three modes are derived
// from it: Forward set selects forwarding, AuthorityOnly selects
// authority-only, and the default is recursive.
type AppConfig struct {
	// Port is the UDP port the DNS server binds to.
	Port int `koanf:"port" validate:"gte=0,lt=65536"`

	// APIPort is the admin HTTP port; 0 disables the admin API.
	APIPort int `koanf:"api_port" validate:"gte=0,lt=65536"`

	// Forward is an upstream IP address, optionally with ":port"; when
	// set, all un-cached queries go there instead of the root servers.
	// Host names are not accepted.
	Forward string `koanf:"forward"`

	// AuthorityOnly disables outbound queries entirely.
	AuthorityOnly bool `koanf:"authority_only"`

	// ZoneDir is a directory of zone documents loaded at boot.
	ZoneDir string `koanf:"zone_dir"`

	// ZoneDB is the bbolt database where administratively added zones
	// persist; empty disables persistence.
	ZoneDB string `koanf:"zone_db"`

	// Blocklist is a hosts-format or plain blocklist file.
	Blocklist string `koanf:"blocklist"`

	// CacheSize bounds the record cache, in names.
	CacheSize int `koanf:"cache_size" validate:"required,gte=1"`

	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity.
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`
}

// envLoader loads QUILL_-prefixed environment variables; swapped out in
// tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "QUILL_",
		TransformFunc: func(key, value string) (string, any) {
			return strings.ToLower(strings.TrimPrefix(key, "QUILL_")), value
		},
	}), nil)
}

// Load parses the environment into an AppConfig, applying defaults and
// validation.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	_ = k.Load(structs.Provider(AppConfig{
		Port:      2053,
		APIPort:   5380,
		CacheSize: 10000,
		Env:       "prod",
		LogLevel:  "info",
	}, "koanf"), nil)

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return &cfg, nil
}

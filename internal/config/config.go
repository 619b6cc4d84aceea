// Package config loads ~/.outpost/config.toml. Values are decoded from TOML,
// then overridden from OUTPOST_* environment variables, then validated.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment override, e.g. OUTPOST_SERVER_BASE_URL.
const EnvPrefix = "OUTPOST"

// Duration is a time.Duration written as a string ("5s") in TOML and env.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config represents the global ~/.outpost/config.toml.
type Config struct {
	DefaultSession string        `toml:"default_session" envconfig:"default_session" validate:"omitempty,max=64"`
	Server         Server        `toml:"server" envconfig:"server"`
	Store          Store         `toml:"store" envconfig:"store"`
	Outbox         Outbox        `toml:"outbox" envconfig:"outbox"`
	Realtime       Realtime      `toml:"realtime" envconfig:"realtime"`
	Notifications  Notifications `toml:"notifications" envconfig:"notifications"`
	Connectivity   Connectivity  `toml:"connectivity" envconfig:"connectivity"`
	Log            Log           `toml:"log" envconfig:"log"`
	Metrics        Metrics       `toml:"metrics" envconfig:"metrics"`
}

type Server struct {
	BaseURL        string   `toml:"base_url" envconfig:"base_url" validate:"required,url"`
	CookieName     string   `toml:"cookie_name" envconfig:"cookie_name" validate:"required"`
	RequestTimeout Duration `toml:"request_timeout" envconfig:"request_timeout" validate:"gt=0"`
}

type Store struct {
	Engine        string `toml:"engine" envconfig:"engine" validate:"oneof=sqlite redis memory"`
	RedisAddr     string `toml:"redis_addr" envconfig:"redis_addr" validate:"required_if=Engine redis"`
	RedisPassword string `toml:"redis_password" envconfig:"redis_password"`
	RedisDB       int    `toml:"redis_db" envconfig:"redis_db" validate:"gte=0"`
}

type Outbox struct {
	Debounce  Duration `toml:"debounce" envconfig:"debounce" validate:"gte=0"`
	SendRate  float64  `toml:"send_rate" envconfig:"send_rate" validate:"gte=0"`
	SendBurst int      `toml:"send_burst" envconfig:"send_burst" validate:"gte=0"`
}

type Realtime struct {
	Transport       string   `toml:"transport" envconfig:"transport" validate:"oneof=sse websocket"`
	ReconnectDelay  Duration `toml:"reconnect_delay" envconfig:"reconnect_delay" validate:"gt=0"`
	ReconnectMax    Duration `toml:"reconnect_max" envconfig:"reconnect_max" validate:"gte=0"`
	ReconnectFactor float64  `toml:"reconnect_factor" envconfig:"reconnect_factor" validate:"gte=1"`
}

type Notifications struct {
	FetchAttempts int      `toml:"fetch_attempts" envconfig:"fetch_attempts" validate:"gte=1,lte=10"`
	RetryBase     Duration `toml:"retry_base" envconfig:"retry_base" validate:"gt=0"`
}

type Connectivity struct {
	ProbeInterval Duration `toml:"probe_interval" envconfig:"probe_interval" validate:"gt=0"`
	ProbeTimeout  Duration `toml:"probe_timeout" envconfig:"probe_timeout" validate:"gt=0"`
}

type Log struct {
	Level string `toml:"level" envconfig:"level" validate:"omitempty,oneof=debug info warn error"`
}

type Metrics struct {
	Addr string `toml:"addr" envconfig:"addr" validate:"omitempty,hostname_port"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Server: Server{
			BaseURL:        "http://localhost:3000",
			CookieName:     "session",
			RequestTimeout: Duration{15 * time.Second},
		},
		Store:  Store{Engine: "sqlite"},
		Outbox: Outbox{Debounce: Duration{time.Second}},
		Realtime: Realtime{
			Transport:       "sse",
			ReconnectDelay:  Duration{5 * time.Second},
			ReconnectMax:    Duration{5 * time.Second},
			ReconnectFactor: 2,
		},
		Notifications: Notifications{FetchAttempts: 3, RetryBase: Duration{500 * time.Millisecond}},
		Connectivity:  Connectivity{ProbeInterval: Duration{15 * time.Second}, ProbeTimeout: Duration{5 * time.Second}},
		Log:           Log{Level: "info"},
	}
}

// Load reads config from the given path on top of the defaults, applies
// environment overrides and validates the result. A missing file is not an
// error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(f reflect.Value) any {
		return f.Interface().(Duration).Duration
	}, Duration{})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("toml")
	})
	return v
}

// Validate checks field constraints and reports every violation.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, fmt.Errorf("config %s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return errors.Join(errs...)
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

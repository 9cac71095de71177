package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
		// LoginURL es a dónde mandamos /oauth/authorize sin sesión.
		LoginURL string `yaml:"login_url"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Storage struct {
		// memory | postgres
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxConns        int    `yaml:"max_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		// memory | redis
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	// Counters respalda rate limiting y quotas (incrementos atómicos).
	Counters struct {
		// memory | redis
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"counters"`

	OAuth struct {
		Issuer        string `yaml:"issuer"`
		AccessTTL     string `yaml:"access_ttl"`      // default 1h
		RefreshTTL    string `yaml:"refresh_ttl"`     // default 720h (30d)
		CodeTTL       string `yaml:"code_ttl"`        // default 10m
		TokenCacheTTL string `yaml:"token_cache_ttl"` // default 5m
		SweepEvery    string `yaml:"sweep_every"`     // default 5m
		SigningKID    string `yaml:"signing_kid"`
	} `yaml:"oauth"`

	Rate struct {
		Enabled bool `yaml:"enabled"`
		// sliding_window | fixed_window | token_bucket
		Strategy    string `yaml:"strategy"`
		Window      string `yaml:"window"`
		MaxRequests int64  `yaml:"max_requests"`
		Burst       int64  `yaml:"burst"` // solo token_bucket; default = max_requests
	} `yaml:"rate"`

	Quota struct {
		Enabled     bool            `yaml:"enabled"`
		DefaultPlan string          `yaml:"default_plan"`
		Plans       map[string]Plan `yaml:"plans"`
		AdminScope  string          `yaml:"admin_scope"`
	} `yaml:"quota"`

	// Clients registrados. Inmutables después del arranque.
	Clients []Client `yaml:"clients"`

	// Users es un directorio mínimo para userinfo y resolución de plan.
	// La identidad real del end-user vive fuera de este servicio.
	Users []User `yaml:"users"`
}

type Plan struct {
	// -1 = ilimitado
	Daily      int64 `yaml:"daily"`
	Monthly    int64 `yaml:"monthly"`
	Concurrent int64 `yaml:"concurrent"`
}

type Client struct {
	ClientID     string   `yaml:"client_id"`
	SecretHash   string   `yaml:"secret_hash"` // argon2id PHC; vacío para public clients
	RedirectURIs []string `yaml:"redirect_uris"`
	Scopes       []string `yaml:"scopes"`
	GrantTypes   []string `yaml:"grant_types"`
	RequirePKCE  bool     `yaml:"require_pkce"`
	Active       bool     `yaml:"active"`
}

type User struct {
	ID            string `yaml:"id"`
	Email         string `yaml:"email"`
	EmailVerified bool   `yaml:"email_verified"`
	Name          string `yaml:"name"`
	Plan          string `yaml:"plan"`
}

func Load(path string) (*Config, error) {
	var c Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	case os.IsNotExist(err):
		// sin archivo: defaults + env alcanzan para dev
	default:
		return nil, err
	}

	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "5m"
	}
	if c.Counters.Kind == "" {
		c.Counters.Kind = c.Cache.Kind
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.OAuth.Issuer == "" {
		c.OAuth.Issuer = "http://localhost" + c.Server.Addr
	}
	if c.OAuth.AccessTTL == "" {
		c.OAuth.AccessTTL = "1h"
	}
	if c.OAuth.RefreshTTL == "" {
		c.OAuth.RefreshTTL = "720h" // 30d
	}
	if c.OAuth.CodeTTL == "" {
		c.OAuth.CodeTTL = "10m"
	}
	if c.OAuth.TokenCacheTTL == "" {
		c.OAuth.TokenCacheTTL = "5m"
	}
	if c.OAuth.SweepEvery == "" {
		c.OAuth.SweepEvery = "5m"
	}
	if c.OAuth.SigningKID == "" {
		c.OAuth.SigningKID = "doorman-1"
	}
	if c.Rate.Strategy == "" {
		c.Rate.Strategy = "fixed_window"
	}
	if c.Rate.Window == "" {
		c.Rate.Window = "1m"
	}
	if c.Rate.MaxRequests == 0 {
		c.Rate.MaxRequests = 100
	}
	if c.Rate.Burst == 0 {
		c.Rate.Burst = c.Rate.MaxRequests
	}
	if c.Quota.DefaultPlan == "" {
		c.Quota.DefaultPlan = "free"
	}
	if c.Quota.Plans == nil {
		c.Quota.Plans = map[string]Plan{
			"free": {Daily: 200, Monthly: 2000, Concurrent: 5},
		}
	}
	if c.Quota.AdminScope == "" {
		c.Quota.AdminScope = "admin"
	}

	// env overrides (dev/docker)
	if v := os.Getenv("DOORMAN_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("DOORMAN_DSN"); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv("DOORMAN_REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
		c.Counters.Redis.Addr = v
	}

	// validate string durations
	for _, d := range []string{
		c.OAuth.AccessTTL, c.OAuth.RefreshTTL, c.OAuth.CodeTTL,
		c.OAuth.TokenCacheTTL, c.OAuth.SweepEvery, c.Rate.Window,
		c.Cache.Memory.DefaultTTL,
	} {
		if _, err := time.ParseDuration(d); err != nil {
			return nil, fmt.Errorf("config: bad duration %q: %w", d, err)
		}
	}
	switch strings.ToLower(c.Rate.Strategy) {
	case "sliding_window", "fixed_window", "token_bucket":
	default:
		return nil, fmt.Errorf("config: unknown rate strategy %q", c.Rate.Strategy)
	}
	return &c, nil
}

// Dur parsea una duración ya validada por Load.
func Dur(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// Package config loads the jwtauth command configuration from YAML, optional
// .env files and JWTAUTH_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/jwtauth"
	"github.com/MrEthical07/jwtauth/jwt"
	"github.com/MrEthical07/jwtauth/principal"
	"github.com/MrEthical07/jwtauth/refresh"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store drivers accepted in Store.Driver.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the full command configuration. Auth is handed to the engine
// builder unchanged.
type Config struct {
	Log struct {
		// dev | prod
		Env   string `yaml:"env"`
		Level string `yaml:"level"`
	} `yaml:"log"`

	Server struct {
		Addr        string `yaml:"addr"`
		MetricsPath string `yaml:"metrics_path"`
	} `yaml:"server"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Store struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"store"`

	Keys struct {
		Dir      string        `yaml:"dir"`
		Watch    bool          `yaml:"watch"`
		CacheTTL time.Duration `yaml:"cache_ttl"`
	} `yaml:"keys"`

	// PrincipalsFile is a YAML list of principals served by the static
	// directory of the serve command.
	PrincipalsFile string `yaml:"principals_file"`

	Auth jwtauth.Config `yaml:"auth"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var c Config
	c.Log.Env = "dev"
	c.Log.Level = "info"
	c.Server.Addr = ":8080"
	c.Server.MetricsPath = "/metrics"
	c.Store.Driver = DriverMemory
	c.Keys.Dir = "keys"
	c.Keys.CacheTTL = 5 * time.Minute
	c.Auth = jwtauth.DefaultConfig()
	return c
}

// Load reads path over Default, loads envFiles that exist and applies
// JWTAUTH_* overrides. An empty path skips the YAML step. The result is
// validated.
func Load(path string, envFiles ...string) (*Config, error) {
	c := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	if err := c.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the command settings and the engine configuration.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Redis.Addr == "" {
			return errors.New("config: store driver redis requires redis.addr")
		}
	case DriverSQLite, DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("config: store driver %s requires store.dsn", c.Store.Driver)
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	return c.Auth.Validate()
}

// LoadPrincipals reads a YAML list of principals.
func LoadPrincipals(path string) ([]principal.Principal, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []principal.Principal
	if err := yaml.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	for i, p := range out {
		if p.ID == "" {
			return nil, fmt.Errorf("config: principal %d has no id", i)
		}
	}
	return out, nil
}

/*
====================================
ENVIRONMENT
====================================
*/

const envPrefix = "JWTAUTH_"

func (c *Config) applyEnvOverrides() error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s%s: %w", envPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s%s: %w", envPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s%s: %w", envPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	str("LOG_ENV", &c.Log.Env)
	str("LOG_LEVEL", &c.Log.Level)
	str("SERVER_ADDR", &c.Server.Addr)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	integer("REDIS_DB", &c.Redis.DB)
	str("STORE_DRIVER", &c.Store.Driver)
	str("STORE_DSN", &c.Store.DSN)
	str("KEYS_DIR", &c.Keys.Dir)
	boolean("KEYS_WATCH", &c.Keys.Watch)
	str("PRINCIPALS_FILE", &c.PrincipalsFile)

	if v, ok := lookup("ALGORITHM"); ok {
		alg, err := jwt.ParseAlgorithm(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: %sALGORITHM: %w", envPrefix, err))
		} else {
			c.Auth.JWT.Algorithm = alg
		}
	}
	if v, ok := lookup("SUPPORTED_ALGORITHMS"); ok {
		var algs []jwt.Algorithm
		for _, name := range strings.Split(v, ",") {
			if strings.TrimSpace(name) == "" {
				continue
			}
			alg, err := jwt.ParseAlgorithm(name)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %sSUPPORTED_ALGORITHMS: %w", envPrefix, err))
				continue
			}
			algs = append(algs, alg)
		}
		c.Auth.JWT.SupportedAlgorithms = algs
	}
	dur("ACCESS_TTL", &c.Auth.JWT.AccessTTL)
	dur("LEEWAY", &c.Auth.JWT.Leeway)
	str("ISSUER", &c.Auth.JWT.Issuer)
	str("AUDIENCE", &c.Auth.JWT.Audience)
	str("PRINCIPAL_PATH", &c.Auth.Claims.PrincipalPath)

	boolean("REFRESH_ENABLED", &c.Auth.Refresh.Enabled)
	if v, ok := lookup("REFRESH_POLICY"); ok {
		p, err := refresh.ParsePolicy(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: %sREFRESH_POLICY: %w", envPrefix, err))
		} else {
			c.Auth.Refresh.Policy = p
		}
	}
	dur("REFRESH_TTL", &c.Auth.Refresh.TTL)
	boolean("ROTATE_ON_REDEEM", &c.Auth.Refresh.RotateOnRedeem)

	boolean("FLOOD_ENABLED", &c.Auth.Flood.Enabled)
	integer("FLOOD_IP_LIMIT", &c.Auth.Flood.IPLimit)
	dur("FLOOD_IP_WINDOW", &c.Auth.Flood.IPWindow)

	boolean("AUDIT_ENABLED", &c.Auth.Audit.Enabled)
	boolean("METRICS_ENABLED", &c.Auth.Metrics.Enabled)

	return errors.Join(errs...)
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

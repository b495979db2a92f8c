package config

import (
	"errors"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Port        int
	StoreURI    string
	JWTSecret   string
	TokenTTL    time.Duration
	TokenHeader string
	BcryptCost  int
	CORSOrigins []string
	LogLevel    string
	LogFormat   string
}

var ErrMissingSecret = errors.New("JWT_SECRET is not set")

// Load reads an optional .env file, then the environment. Flags from the
// serve command, when given, take precedence over both.
func Load(flags *pflag.FlagSet) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 5000)
	v.SetDefault("store_uri", "sqlite://blog.db")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("token_ttl", time.Hour)
	v.SetDefault("token_header", "x-auth-token")
	v.SetDefault("bcrypt_cost", 10)
	v.SetDefault("cors_origins", "*")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")

	if flags != nil {
		for key, name := range map[string]string{"port": "port", "store_uri": "store"} {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, err
				}
			}
		}
	}

	cfg := Config{
		Port:        v.GetInt("port"),
		StoreURI:    v.GetString("store_uri"),
		JWTSecret:   v.GetString("jwt_secret"),
		TokenTTL:    v.GetDuration("token_ttl"),
		TokenHeader: strings.ToLower(v.GetString("token_header")),
		BcryptCost:  v.GetInt("bcrypt_cost"),
		CORSOrigins: splitList(v.GetString("cors_origins")),
		LogLevel:    v.GetString("log_level"),
		LogFormat:   v.GetString("log_format"),
	}
	return cfg, nil
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return ErrMissingSecret
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.New("PORT must be between 1 and 65535")
	}
	if c.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	return nil
}

func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Package config loads server settings from the environment, optionally
// seeded by a dotenv file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// DefaultEnvFile is read when no env file is given. Its absence is not an
// error.
const DefaultEnvFile = ".env"

type Config struct {
	Host      string `env:"HOST,default=0.0.0.0"`
	Port      int    `env:"PORT,default=3000" validate:"min=1,max=65535"`
	LogLevel  string `env:"LOG_LEVEL,default=info" validate:"oneof=debug info warn error"`
	LogFormat string `env:"LOG_FORMAT,default=text" validate:"oneof=text json"`

	StoreDriver string `env:"STORE_DRIVER,default=sqlite" validate:"oneof=sqlite mysql badger"`
	StoreDSN    string `env:"STORE_DSN,required=true" validate:"required"`

	StaticDir      string `env:"STATIC_DIR"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS,default=*"`
	BcryptCost     int    `env:"BCRYPT_COST,default=10" validate:"min=10,max=31"`

	HistoryDefaultLimit int `env:"HISTORY_DEFAULT_LIMIT,default=30" validate:"min=1"`
	HistoryMaxLimit     int `env:"HISTORY_MAX_LIMIT,default=100" validate:"gtefield=HistoryDefaultLimit"`

	MaxContentLength int           `env:"MAX_CONTENT_LENGTH,default=2000" validate:"min=1"`
	SendTimeout      time.Duration `env:"SEND_TIMEOUT,default=5s" validate:"gt=0"`
	SendBufferSize   int           `env:"SEND_BUFFER_SIZE,default=64" validate:"min=1"`
	WSMaxMessageSize int64         `env:"WS_MAX_MESSAGE_SIZE,default=65536" validate:"min=1024"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s" validate:"gt=0"`
}

var validate = validator.New()

// Load reads the process environment. Keys missing from it are taken from
// envFile when that file exists; an explicitly named file must exist.
func Load(envFile string) (Config, error) {
	es, err := env.EnvironToEnvSet(os.Environ())
	if err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}

	path := envFile
	if path == "" {
		path = DefaultEnvFile
	}
	fileVals, err := godotenv.Read(path)
	switch {
	case err == nil:
		for k, v := range fileVals {
			if _, set := es[k]; !set {
				es[k] = v
			}
		}
	case errors.Is(err, fs.ErrNotExist) && envFile == "":
	default:
		return Config{}, fmt.Errorf("read env file %s: %w", path, err)
	}

	var cfg Config
	if err := env.Unmarshal(es, &cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

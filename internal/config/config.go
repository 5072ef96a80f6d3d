package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	errs "github.com/kartikbazzad/logdb/internal/errors"
	"github.com/kartikbazzad/logdb/internal/schema"
)

// Config is the handler's schema configuration plus store tuning. It is set
// once at construction and held read-only afterwards.
type Config struct {
	// Path is the location of the database file. Required.
	Path string `mapstructure:"path"`

	// TableName is the target table for inserts.
	TableName string `mapstructure:"table_name"`

	// Capacity is the record count that triggers an immediate flush.
	Capacity int `mapstructure:"capacity"`

	// FlushInterval is the period of the background flusher. Zero or
	// negative disables time-based flushing.
	FlushInterval time.Duration `mapstructure:"flush_interval"`

	// AdditionalFields declares extra columns beyond the reserved set, in
	// column order.
	AdditionalFields []schema.Field `mapstructure:"-"`

	// BusyTimeout bounds how long a connection waits on a locked database.
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`

	// LogLevel controls the handler's own diagnostics (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level"`
}

func DefaultConfig() *Config {
	return &Config{
		TableName:     "logs",
		Capacity:      1000,
		FlushInterval: 5 * time.Second,
		BusyTimeout:   5 * time.Second,
		LogLevel:      "info",
	}
}

// Validate checks the parts the schema manager does not: path presence and
// the capacity bound. Table and field names are validated by schema.New.
func (c *Config) Validate() error {
	if c.Path == "" {
		return errs.ErrMissingPath
	}
	if c.Capacity <= 0 {
		return fmt.Errorf("capacity %d: %w", c.Capacity, errs.ErrInvalidCapacity)
	}
	return nil
}

// LoadEnv overlays cfg with environment variables carrying the given prefix,
// plus an optional .env file in the working directory. The variable name
// after the prefix is the field's snake_case name: LOGDB_TABLE_NAME sets
// TableName, LOGDB_FLUSH_INTERVAL sets FlushInterval.
func LoadEnv(prefix string, cfg *Config) error {
	v := viper.New()

	v.SetConfigFile(".env")
	// .env is optional, a missing file is fine.
	_ = v.ReadInConfig()

	prefixUpper := strings.ToUpper(prefix)
	for _, envStr := range os.Environ() {
		pair := strings.SplitN(envStr, "=", 2)
		key, value := pair[0], pair[1]

		if strings.HasPrefix(key, prefixUpper) {
			propKey := strings.ToLower(strings.TrimPrefix(key, prefixUpper))
			v.Set(propKey, value)
		}
	}

	err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		// Env values arrive as strings; let "500" fill an int field.
		dc.WeaklyTypedInput = true
	})
	if err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return nil
}

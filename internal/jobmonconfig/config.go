// Package jobmonconfig loads layered configuration (env > file > default)
// for every Jobmon binary, built on github.com/spf13/viper and
// validated with github.com/go-playground/validator/v10. Grounded on
// spec.md §9's note that the Python reference uses a module-level
// JobmonConfig singleton — Go replaces the singleton with an explicit
// struct threaded through constructors — and on spec.md §6's documented
// JOBMON__-prefixed environment variables.
package jobmonconfig

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonerrors"
)

// Config is the full set of options any Jobmon process may consult. Each
// binary's cmd/ entrypoint reads only the fields it needs.
type Config struct {
	DB struct {
		DSN string `mapstructure:"dsn" validate:"required"`
	} `mapstructure:"db"`

	HTTP struct {
		ServiceURL     string        `mapstructure:"service_url" validate:"required,url"`
		RetriesTimeout time.Duration `mapstructure:"retries_timeout" validate:"required"`
	} `mapstructure:"http"`

	Heartbeat struct {
		Interval         time.Duration `mapstructure:"interval" validate:"required"`
		ReportByBuffer   float64       `mapstructure:"report_by_buffer" validate:"required,gt=1"`
	} `mapstructure:"heartbeat"`

	Distributor struct {
		PollInterval time.Duration `mapstructure:"poll_interval" validate:"required"`
		MaxBatchSize int           `mapstructure:"max_batch_size" validate:"required,gt=0"`

		// JournalPath, if set, is the local bbolt file the Distributor
		// uses to recover batch submissions across a crash. Empty
		// disables the journal.
		JournalPath string `mapstructure:"journal_path"`
	} `mapstructure:"distributor"`

	// Redis is optional: empty URL disables the Distributor's fast-path
	// lease cache and the binary falls back to Postgres-only heartbeats.
	Redis struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"redis"`

	Log struct {
		Level string `mapstructure:"level"`
		JSON  bool   `mapstructure:"json"`
	} `mapstructure:"log"`
}

// Default returns a Config with every field at its spec-documented
// default, so a caller only needs to override what's unusual for its
// deployment.
func Default() Config {
	var c Config
	c.HTTP.RetriesTimeout = 10 * time.Minute
	c.Heartbeat.Interval = 30 * time.Second
	c.Heartbeat.ReportByBuffer = 1.5
	c.Distributor.PollInterval = 10 * time.Second
	c.Distributor.MaxBatchSize = 500
	c.Log.Level = "info"
	return c
}

// Load reads configFile (if non-empty) and JOBMON__-prefixed environment
// variables (e.g. JOBMON__DB__DSN maps to DB.DSN) over the defaults, then
// validates the result.
func Load(configFile string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("jobmon_")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, jobmonerrors.Wrap(err, "read config file")
		}
	}

	bindEnv(v, "db.dsn", "http.service_url", "http.retries_timeout",
		"heartbeat.interval", "heartbeat.report_by_buffer",
		"distributor.poll_interval", "distributor.max_batch_size", "distributor.journal_path",
		"redis.url", "log.level", "log.json")

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, jobmonerrors.Wrap(err, "unmarshal config")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, jobmonerrors.Wrap(err, "validate config")
	}
	return cfg, nil
}

func bindEnv(v *viper.Viper, keys ...string) {
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}

// Package config loads fitsync settings from an optional YAML file with
// FITSYNC_* environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"fitsync/internal/blob"
	"fitsync/internal/core"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FITSYNC_"

// Config is the full runtime configuration.
type Config struct {
	LogLevel string  `yaml:"log_level" validate:"oneof=debug info warn error"`
	Storage  Storage `yaml:"storage"`
	Blob     Blob    `yaml:"blob"`
	Fit      Fit     `yaml:"fit"`
	Metrics  Metrics `yaml:"metrics"`
}

// Storage selects the snapshot store.
type Storage struct {
	Driver      string `yaml:"driver" validate:"oneof=memory sqlite postgres"`
	SQLitePath  string `yaml:"sqlite_path" validate:"required_if=Driver sqlite"`
	PostgresDSN string `yaml:"postgres_dsn" validate:"required_if=Driver postgres"`
}

// Blob selects the archive store.
type Blob struct {
	Driver string `yaml:"driver" validate:"oneof=fs s3 memory"`
	FSRoot string `yaml:"fs_root"`
	S3     S3     `yaml:"s3"`
}

// S3 configures the S3 blob driver.
type S3 struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint" validate:"omitempty,url"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" validate:"required_with=AccessKeyID"`
	PathStyle       bool   `yaml:"path_style"`
}

// Fit holds display and model defaults applied to new sessions.
type Fit struct {
	Rounding     int     `yaml:"rounding" validate:"gte=0,lte=15"`
	ChiThreshold float64 `yaml:"chi_threshold" validate:"gt=0"`
	AsymMode     string  `yaml:"asym_mode" validate:"omitempty,printascii,max=8"`
	PriorSeeding bool    `yaml:"prior_seeding"`
}

// Metrics configures the Prometheus recorder.
type Metrics struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace" validate:"omitempty,excludesall=-."`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		LogLevel: "info",
		Storage:  Storage{Driver: "sqlite", SQLitePath: "fitsync.db"},
		Blob:     Blob{Driver: "fs", FSRoot: "./blobdata"},
		Fit: Fit{
			Rounding:     core.DefaultRounding,
			ChiThreshold: core.DefaultChiThreshold,
			AsymMode:     "c",
		},
		Metrics: Metrics{Namespace: "fitsync"},
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		b := sl.Current().Interface().(Blob)
		if b.Driver == "s3" && strings.TrimSpace(b.S3.Bucket) == "" {
			sl.ReportError(b.S3.Bucket, "S3.Bucket", "Bucket", "required_for_s3", "")
		}
	}, Blob{})
	return v
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// empty) and the process environment, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer func() { _ = f.Close() }()
		if err := decode(f, &cfg); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

// applyEnv overlays FITSYNC_* variables.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	str("LOG_LEVEL", &cfg.LogLevel)
	str("STORAGE_DRIVER", &cfg.Storage.Driver)
	str("SQLITE_PATH", &cfg.Storage.SQLitePath)
	str("POSTGRES_DSN", &cfg.Storage.PostgresDSN)
	str("BLOB_DRIVER", &cfg.Blob.Driver)
	str("BLOB_FS_ROOT", &cfg.Blob.FSRoot)
	str("BLOB_S3_BUCKET", &cfg.Blob.S3.Bucket)
	str("BLOB_S3_REGION", &cfg.Blob.S3.Region)
	str("BLOB_S3_ENDPOINT", &cfg.Blob.S3.Endpoint)
	str("BLOB_S3_ACCESS_KEY_ID", &cfg.Blob.S3.AccessKeyID)
	str("BLOB_S3_SECRET_ACCESS_KEY", &cfg.Blob.S3.SecretAccessKey)
	boolean("BLOB_S3_PATH_STYLE", &cfg.Blob.S3.PathStyle)
	str("FIT_ASYM_MODE", &cfg.Fit.AsymMode)
	boolean("FIT_PRIOR_SEEDING", &cfg.Fit.PriorSeeding)
	boolean("METRICS_ENABLED", &cfg.Metrics.Enabled)
	str("METRICS_NAMESPACE", &cfg.Metrics.Namespace)
	if v, ok := lookup(EnvPrefix + "FIT_ROUNDING"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%sFIT_ROUNDING: %w", EnvPrefix, err))
		} else {
			cfg.Fit.Rounding = n
		}
	}
	if v, ok := lookup(EnvPrefix + "FIT_CHI_THRESHOLD"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sFIT_CHI_THRESHOLD: %w", EnvPrefix, err))
		} else {
			cfg.Fit.ChiThreshold = f
		}
	}
	return errors.Join(errs...)
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// StorageOptions maps the storage section onto core.OpenSnapshotStore.
func (c Config) StorageOptions() core.StorageOptions {
	return core.StorageOptions{
		Driver:      core.StorageDriver(c.Storage.Driver),
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
	}
}

// BlobOptions maps the blob section onto blob.Open.
func (c Config) BlobOptions() blob.Options {
	return blob.Options{
		Driver: blob.Driver(c.Blob.Driver),
		FSRoot: c.Blob.FSRoot,
		S3: blob.S3Config{
			Bucket:          c.Blob.S3.Bucket,
			Region:          c.Blob.S3.Region,
			Endpoint:        c.Blob.S3.Endpoint,
			AccessKeyID:     c.Blob.S3.AccessKeyID,
			SecretAccessKey: c.Blob.S3.SecretAccessKey,
			PathStyle:       c.Blob.S3.PathStyle,
		},
	}
}

// SessionOptions returns the session options implied by the fit section.
func (c Config) SessionOptions() []core.SessionOption {
	return []core.SessionOption{
		core.WithRounding(c.Fit.Rounding),
		core.WithChiThreshold(c.Fit.ChiThreshold),
		core.WithAsymMode(c.Fit.AsymMode),
		func(s *core.Session) { s.SetPriorSeeding(c.Fit.PriorSeeding) },
	}
}

// MetricsRecorder returns a Prometheus recorder registered on reg when
// metrics are enabled and an expvar recorder otherwise.
func (c Config) MetricsRecorder(reg prometheus.Registerer) (core.MetricsRecorder, error) {
	if !c.Metrics.Enabled {
		return core.NewExpvarMetricsRecorder(""), nil
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	rec, err := core.NewPrometheusMetricsRecorder(reg, c.Metrics.Namespace)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Level parses LogLevel.
func (c Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

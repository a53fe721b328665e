package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"fitsync/internal/blob"
	"fitsync/internal/core"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fitsync.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Blob.Driver != "fs" || cfg.Fit.Rounding != core.DefaultRounding {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Level() != slog.LevelInfo {
		t.Fatalf("expected info level")
	}
}

func TestFileThenEnvironment(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
storage:
  driver: postgres
  postgres_dsn: postgres://file
blob:
  driver: s3
  s3:
    bucket: runs
    region: us-east-1
fit:
  rounding: 3
  chi_threshold: 2.5
`)
	t.Setenv("FITSYNC_POSTGRES_DSN", "postgres://env")
	t.Setenv("FITSYNC_BLOB_S3_PATH_STYLE", "true")
	t.Setenv("FITSYNC_BLOB_S3_ENDPOINT", "http://localhost:9000")
	t.Setenv("FITSYNC_FIT_PRIOR_SEEDING", "1")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Level() != slog.LevelDebug || cfg.Storage.PostgresDSN != "postgres://env" {
		t.Fatalf("env must override file: %+v", cfg)
	}
	if cfg.Fit.Rounding != 3 || cfg.Fit.ChiThreshold != 2.5 || !cfg.Fit.PriorSeeding {
		t.Fatalf("unexpected fit section %+v", cfg.Fit)
	}
	st := cfg.StorageOptions()
	if st.Driver != core.StoragePostgres || st.PostgresDSN != "postgres://env" {
		t.Fatalf("unexpected storage options %+v", st)
	}
	bo := cfg.BlobOptions()
	if bo.Driver != blob.DriverS3 || bo.S3.Bucket != "runs" || !bo.S3.PathStyle || bo.S3.Endpoint != "http://localhost:9000" {
		t.Fatalf("unexpected blob options %+v", bo)
	}
	if len(cfg.SessionOptions()) != 4 {
		t.Fatalf("expected four session options")
	}
}

func TestValidationFailures(t *testing.T) {
	cases := map[string]struct {
		env  map[string]string
		want string
	}{
		"unknown storage":   {map[string]string{"FITSYNC_STORAGE_DRIVER": "etcd"}, "Storage.Driver"},
		"postgres no dsn":   {map[string]string{"FITSYNC_STORAGE_DRIVER": "postgres"}, "PostgresDSN"},
		"s3 without bucket": {map[string]string{"FITSYNC_BLOB_DRIVER": "s3"}, "Bucket"},
		"bad level":         {map[string]string{"FITSYNC_LOG_LEVEL": "loud"}, "LogLevel"},
		"bad rounding":      {map[string]string{"FITSYNC_FIT_ROUNDING": "x"}, "FITSYNC_FIT_ROUNDING"},
		"negative chi":      {map[string]string{"FITSYNC_FIT_CHI_THRESHOLD": "-1"}, "ChiThreshold"},
		"bad path style":    {map[string]string{"FITSYNC_BLOB_S3_PATH_STYLE": "maybe"}, "PATH_STYLE"},
		"secret missing": {map[string]string{
			"FITSYNC_BLOB_S3_ACCESS_KEY_ID": "AKIA",
		}, "SecretAccessKey"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range c.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			if err == nil || !strings.Contains(err.Error(), c.want) {
				t.Fatalf("expected error mentioning %s, got %v", c.want, err)
			}
		})
	}
}

func TestFileErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file error")
	}
	if _, err := Load(writeConfig(t, "storage:\n  engine: sqlite\n")); err == nil {
		t.Fatalf("expected unknown field error")
	}
	cfg, err := Load(writeConfig(t, "  \n"))
	if err != nil || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("empty file must keep defaults: %+v %v", cfg, err)
	}
}

func TestMetricsRecorderSelection(t *testing.T) {
	cfg := Default()
	rec, err := cfg.MetricsRecorder(nil)
	if err != nil {
		t.Fatalf("recorder: %v", err)
	}
	if _, ok := rec.(*core.ExpvarMetricsRecorder); !ok {
		t.Fatalf("expected expvar recorder when disabled, got %T", rec)
	}
	cfg.Metrics.Enabled = true
	reg := prometheus.NewRegistry()
	rec, err = cfg.MetricsRecorder(reg)
	if err != nil {
		t.Fatalf("recorder: %v", err)
	}
	if _, ok := rec.(*core.PrometheusMetricsRecorder); !ok {
		t.Fatalf("expected prometheus recorder, got %T", rec)
	}
	if _, err := cfg.MetricsRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

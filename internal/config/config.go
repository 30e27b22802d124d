// Package config loads server settings from a YAML file and WORKLIST_*
// environment variables. Flags are applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddress string        `yaml:"listen_address"`
	Log           LogConfig     `yaml:"log"`
	DICOMWeb      DICOMWeb      `yaml:"dicomweb"`
	Blob          BlobConfig    `yaml:"blob"`
	Storage       StorageConfig `yaml:"storage"`
	Worklist      Worklist      `yaml:"worklist"`
	Local         Local         `yaml:"local"`
	Bridge        Bridge        `yaml:"bridge"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type DICOMWeb struct {
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
	RetryMax int           `yaml:"retry_max"`
	// UploadEnabled is surfaced through the data source config; the
	// worklist shows an upload entry point when it is set.
	UploadEnabled bool `yaml:"upload_enabled"`
}

type BlobConfig struct {
	Driver      string `yaml:"driver"` // memory|fs|s3
	FSRoot      string `yaml:"fs_root"`
	S3Bucket    string `yaml:"s3_bucket"`
	S3Region    string `yaml:"s3_region"`
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

type StorageConfig struct {
	Driver     string `yaml:"driver"` // memory|sqlite
	SQLitePath string `yaml:"sqlite_path"`
}

type Worklist struct {
	Debounce       time.Duration `yaml:"debounce"`
	StudiesLimit   int           `yaml:"studies_limit"`
	DefaultPerPage int           `yaml:"default_per_page"`
}

type Local struct {
	ModePath   string   `yaml:"mode_path"`
	Extensions []string `yaml:"extensions"`
}

type Bridge struct {
	OpenDelay                time.Duration `yaml:"open_delay"`
	AllowedOrigins           []string      `yaml:"allowed_origins"`
	AllowAnyOrigin           bool          `yaml:"allow_any_origin"`
	RevokeAfterIngest        bool          `yaml:"revoke_after_ingest"`
	ClearStorageAfterHandoff bool          `yaml:"clear_storage_after_handoff"`
}

// Default mirrors the reference behaviour of the viewer: permissive origin
// handling, no revocation, a 101-result cap and a 200 ms filter debounce.
func Default() *Config {
	return &Config{
		ListenAddress: ":8080",
		Log:           LogConfig{Level: "info", Format: "console"},
		DICOMWeb: DICOMWeb{
			BaseURL: "http://localhost:8042/dicom-web",
			Timeout: 15 * time.Second,
		},
		Blob:    BlobConfig{Driver: "memory", FSRoot: "./blobdata"},
		Storage: StorageConfig{Driver: "memory", SQLitePath: "worklist.db"},
		Worklist: Worklist{
			Debounce:       200 * time.Millisecond,
			StudiesLimit:   101,
			DefaultPerPage: 25,
		},
		Local: Local{
			ModePath:   "viewer",
			Extensions: []string{"@ohif/extension-default", "@ohif/extension-dicom-microscopy"},
		},
		Bridge: Bridge{
			OpenDelay:      500 * time.Millisecond,
			AllowAnyOrigin: true,
		},
	}
}

// Load reads path (optional) over the defaults and then applies the
// environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	var errs []error
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok {
			*dst = splitList(v)
		}
	}

	str("WORKLIST_LISTEN_ADDRESS", &c.ListenAddress)
	str("WORKLIST_LOG_LEVEL", &c.Log.Level)
	str("WORKLIST_LOG_FORMAT", &c.Log.Format)
	str("WORKLIST_DICOMWEB_URL", &c.DICOMWeb.BaseURL)
	dur("WORKLIST_DICOMWEB_TIMEOUT", &c.DICOMWeb.Timeout)
	integer("WORKLIST_DICOMWEB_RETRY_MAX", &c.DICOMWeb.RetryMax)
	boolean("WORKLIST_DICOMWEB_UPLOAD_ENABLED", &c.DICOMWeb.UploadEnabled)
	str("WORKLIST_BLOB_DRIVER", &c.Blob.Driver)
	str("WORKLIST_BLOB_FS_ROOT", &c.Blob.FSRoot)
	str("WORKLIST_BLOB_S3_BUCKET", &c.Blob.S3Bucket)
	str("WORKLIST_BLOB_S3_REGION", &c.Blob.S3Region)
	str("WORKLIST_BLOB_S3_ENDPOINT", &c.Blob.S3Endpoint)
	boolean("WORKLIST_BLOB_S3_PATH_STYLE", &c.Blob.S3PathStyle)
	str("WORKLIST_STORAGE_DRIVER", &c.Storage.Driver)
	str("WORKLIST_STORAGE_SQLITE_PATH", &c.Storage.SQLitePath)
	dur("WORKLIST_DEBOUNCE", &c.Worklist.Debounce)
	str("WORKLIST_MODE_PATH", &c.Local.ModePath)
	list("WORKLIST_EXTENSIONS", &c.Local.Extensions)
	dur("WORKLIST_BRIDGE_OPEN_DELAY", &c.Bridge.OpenDelay)
	list("WORKLIST_BRIDGE_ALLOWED_ORIGINS", &c.Bridge.AllowedOrigins)
	boolean("WORKLIST_BRIDGE_ALLOW_ANY_ORIGIN", &c.Bridge.AllowAnyOrigin)
	boolean("WORKLIST_BRIDGE_REVOKE_AFTER_INGEST", &c.Bridge.RevokeAfterIngest)
	boolean("WORKLIST_BRIDGE_CLEAR_STORAGE", &c.Bridge.ClearStorageAfterHandoff)

	return errors.Join(errs...)
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Blob.Driver {
	case "memory", "fs":
	case "s3":
		if c.Blob.S3Bucket == "" {
			errs = append(errs, errors.New("blob.s3_bucket required for s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob driver %q", c.Blob.Driver))
	}
	switch c.Storage.Driver {
	case "memory", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if c.Worklist.StudiesLimit <= 0 {
		errs = append(errs, errors.New("worklist.studies_limit must be positive"))
	}
	if c.Worklist.DefaultPerPage <= 0 {
		errs = append(errs, errors.New("worklist.default_per_page must be positive"))
	}
	if c.Worklist.Debounce < 0 || c.Bridge.OpenDelay < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if c.Local.ModePath == "" {
		errs = append(errs, errors.New("local.mode_path required"))
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package gcp

import (
	"fmt"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

type ObjectStorageMode string

const (
	ObjectStorageModeDisabled    ObjectStorageMode = "disabled"
	ObjectStorageModeGCS         ObjectStorageMode = "gcs"
	ObjectStorageModeGCSEmulator ObjectStorageMode = "gcs_emulator"
)

// ArchiveConfig selects where raw document bytes are archived. An empty bucket
// disables archiving.
type ArchiveConfig struct {
	Mode         ObjectStorageMode
	Bucket       string
	Prefix       string
	EmulatorHost string
	// Credentials is inline service account JSON or a path to it. Empty uses the
	// ambient application default credentials.
	Credentials string
}

type ConfigErrorCode string

const (
	ConfigErrorInvalidMode         ConfigErrorCode = "invalid_mode"
	ConfigErrorMissingBucket       ConfigErrorCode = "missing_bucket"
	ConfigErrorMissingEmulatorHost ConfigErrorCode = "missing_emulator_host"
	ConfigErrorInvalidEmulatorHost ConfigErrorCode = "invalid_emulator_host"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid archive config"
	}
	switch e.Code {
	case ConfigErrorInvalidMode:
		return fmt.Sprintf("invalid OBJECT_STORAGE_MODE=%q (allowed: %q, %q, %q)", e.Value,
			ObjectStorageModeDisabled, ObjectStorageModeGCS, ObjectStorageModeGCSEmulator)
	case ConfigErrorMissingBucket:
		return "ARCHIVE_GCS_BUCKET is required when archiving is enabled"
	case ConfigErrorMissingEmulatorHost:
		return fmt.Sprintf("OBJECT_STORAGE_MODE=%q requires STORAGE_EMULATOR_HOST to be set", ObjectStorageModeGCSEmulator)
	case ConfigErrorInvalidEmulatorHost:
		return fmt.Sprintf("invalid STORAGE_EMULATOR_HOST=%q; expected absolute URL like http://fake-gcs:4443", e.Value)
	default:
		return "invalid archive config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Normalize fills the mode from the other fields when it was left empty: no bucket
// means disabled, an emulator host means the emulator.
func (cfg ArchiveConfig) Normalize() ArchiveConfig {
	cfg.Mode = ObjectStorageMode(strings.ToLower(strings.TrimSpace(string(cfg.Mode))))
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	cfg.EmulatorHost = strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")
	cfg.Prefix = strings.Trim(strings.TrimSpace(cfg.Prefix), "/")
	cfg.Credentials = strings.TrimSpace(cfg.Credentials)
	if cfg.Mode == "" {
		switch {
		case cfg.Bucket == "":
			cfg.Mode = ObjectStorageModeDisabled
		case cfg.EmulatorHost != "":
			cfg.Mode = ObjectStorageModeGCSEmulator
		default:
			cfg.Mode = ObjectStorageModeGCS
		}
	}
	return cfg
}

func (cfg ArchiveConfig) clientOptions() []option.ClientOption {
	if cfg.Mode == ObjectStorageModeGCSEmulator {
		return []option.ClientOption{option.WithoutAuthentication(), option.WithEndpoint(cfg.EmulatorHost + "/storage/v1/")}
	}
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	switch {
	case cfg.Credentials == "":
	case strings.HasPrefix(cfg.Credentials, "{"):
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.Credentials)))
	default:
		opts = append(opts, option.WithCredentialsFile(cfg.Credentials))
	}
	return opts
}

func (cfg ArchiveConfig) Enabled() bool { return cfg.Mode != ObjectStorageModeDisabled }

func (cfg ArchiveConfig) Validate() error {
	switch cfg.Mode {
	case ObjectStorageModeDisabled:
		return nil
	case ObjectStorageModeGCS, ObjectStorageModeGCSEmulator:
	default:
		return &ConfigError{Code: ConfigErrorInvalidMode, Value: string(cfg.Mode)}
	}
	if cfg.Bucket == "" {
		return &ConfigError{Code: ConfigErrorMissingBucket}
	}
	if cfg.Mode != ObjectStorageModeGCSEmulator {
		return nil
	}
	if cfg.EmulatorHost == "" {
		return &ConfigError{Code: ConfigErrorMissingEmulatorHost}
	}
	u, err := url.Parse(cfg.EmulatorHost)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &ConfigError{Code: ConfigErrorInvalidEmulatorHost, Value: cfg.EmulatorHost, Cause: err}
	}
	return nil
}

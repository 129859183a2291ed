// Package config resolves the source and destination store settings.
//
// Values are read from the process environment and an optional dotenv file,
// with the environment taking precedence. Each side has its own prefix
// (SRC_ or DEST_) and falls back to the unprefixed variable:
//
//	<P>AWS_ACCESS_KEY_ID, <P>AWS_SECRET_ACCESS_KEY, <P>AWS_SESSION_TOKEN
//	<P>AWS_REGION, then AWS_REGION, then DEFAULT_AWS_REGION
//	<P>ENDPOINT, <P>DRIVER, <P>FORCE_PATH_STYLE
//	<P>INSECURE_SKIP_VERIFY
//	<P>ROOT_DIR (fs driver only)
//
// Credentials are only taken from a prefix when both the key id and the
// secret are set for it. Without any, the SDK default chain applies.
//
// Example usage:
//
//	cfg, err := config.Load(config.Options{EnvFile: ".env"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	src, err := cfg.Source.Open(ctx)
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/piwi3910/bucketshift/internal/storage/backend"
	"github.com/piwi3910/bucketshift/internal/storage/fs"
	"github.com/piwi3910/bucketshift/internal/storage/miniobackend"
	"github.com/piwi3910/bucketshift/internal/storage/s3backend"
)

// Side prefixes.
const (
	SourcePrefix      = "SRC_"
	DestinationPrefix = "DEST_"
)

// DefaultEnvFile is read when present and no other file is named.
const DefaultEnvFile = ".env"

// Driver selects the client library for one side.
type Driver string

// Supported drivers.
const (
	DriverS3    Driver = "s3"
	DriverMinio Driver = "minio"
	DriverFS    Driver = "fs"
)

// StoreConfig holds the resolved settings for one side.
type StoreConfig struct {
	// Prefix is the environment prefix the side was resolved from.
	Prefix string

	Driver          Driver
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	UsePathStyle    bool
	Checksum        backend.ChecksumMode
	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// RootDir is the directory holding buckets for the fs driver.
	RootDir string
}

// Config holds the settings for both sides of a migration.
type Config struct {
	Source      StoreConfig
	Destination StoreConfig
}

// Options controls Load.
type Options struct {
	// EnvFile names a dotenv file. It must exist when set; when empty,
	// DefaultEnvFile is read if it exists.
	EnvFile string

	// Checksum is the checksum mode for both sides. Empty means
	// when-supported.
	Checksum string

	// SourceOnly resolves and validates the source side alone. Destination
	// is left zero.
	SourceOnly bool
}

// Load resolves both sides from the environment and the env file, or only
// the source when opts.SourceOnly is set.
func Load(opts Options) (*Config, error) {
	v := viper.New()

	if err := readEnvFile(v, opts.EnvFile); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	checksum, err := backend.ParseChecksumMode(opts.Checksum)
	if err != nil {
		return nil, err
	}

	src, err := resolveStore(v, SourcePrefix, checksum)
	if err != nil {
		return nil, err
	}

	if opts.SourceOnly {
		if err := src.Validate(); err != nil {
			return nil, err
		}

		return &Config{Source: src}, nil
	}

	dst, err := resolveStore(v, DestinationPrefix, checksum)
	if err != nil {
		return nil, err
	}

	cfg := &Config{Source: src, Destination: dst}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func readEnvFile(v *viper.Viper, path string) error {
	required := path != ""
	if !required {
		path = DefaultEnvFile
	}

	if _, err := os.Stat(path); err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("failed to read env file: %w", err)
	}

	v.SetConfigFile(path)
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read env file: %w", err)
	}

	return nil
}

// lookup returns the first non-empty value among keys.
func lookup(v *viper.Viper, keys ...string) string {
	for _, k := range keys {
		if s := strings.TrimSpace(v.GetString(k)); s != "" {
			return s
		}
	}

	return ""
}

func resolveStore(v *viper.Viper, prefix string, checksum backend.ChecksumMode) (StoreConfig, error) {
	sc := StoreConfig{
		Prefix:   prefix,
		Region:   lookup(v, prefix+"AWS_REGION", "AWS_REGION", "DEFAULT_AWS_REGION"),
		Endpoint: lookup(v, prefix+"ENDPOINT", "ENDPOINT"),
		Driver:   Driver(strings.ToLower(lookup(v, prefix+"DRIVER", "DRIVER"))),
		RootDir:  lookup(v, prefix+"ROOT_DIR", "ROOT_DIR"),
		Checksum: checksum,
	}

	if sc.Driver == "" {
		sc.Driver = DriverS3
	}

	for _, p := range []string{prefix, ""} {
		id := v.GetString(p + "AWS_ACCESS_KEY_ID")
		secret := v.GetString(p + "AWS_SECRET_ACCESS_KEY")

		if id != "" && secret != "" {
			sc.AccessKeyID = id
			sc.SecretAccessKey = secret
			sc.SessionToken = v.GetString(p + "AWS_SESSION_TOKEN")

			break
		}
	}

	sc.UsePathStyle = sc.Endpoint != ""

	if raw := lookup(v, prefix+"FORCE_PATH_STYLE", "FORCE_PATH_STYLE"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return sc, fmt.Errorf("invalid %sFORCE_PATH_STYLE %q: %w", prefix, raw, err)
		}

		sc.UsePathStyle = b
	}

	if raw := lookup(v, prefix+"INSECURE_SKIP_VERIFY", "INSECURE_SKIP_VERIFY"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return sc, fmt.Errorf("invalid %sINSECURE_SKIP_VERIFY %q: %w", prefix, raw, err)
		}

		sc.InsecureSkipVerify = b
	}

	return sc, nil
}

// Validate checks both sides.
func (c *Config) Validate() error {
	if err := c.Source.Validate(); err != nil {
		return err
	}

	return c.Destination.Validate()
}

// Validate checks the driver and its requirements.
func (s StoreConfig) Validate() error {
	switch s.Driver {
	case DriverS3:
		return nil
	case DriverMinio:
		if s.Endpoint == "" {
			return fmt.Errorf("%sENDPOINT is required for the minio driver", s.Prefix)
		}

		return nil
	case DriverFS:
		if s.RootDir == "" {
			return fmt.Errorf("%sROOT_DIR is required for the fs driver", s.Prefix)
		}

		return nil
	default:
		return fmt.Errorf("unknown %sDRIVER %q (allowed: s3, minio, fs)", s.Prefix, s.Driver)
	}
}

// HasStaticCredentials reports whether explicit credentials were resolved.
func (s StoreConfig) HasStaticCredentials() bool {
	return s.AccessKeyID != "" && s.SecretAccessKey != ""
}

// S3 returns the aws-sdk-go-v2 backend configuration.
func (s StoreConfig) S3() s3backend.Config {
	return s3backend.Config{
		Region:          s.Region,
		Endpoint:        s.Endpoint,
		AccessKeyID:     s.AccessKeyID,
		SecretAccessKey: s.SecretAccessKey,
		SessionToken:    s.SessionToken,
		UsePathStyle:    s.UsePathStyle,
		Checksum:        s.Checksum,

		InsecureSkipVerify: s.InsecureSkipVerify,
	}
}

// Minio returns the minio-go backend configuration.
func (s StoreConfig) Minio() miniobackend.Config {
	return miniobackend.Config{
		Endpoint:        s.Endpoint,
		Region:          s.Region,
		AccessKeyID:     s.AccessKeyID,
		SecretAccessKey: s.SecretAccessKey,
		SessionToken:    s.SessionToken,
		UsePathStyle:    s.UsePathStyle,
		Checksum:        s.Checksum,

		InsecureSkipVerify: s.InsecureSkipVerify,
	}
}

// Open creates the object store for this side.
func (s StoreConfig) Open(ctx context.Context) (backend.ObjectStore, error) {
	switch s.Driver {
	case DriverMinio:
		store, err := miniobackend.New(s.Minio())
		if err != nil {
			return nil, fmt.Errorf("failed to create %sminio client: %w", s.Prefix, err)
		}

		return store, nil
	case DriverFS:
		store, err := fs.New(fs.Config{RootDir: s.RootDir})
		if err != nil {
			return nil, fmt.Errorf("failed to open %sfs store: %w", s.Prefix, err)
		}

		return store, nil
	case DriverS3, "":
		store, err := s3backend.New(ctx, s.S3())
		if err != nil {
			return nil, fmt.Errorf("failed to create %ss3 client: %w", s.Prefix, err)
		}

		return store, nil
	default:
		return nil, fmt.Errorf("unknown driver %q", s.Driver)
	}
}

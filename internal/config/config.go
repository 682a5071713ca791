// Package config provides functionality for managing configuration options
// for the application using command-line flags, an optional JSON file and
// environment variables.
//
// Precedence, lowest first: defaults, config file, flags set on the command
// line, environment variables.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Storage backends.
const (
	StorageFS       = "fs"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

const (
	defaultAddress       = "127.0.0.1:8778"
	defaultDataDir       = "kosync-data"
	defaultStatsInterval = time.Minute
)

// Duration is a time.Duration that reads "1m30s" style strings from flags and
// JSON.
type Duration time.Duration

// String implements flag.Value.
func (d *Duration) String() string { return time.Duration(*d).String() }

// Set implements flag.Value.
func (d *Duration) Set(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// UnmarshalJSON accepts a duration string or a number of seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return d.Set(s)
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("duration must be a string or seconds: %s", b)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// Options holds the configuration values for the application.
type Options struct {
	// Address defines the protocol listener address (ip:port).
	Address string `json:"address"`

	// DataPath is the root of the filesystem store.
	DataPath string `json:"data"`

	// NoAuth maps every caller to the anonymous identity.
	NoAuth bool `json:"noauth"`

	// Storage selects the backend: fs, sqlite or postgres.
	Storage string `json:"storage"`

	// DatabaseDSN holds the connection string of the SQL backends. For
	// sqlite it is a file path and defaults to kosync.db in DataPath.
	DatabaseDSN string `json:"database_dsn"`

	// PasswordHash selects the hasher for new registrations.
	PasswordHash string `json:"password_hash"`

	// LogLevel is a zap level name.
	LogLevel string `json:"log_level"`

	// MetricsAddress enables the Prometheus listener when set.
	MetricsAddress string `json:"metrics_address"`

	// StatsInterval is how often store size gauges are refreshed.
	StatsInterval Duration `json:"stats_interval"`

	// TLSCert and TLSKey enable TLS on the protocol listener when both are set.
	TLSCert string `json:"tls_cert"`
	TLSKey  string `json:"tls_key"`

	// Config is the path to the Config file.
	Config string `json:"-"`

	// Version asks the binary to print its version and exit.
	Version bool `json:"-"`
}

// TLSEnabled reports whether the protocol listener serves TLS.
func (o *Options) TLSEnabled() bool {
	return o.TLSCert != "" && o.TLSKey != ""
}

// Default returns the options used when nothing is configured.
func Default() *Options {
	return &Options{
		Address:       defaultAddress,
		DataPath:      defaultDataPath(),
		Storage:       StorageFS,
		PasswordHash:  "sha256",
		LogLevel:      "info",
		StatsInterval: Duration(defaultStatsInterval),
	}
}

// defaultDataPath places the store next to the executable.
func defaultDataPath() string {
	exe, err := os.Executable()
	if err != nil {
		return defaultDataDir
	}
	return filepath.Join(filepath.Dir(exe), defaultDataDir)
}

// Parse parses the process arguments and environment. It exits with status 2
// on invalid flags, like the flag package does.
func Parse() *Options {
	opts, err := ParseArgs(os.Args[0], os.Args[1:], os.Getenv, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return opts
}

// ParseArgs builds Options from args and the environment lookup getenv.
// Usage and flag errors are written to out.
func ParseArgs(name string, args []string, getenv func(string) string, out io.Writer) (*Options, error) {
	opts := Default()
	flags := *opts

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&flags.Address, "a", flags.Address, "run on ip:port server")
	fs.StringVar(&flags.Address, "address", flags.Address, "run on ip:port server")
	fs.StringVar(&flags.DataPath, "data", flags.DataPath, "path to the folder where data will be stored")
	fs.BoolVar(&flags.NoAuth, "noauth", false, "ignore authentication, store everything under \"noauth\"")
	fs.StringVar(&flags.Storage, "storage", flags.Storage, "storage backend: fs, sqlite or postgres")
	fs.StringVar(&flags.DatabaseDSN, "d", "", "db address (postgres DSN or sqlite file)")
	fs.StringVar(&flags.PasswordHash, "password-hash", flags.PasswordHash, "hash for new passwords: sha256 or argon2id")
	fs.StringVar(&flags.LogLevel, "log-level", flags.LogLevel, "log level")
	fs.StringVar(&flags.MetricsAddress, "metrics-address", "", "serve Prometheus metrics on ip:port")
	fs.Var(&flags.StatsInterval, "stats-interval", "store statistics refresh interval")
	fs.StringVar(&flags.TLSCert, "tls-cert", "", "TLS certificate file")
	fs.StringVar(&flags.TLSKey, "tls-key", "", "TLS private key file")
	fs.StringVar(&flags.Config, "config", "", "path to config file")
	fs.StringVar(&flags.Config, "c", "", "path to config file (shorthand)")
	fs.BoolVar(&flags.Version, "v", false, "print version and exit")
	fs.BoolVar(&flags.Version, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	configPath := flags.Config
	if v := getenv("CONFIG"); v != "" {
		configPath = v
	}
	if configPath != "" {
		if err := loadFile(configPath, opts); err != nil {
			return nil, err
		}
	}
	opts.Config = configPath
	opts.Version = flags.Version

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "a", "address":
			opts.Address = flags.Address
		case "data":
			opts.DataPath = flags.DataPath
		case "noauth":
			opts.NoAuth = flags.NoAuth
		case "storage":
			opts.Storage = flags.Storage
		case "d":
			opts.DatabaseDSN = flags.DatabaseDSN
		case "password-hash":
			opts.PasswordHash = flags.PasswordHash
		case "log-level":
			opts.LogLevel = flags.LogLevel
		case "metrics-address":
			opts.MetricsAddress = flags.MetricsAddress
		case "stats-interval":
			opts.StatsInterval = flags.StatsInterval
		case "tls-cert":
			opts.TLSCert = flags.TLSCert
		case "tls-key":
			opts.TLSKey = flags.TLSKey
		}
	})

	if err := applyEnv(opts, getenv); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

func loadFile(path string, opts *Options) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error while reading config file: %w", err)
	}
	if err := json.Unmarshal(data, opts); err != nil {
		return fmt.Errorf("error while parsing config file: %w", err)
	}
	return nil
}

func applyEnv(opts *Options, getenv func(string) string) error {
	if v := getenv("SERVER_ADDRESS"); v != "" {
		opts.Address = v
	}
	if v := getenv("KOSYNC_DATA"); v != "" {
		opts.DataPath = v
	}
	if v := getenv("KOSYNC_NOAUTH"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("KOSYNC_NOAUTH: %w", err)
		}
		opts.NoAuth = b
	}
	if v := getenv("KOSYNC_STORAGE"); v != "" {
		opts.Storage = v
	}
	if v := getenv("DATABASE_DSN"); v != "" {
		opts.DatabaseDSN = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		opts.LogLevel = v
	}
	if v := getenv("METRICS_ADDRESS"); v != "" {
		opts.MetricsAddress = v
	}
	return nil
}

// Validate checks option combinations and fills derived defaults.
func (o *Options) Validate() error {
	switch o.Storage {
	case StorageFS:
	case StorageSQLite:
		if o.DatabaseDSN == "" {
			o.DatabaseDSN = filepath.Join(o.DataPath, "kosync.db")
		}
	case StoragePostgres:
		if o.DatabaseDSN == "" {
			return errors.New("postgres storage requires a DSN (-d or DATABASE_DSN)")
		}
	default:
		return fmt.Errorf("unknown storage %q", o.Storage)
	}
	switch o.PasswordHash {
	case "sha256", "argon2id":
	default:
		return fmt.Errorf("unknown password hash %q", o.PasswordHash)
	}
	if (o.TLSCert == "") != (o.TLSKey == "") {
		return errors.New("tls-cert and tls-key must be set together")
	}
	if o.StatsInterval <= 0 {
		return fmt.Errorf("stats interval must be positive, got %s", o.StatsInterval.String())
	}
	if o.DataPath == "" {
		return errors.New("data path must not be empty")
	}
	return nil
}

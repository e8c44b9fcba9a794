package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel    string            `mapstructure:"log_level"`
	Runtime     RuntimeConfig     `mapstructure:"runtime"`
	Engine      EngineConfig      `mapstructure:"engine"`
	Tolerance   ToleranceConfig   `mapstructure:"tolerance"`
	Conformance ConformanceConfig `mapstructure:"conformance"`
	Server      ServerConfig      `mapstructure:"server"`
}

type RuntimeConfig struct {
	// Workers bounds kernel parallelism. Zero uses GOMAXPROCS.
	Workers        int    `mapstructure:"workers"`
	ORTLibraryPath string `mapstructure:"ort_library_path"`
	ORTVersion     string `mapstructure:"ort_version"`
	ORTAPIVersion  uint32 `mapstructure:"ort_api_version"`
}

type EngineConfig struct {
	DefaultOpset int `mapstructure:"default_opset"`
	// Seed makes random operators reproducible. Negative leaves them
	// unseeded.
	Seed int64 `mapstructure:"seed"`
	// MaxElements bounds the element count of any tensor an evaluation
	// builds. Larger shapes fail as InvalidShape.
	MaxElements int64 `mapstructure:"max_elements"`
}

type ToleranceConfig struct {
	Abs float64 `mapstructure:"abs"`
	Rel float64 `mapstructure:"rel"`
}

type ConformanceConfig struct {
	TestDataDir string `mapstructure:"test_data_dir"`
	Workers     int    `mapstructure:"workers"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	Workers         int    `mapstructure:"workers"`
	MaxBodyBytes    int64  `mapstructure:"max_body_bytes"`
	RequestTimeout  int    `mapstructure:"request_timeout"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Runtime: RuntimeConfig{
			Workers:       0,
			ORTAPIVersion: 23,
		},
		Engine: EngineConfig{
			DefaultOpset: 0,
			Seed:         -1,
			MaxElements:  1 << 27,
		},
		Tolerance: ToleranceConfig{
			Abs: 1e-7,
			Rel: 1e-3,
		},
		Conformance: ConformanceConfig{
			TestDataDir: "testdata/node",
			Workers:     4,
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			Workers:         2,
			MaxBodyBytes:    8 << 20,
			RequestTimeout:  30,
			ShutdownTimeout: 30,
		},
	}
}

// flagKeys maps every registered flag to its config key. Flags sharing a
// key are aliases.
var flagKeys = []struct{ flag, key string }{
	{"log-level", "log_level"},
	{"runtime-workers", "runtime.workers"},
	{"runtime-ort-library-path", "runtime.ort_library_path"},
	{"ort-lib", "runtime.ort_library_path"},
	{"runtime-ort-version", "runtime.ort_version"},
	{"runtime-ort-api-version", "runtime.ort_api_version"},
	{"engine-default-opset", "engine.default_opset"},
	{"engine-seed", "engine.seed"},
	{"engine-max-elements", "engine.max_elements"},
	{"tolerance-abs", "tolerance.abs"},
	{"tolerance-rel", "tolerance.rel"},
	{"conformance-test-data-dir", "conformance.test_data_dir"},
	{"conformance-workers", "conformance.workers"},
	{"server-listen-addr", "server.listen_addr"},
	{"server-workers", "server.workers"},
	{"server-max-body-bytes", "server.max_body_bytes"},
	{"server-request-timeout", "server.request_timeout"},
	{"server-shutdown-timeout", "server.shutdown_timeout"},
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
	fs.Int("runtime-workers", defaults.Runtime.Workers, "Kernel worker goroutines (0 = GOMAXPROCS)")
	fs.String("runtime-ort-library-path", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library")
	fs.String("ort-lib", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library (alias for --runtime-ort-library-path)")
	fs.String("runtime-ort-version", defaults.Runtime.ORTVersion, "Expected ONNX Runtime version")
	fs.Uint32("runtime-ort-api-version", defaults.Runtime.ORTAPIVersion, "ONNX Runtime C API version")
	fs.Int("engine-default-opset", defaults.Engine.DefaultOpset, "Opset used when a request names no version (0 = latest)")
	fs.Int64("engine-seed", defaults.Engine.Seed, "Seed for random operators (negative = unseeded)")
	fs.Int64("engine-max-elements", defaults.Engine.MaxElements, "Largest tensor element count an evaluation may build")
	fs.Float64("tolerance-abs", defaults.Tolerance.Abs, "Absolute tolerance for float comparisons")
	fs.Float64("tolerance-rel", defaults.Tolerance.Rel, "Relative tolerance for float comparisons")
	fs.String("conformance-test-data-dir", defaults.Conformance.TestDataDir, "Directory of ONNX node test cases")
	fs.Int("conformance-workers", defaults.Conformance.Workers, "Concurrent conformance cases")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("server-workers", defaults.Server.Workers, "Max concurrent evaluate requests")
	fs.Int64("server-max-body-bytes", defaults.Server.MaxBodyBytes, "Max request body size in bytes")
	fs.Int("server-request-timeout", defaults.Server.RequestTimeout, "Per-request timeout in seconds")
	fs.Int("server-shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown timeout in seconds")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)

	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("ONNXREF")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)

	if err := v.BindEnv("runtime.ort_library_path", "ONNXREF_ORT_LIB", "ORT_LIBRARY_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind ort env vars: %w", err)
	}

	if err := v.BindEnv("conformance.test_data_dir", "ONNXREF_TESTDATA"); err != nil {
		return Config{}, fmt.Errorf("bind test data env var: %w", err)
	}

	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)

		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("onnxref")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("runtime.workers", c.Runtime.Workers)
	v.SetDefault("runtime.ort_library_path", c.Runtime.ORTLibraryPath)
	v.SetDefault("runtime.ort_version", c.Runtime.ORTVersion)
	v.SetDefault("runtime.ort_api_version", c.Runtime.ORTAPIVersion)
	v.SetDefault("engine.default_opset", c.Engine.DefaultOpset)
	v.SetDefault("engine.seed", c.Engine.Seed)
	v.SetDefault("engine.max_elements", c.Engine.MaxElements)
	v.SetDefault("tolerance.abs", c.Tolerance.Abs)
	v.SetDefault("tolerance.rel", c.Tolerance.Rel)
	v.SetDefault("conformance.test_data_dir", c.Conformance.TestDataDir)
	v.SetDefault("conformance.workers", c.Conformance.Workers)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("server.max_body_bytes", c.Server.MaxBodyBytes)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
}

// bindFlags binds each registered flag to its nested key. A changed alias
// flag wins over an unchanged primary so "--ort-lib" behaves like the long
// form. Flags missing from fs are skipped.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	bound := map[string]bool{}

	for _, fk := range flagKeys {
		f := fs.Lookup(fk.flag)
		if f == nil {
			continue
		}

		if bound[fk.key] && !f.Changed {
			continue
		}

		if err := v.BindPFlag(fk.key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", fk.flag, err)
		}

		bound[fk.key] = true
	}

	return nil
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/inputrate/internal/errors"
	"codeberg.org/mutker/inputrate/internal/event"
	"codeberg.org/mutker/inputrate/internal/history"
	"codeberg.org/mutker/inputrate/internal/logger"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix       = "INPUTRATE"
	ConfigName      = "inputrate"
	ListenerName    = "inputrate-listener"
	DefaultLogLevel = "info"

	defaultTick        = 100 * time.Millisecond
	defaultWindow      = time.Second
	defaultCapacity    = 65536
	defaultDevice      = "mouse"
	defaultReportEvery = 10
)

// Run modes of the monitor.
const (
	ModeSpawn     = "spawn"
	ModeInProcess = "inprocess"
)

type HistoryConfig struct {
	Mode     string `mapstructure:"mode"`
	Backend  string `mapstructure:"backend"`
	Capacity int    `mapstructure:"capacity"`
}

type Config struct {
	LogLevel    string        `mapstructure:"log_level"`
	Tick        time.Duration `mapstructure:"tick"`
	Window      time.Duration `mapstructure:"window"`
	Capacity    int           `mapstructure:"capacity"`
	Device      string        `mapstructure:"device"`
	Mode        string        `mapstructure:"mode"`
	Listener    string        `mapstructure:"listener"`
	ReportEvery int           `mapstructure:"report_every"`
	History     HistoryConfig `mapstructure:"history"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("tick", defaultTick)
	v.SetDefault("window", defaultWindow)
	v.SetDefault("capacity", defaultCapacity)
	v.SetDefault("device", defaultDevice)
	v.SetDefault("mode", ModeSpawn)
	v.SetDefault("listener", "")
	v.SetDefault("report_every", defaultReportEvery)
	v.SetDefault("history.mode", string(history.ModeRate))
	v.SetDefault("history.backend", string(history.BackendMemory))
	v.SetDefault("history.capacity", history.DefaultConfig().Capacity)
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"log-level":        "log_level",
	"tick":             "tick",
	"window":           "window",
	"capacity":         "capacity",
	"device":           "device",
	"mode":             "mode",
	"listener":         "listener",
	"report-every":     "report_every",
	"history":          "history.mode",
	"history-backend":  "history.backend",
	"history-capacity": "history.capacity",
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "Path to configuration file")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.Duration("tick", defaultTick, "Interval between rate updates")
	fs.Duration("window", defaultWindow, "Span of the sliding rate window")
	fs.Int("capacity", defaultCapacity, "Capacity of the event queues")
	fs.String("device", defaultDevice, "Device class to capture (mouse, keyboard)")
	fs.String("mode", ModeSpawn, "Run capture in a listener process (spawn) or in this process (inprocess)")
	fs.String("listener", "", "Path to the listener executable")
	fs.Int("report-every", defaultReportEvery, "Number of ticks between rate reports")
	fs.String("history", string(history.ModeRate), "History mode (rate, interval, off)")
	fs.String("history-backend", string(history.BackendMemory), "History backend (memory, sqlite)")
	fs.Int("history-capacity", history.DefaultConfig().Capacity, "History entries reserved up front")
	return fs
}

// Load reads the configuration of the monitor from the process arguments,
// the environment and the config file.
func Load() (*Config, error) {
	return LoadArgs(os.Args[1:])
}

// LoadArgs is Load with explicit arguments. Flags override environment
// variables, which override the config file.
func LoadArgs(args []string) (*Config, error) {
	errFactory := errors.New()

	fs := newFlagSet(ConfigName)
	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(ErrBindFlags, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(ErrBindFlags, err)
		}
	}

	if err := readConfigFile(v, fs); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfigFile(v *viper.Viper, fs *pflag.FlagSet) error {
	errFactory := errors.New()

	path, _ := fs.GetString("config")
	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("toml")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, ConfigName))
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return errFactory.Wrap(ErrReadConfig, err)
	}

	return nil
}

// Validate checks every field and returns the first problem found.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Tick <= 0 {
		return errFactory.WithData(ErrInvalidInterval, fmt.Sprintf("tick %v", c.Tick))
	}
	if c.Window <= 0 {
		return errFactory.WithData(ErrInvalidInterval, fmt.Sprintf("window %v", c.Window))
	}
	if c.Capacity <= 0 {
		return errFactory.WithData(ErrInvalidCapacity, c.Capacity)
	}
	if _, err := event.ParseDeviceClass(c.Device); err != nil {
		return err
	}
	if c.Mode != ModeSpawn && c.Mode != ModeInProcess {
		return errFactory.WithData(ErrInvalidMode, c.Mode)
	}
	if c.ReportEvery <= 0 {
		return errFactory.WithData(ErrInvalidInterval, fmt.Sprintf("report_every %d", c.ReportEvery))
	}

	if err := c.HistoryConfig().Validate(); err != nil {
		return err
	}

	return nil
}

// LogLevelValue returns the parsed log level.
func (c *Config) LogLevelValue() logger.LogLevel {
	level, _ := logger.ParseLevel(c.LogLevel)
	return level
}

// DeviceClass returns the parsed device class.
func (c *Config) DeviceClass() event.DeviceClass {
	class, _ := event.ParseDeviceClass(c.Device)
	return class
}

// HistoryConfig converts the history section for the history package.
func (c *Config) HistoryConfig() history.Config {
	hc := history.DefaultConfig()
	hc.Mode = history.Mode(strings.ToLower(c.History.Mode))
	hc.Backend = history.Backend(strings.ToLower(c.History.Backend))
	hc.Capacity = c.History.Capacity
	return hc
}

// ListenerPath returns the configured listener executable, or the one
// installed next to the running executable.
func (c *Config) ListenerPath() (string, error) {
	if c.Listener != "" {
		return c.Listener, nil
	}

	self, err := os.Executable()
	if err != nil {
		return "", errors.New().Wrap(ErrNoListener, err)
	}

	name := ListenerName
	if runtime.GOOS == "windows" {
		name += ".exe"
	}

	return filepath.Join(filepath.Dir(self), name), nil
}

// Environ returns the variables that carry the settings a listener needs,
// since its command line is reserved for the spawn handshake.
func (c *Config) Environ() []string {
	return []string{
		EnvPrefix + "_LOG_LEVEL=" + c.LogLevel,
		EnvPrefix + "_DEVICE=" + c.Device,
		EnvPrefix + "_CAPACITY=" + strconv.Itoa(c.Capacity),
	}
}

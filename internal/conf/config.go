// Package conf provides configuration management for pagd.
package conf

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/pagd-project/pagd-go/internal/errors"
	"github.com/pagd-project/pagd-go/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// Classifier kinds
const (
	KindTwoStage   = "two-stage"
	KindMultiLabel = "multi-label"
)

// Datastore drivers
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// SelectedClassifierKey is the settings-store key holding the active classifier name.
const SelectedClassifierKey = "SELECTED_CLASSIFIER"

// Settings contains all configuration options for pagd.
type Settings struct {
	Debug bool // true to enable debug mode

	Main struct {
		Name string               // name of this detector node, included in reports
		Log  logger.LoggingConfig // logging configuration
	}

	Audio       AudioSettings
	Classifiers []ClassifierSettings // configured classifiers, in selector order
	Selector    SelectorSettings
	Location    LocationSettings
	MQTT        MQTTSettings
	Datastore   DatastoreSettings
	WebServer   WebServerSettings
	Telemetry   TelemetrySettings
}

// AudioSettings configures the live capture device.
type AudioSettings struct {
	Source        string // capture device name or ID, "default" for the system default
	Backend       string // malgo backend: "" for auto, alsa, pulseaudio, coreaudio, wasapi
	BufferSeconds int    // seconds of audio buffered between the device callback and the loop
}

// ClassifierSettings describes one classification loop and its scorer.
type ClassifierSettings struct {
	Name          string        // unique display name, e.g. "PAGD Legacy model"
	Kind          string        // two-stage or multi-label
	ModelPath     string        // scoring model (.tflite)
	SignaturePath string        // two-stage only: waveform to spectrogram model
	LabelPath     string        // multi-label only: label file
	Labels        []string      // two-stage only: fixed synthetic category set
	WindowSize    int           // sliding window length in samples
	SampleRate    int           // capture sample rate in Hz
	LowCutHz      float64       // band-pass low cut, 0 disables the pre-filter
	HighCutHz     float64       // band-pass high cut
	FilterPasses  int           // cascaded filter passes
	Threshold     float32       // initial probability threshold
	CyclePeriod   time.Duration // initial sleep between cycles
	Threads       int           // interpreter threads, 0 for auto
	UseXNNPACK    bool          // use the XNNPACK delegate when available
}

// SelectorSettings configures the multi-classifier selector.
type SelectorSettings struct {
	StorePath         string // YAML file persisting the active classifier
	DefaultClassifier string // used when nothing valid is stored
}

// LocationSettings is the fixed position attached to reports.
type LocationSettings struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
}

// MQTTSettings configures report publishing.
type MQTTSettings struct {
	Enabled       bool
	Broker        string // e.g. tcp://localhost:1883
	Topic         string // topic reports are published to
	ClientID      string // empty generates one
	Username      string
	Password      string // may reference ${ENV_VARS}
	PasswordFile  string // read the password from this file instead
	Retain        bool
	Cooldown      time.Duration // minimum gap between reports of the same category
	DefaultWeapon string        // gun label for results without a specific type
}

// DatastoreSettings configures the local detection history.
type DatastoreSettings struct {
	Enabled bool
	Driver  string // sqlite or mysql
	Path    string // sqlite database file
	DSN     string // mysql DSN, may reference ${ENV_VARS}
}

// WebServerSettings configures the HTTP control API.
type WebServerSettings struct {
	Enabled bool
	Listen  string // e.g. ":8080"
}

// TelemetrySettings configures error reporting.
type TelemetrySettings struct {
	Enabled bool
	DSN     string // may reference ${ENV_VARS}
}

// Classifier returns the settings of the named classifier.
func (s *Settings) Classifier(name string) (ClassifierSettings, bool) {
	for i := range s.Classifiers {
		if s.Classifiers[i].Name == name {
			return s.Classifiers[i], true
		}
	}
	return ClassifierSettings{}, false
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
	configFileFlag   string
)

// SetConfigFile forces Load to read a specific file instead of searching.
func SetConfigFile(path string) {
	configFileFlag = path
}

// Load reads the configuration file and environment variables into Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, err
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryValidation).
			Build()
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	setDefaultConfig()

	viper.SetEnvPrefix("PAGD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if configFileFlag != "" {
		viper.SetConfigFile(configFileFlag)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		for _, path := range DefaultConfigPaths() {
			viper.AddConfigPath(path)
		}
	}

	err := viper.ReadInConfig()
	if err == nil {
		GetLogger().Info("configuration loaded", logger.String("path", viper.ConfigFileUsed()))
		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return createDefaultConfig()
	}

	return errors.New(fmt.Errorf("fatal error reading config file: %w", err)).
		Category(errors.CategoryConfiguration).
		Build()
}

// createDefaultConfig writes the embedded default config to the first config path and reads it.
func createDefaultConfig() error {
	configPath := filepath.Join(userConfigDir(), "config.yaml")

	data, err := configFiles.ReadFile("config.yaml")
	if err != nil {
		return errors.New(err).Category(errors.CategoryConfiguration).Build()
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return errors.New(fmt.Errorf("error creating directories for config file: %w", err)).
			Category(errors.CategoryFileIO).
			Build()
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return errors.New(fmt.Errorf("error writing default config file: %w", err)).
			Category(errors.CategoryFileIO).
			Build()
	}

	GetLogger().Info("created default config file", logger.String("path", configPath))

	viper.SetConfigFile(configPath)
	return viper.ReadInConfig()
}

// userConfigDir is where a missing config is created.
func userConfigDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "pagd")
	}
	return "."
}

// DefaultConfigPaths returns the directories searched for config.yaml, most specific first.
func DefaultConfigPaths() []string {
	return []string{".", userConfigDir(), "/etc/pagd"}
}

// GetSettings returns the most recently loaded settings, or nil.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

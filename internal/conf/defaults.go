// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Defaults shared with the classification loop when a classifier leaves them unset.
const (
	DefaultThreshold   float32 = 0.5
	DefaultCyclePeriod         = 500 * time.Millisecond
	DefaultSampleRate          = 8000
	DefaultWindowSize          = 2048
)

// setDefaultConfig registers viper defaults for every scalar setting.
// The classifier list has no scalar default; it comes from config.yaml.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "pagd")
	viper.SetDefault("main.log.default_level", "info")
	viper.SetDefault("main.log.timezone", "Local")
	viper.SetDefault("main.log.console.enabled", true)
	viper.SetDefault("main.log.console.level", "info")
	viper.SetDefault("main.log.file_output.enabled", false)
	viper.SetDefault("main.log.file_output.path", "logs/pagd.log")
	viper.SetDefault("main.log.file_output.level", "info")

	viper.SetDefault("audio.source", "default")
	viper.SetDefault("audio.backend", "")
	viper.SetDefault("audio.bufferseconds", 2)

	viper.SetDefault("selector.storepath", "pagd-state.yaml")
	viper.SetDefault("selector.defaultclassifier", "PAGD Legacy model")

	viper.SetDefault("location.latitude", 0.0)
	viper.SetDefault("location.longitude", 0.0)
	viper.SetDefault("location.altitude", 0.0)

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "pagd/reports")
	viper.SetDefault("mqtt.clientid", "")
	viper.SetDefault("mqtt.passwordfile", "")
	viper.SetDefault("mqtt.retain", false)
	viper.SetDefault("mqtt.cooldown", 10*time.Second)
	viper.SetDefault("mqtt.defaultweapon", "Unknown")

	viper.SetDefault("datastore.enabled", true)
	viper.SetDefault("datastore.driver", DriverSQLite)
	viper.SetDefault("datastore.path", "pagd.db")
	viper.SetDefault("datastore.dsn", "")

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.listen", ":8080")

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.dsn", "")
}

// ApplyClassifierDefaults fills zero-valued fields of a classifier with defaults.
func ApplyClassifierDefaults(c *ClassifierSettings) {
	if c.Kind == "" {
		c.Kind = KindTwoStage
	}
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.WindowSize == 0 {
		c.WindowSize = DefaultWindowSize
	}
	if c.FilterPasses == 0 {
		c.FilterPasses = 1
	}
	if c.Threshold == 0 {
		c.Threshold = DefaultThreshold
	}
	if c.CyclePeriod == 0 {
		c.CyclePeriod = DefaultCyclePeriod
	}
}

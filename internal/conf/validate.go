// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings validates the entire Settings struct. Classifier defaults
// are applied in place before their fields are checked.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validateClassifiers(settings.Classifiers)...)

	if settings.Selector.StorePath == "" {
		ve.Errors = append(ve.Errors, "selector store path must not be empty")
	}

	if settings.Audio.BufferSeconds < 1 {
		ve.Errors = append(ve.Errors, "audio buffer must hold at least one second")
	}

	if settings.MQTT.Enabled {
		if err := validateMQTTSettings(&settings.MQTT); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if settings.Datastore.Enabled {
		switch settings.Datastore.Driver {
		case DriverSQLite, "":
			if settings.Datastore.Path == "" {
				ve.Errors = append(ve.Errors, "datastore path must not be empty when enabled")
			}
		case DriverMySQL:
			if settings.Datastore.DSN == "" {
				ve.Errors = append(ve.Errors, "datastore DSN must not be empty for the mysql driver")
			}
		default:
			ve.Errors = append(ve.Errors, fmt.Sprintf("unknown datastore driver %q", settings.Datastore.Driver))
		}
	}

	if settings.WebServer.Enabled && settings.WebServer.Listen == "" {
		ve.Errors = append(ve.Errors, "webserver listen address must not be empty when enabled")
	}

	if settings.Telemetry.Enabled && settings.Telemetry.DSN == "" {
		ve.Errors = append(ve.Errors, "telemetry DSN must be set when telemetry is enabled")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateClassifiers(classifiers []ClassifierSettings) []string {
	if len(classifiers) == 0 {
		return []string{"at least one classifier must be configured"}
	}

	var errs []string
	seen := make(map[string]bool, len(classifiers))

	for i := range classifiers {
		c := &classifiers[i]
		ApplyClassifierDefaults(c)

		if c.Name == "" {
			errs = append(errs, fmt.Sprintf("classifier %d: name must not be empty", i))
			continue
		}
		if seen[c.Name] {
			errs = append(errs, fmt.Sprintf("classifier %q: duplicate name", c.Name))
		}
		seen[c.Name] = true

		if err := ValidateClassifier(c); err != nil {
			errs = append(errs, err.Error())
		}
	}

	return errs
}

// ValidateClassifier checks one classifier's settings.
func ValidateClassifier(c *ClassifierSettings) error {
	var errs []string

	switch c.Kind {
	case KindTwoStage:
		if c.SignaturePath == "" {
			errs = append(errs, "signature path is required for two-stage classifiers")
		}
		if len(c.Labels) == 0 {
			errs = append(errs, "labels are required for two-stage classifiers")
		}
	case KindMultiLabel:
		if c.LabelPath == "" {
			errs = append(errs, "label path is required for multi-label classifiers")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown kind %q", c.Kind))
	}

	if c.ModelPath == "" {
		errs = append(errs, "model path must not be empty")
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		errs = append(errs, fmt.Sprintf("threshold %v must be between 0 and 1", c.Threshold))
	}
	if c.CyclePeriod < 0 {
		errs = append(errs, "cycle period must not be negative")
	}
	if c.WindowSize <= 0 {
		errs = append(errs, "window size must be positive")
	}
	if c.SampleRate <= 0 {
		errs = append(errs, "sample rate must be positive")
	}

	filterEnabled := c.LowCutHz != 0 || c.HighCutHz != 0
	if filterEnabled {
		nyquist := float64(c.SampleRate) / 2
		if c.LowCutHz <= 0 || c.HighCutHz <= c.LowCutHz || c.HighCutHz >= nyquist {
			errs = append(errs, fmt.Sprintf("band-pass %v-%v Hz must satisfy 0 < low < high < %v", c.LowCutHz, c.HighCutHz, nyquist))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("classifier %q: %s", c.Name, strings.Join(errs, ", "))
	}
	return nil
}

func validateMQTTSettings(settings *MQTTSettings) error {
	if settings.Broker == "" {
		return fmt.Errorf("mqtt broker must be set when mqtt is enabled")
	}
	u, err := url.Parse(settings.Broker)
	if err != nil || u.Host == "" {
		return fmt.Errorf("mqtt broker %q is not a valid URL", settings.Broker)
	}
	switch u.Scheme {
	case "tcp", "ssl", "tls", "ws", "wss", "mqtt", "mqtts":
	default:
		return fmt.Errorf("mqtt broker scheme %q is not supported", u.Scheme)
	}
	if settings.Topic == "" {
		return fmt.Errorf("mqtt topic must be set when mqtt is enabled")
	}
	if settings.Cooldown < 0 {
		return fmt.Errorf("mqtt cooldown must not be negative")
	}
	return nil
}

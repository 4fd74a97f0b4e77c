package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validClassifier(name string) ClassifierSettings {
	return ClassifierSettings{
		Name:          name,
		Kind:          KindTwoStage,
		ModelPath:     "models/model.tflite",
		SignaturePath: "models/signature.tflite",
		Labels:        []string{"Gun1"},
		WindowSize:    2048,
		SampleRate:    8000,
		LowCutHz:      1000,
		HighCutHz:     3999,
		Threshold:     0.5,
		CyclePeriod:   500 * time.Millisecond,
	}
}

func validSettings() *Settings {
	s := &Settings{}
	s.Audio.BufferSeconds = 2
	s.Selector.StorePath = "state.yaml"
	s.Classifiers = []ClassifierSettings{validClassifier("A")}
	return s
}

func TestValidateSettingsAcceptsValidConfig(t *testing.T) {
	require.NoError(t, ValidateSettings(validSettings()))
}

func TestValidateClassifier(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *ClassifierSettings)
		wantErr string
	}{
		{"threshold above one", func(c *ClassifierSettings) { c.Threshold = 1.2 }, "threshold"},
		{"negative threshold", func(c *ClassifierSettings) { c.Threshold = -0.1 }, "threshold"},
		{"negative period", func(c *ClassifierSettings) { c.CyclePeriod = -time.Second }, "cycle period"},
		{"high cut above nyquist", func(c *ClassifierSettings) { c.HighCutHz = 4000 }, "band-pass"},
		{"low above high", func(c *ClassifierSettings) { c.LowCutHz = 3000; c.HighCutHz = 2000 }, "band-pass"},
		{"missing signature", func(c *ClassifierSettings) { c.SignaturePath = "" }, "signature path"},
		{"missing labels", func(c *ClassifierSettings) { c.Labels = nil }, "labels"},
		{"unknown kind", func(c *ClassifierSettings) { c.Kind = "ensemble" }, "unknown kind"},
		{"multi-label without label file", func(c *ClassifierSettings) { c.Kind = KindMultiLabel }, "label path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validClassifier("A")
			tt.mutate(&c)
			err := ValidateClassifier(&c)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateClassifierFilterDisabled(t *testing.T) {
	c := validClassifier("A")
	c.LowCutHz, c.HighCutHz = 0, 0
	assert.NoError(t, ValidateClassifier(&c))
}

func TestValidateSettingsCollectsErrors(t *testing.T) {
	s := validSettings()
	s.Classifiers = append(s.Classifiers, validClassifier("A"))
	s.MQTT.Enabled = true
	s.MQTT.Broker = "http://broker"
	s.MQTT.Topic = "pagd"

	err := ValidateSettings(s)
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 2)
	assert.Contains(t, err.Error(), "duplicate name")
	assert.Contains(t, err.Error(), "scheme")
}

func TestValidateSettingsRequiresClassifier(t *testing.T) {
	s := validSettings()
	s.Classifiers = nil
	assert.ErrorContains(t, ValidateSettings(s), "at least one classifier")
}

func TestApplyClassifierDefaults(t *testing.T) {
	c := ClassifierSettings{Name: "x"}
	ApplyClassifierDefaults(&c)

	assert.Equal(t, KindTwoStage, c.Kind)
	assert.Equal(t, DefaultSampleRate, c.SampleRate)
	assert.Equal(t, DefaultWindowSize, c.WindowSize)
	assert.Equal(t, DefaultThreshold, c.Threshold)
	assert.Equal(t, DefaultCyclePeriod, c.CyclePeriod)
	assert.Equal(t, 1, c.FilterPasses)
}

func TestValidateDatastoreDrivers(t *testing.T) {
	tests := []struct {
		name    string
		store   DatastoreSettings
		wantErr string
	}{
		{"sqlite", DatastoreSettings{Enabled: true, Driver: DriverSQLite, Path: "pagd.db"}, ""},
		{"sqlite without path", DatastoreSettings{Enabled: true, Driver: DriverSQLite}, "datastore path"},
		{"mysql", DatastoreSettings{Enabled: true, Driver: DriverMySQL, DSN: "u:p@tcp(db:3306)/pagd?parseTime=true"}, ""},
		{"mysql without dsn", DatastoreSettings{Enabled: true, Driver: DriverMySQL}, "DSN"},
		{"unknown driver", DatastoreSettings{Enabled: true, Driver: "postgres"}, "unknown datastore driver"},
		{"disabled", DatastoreSettings{Driver: "postgres"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			s.Datastore = tt.store
			err := ValidateSettings(s)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

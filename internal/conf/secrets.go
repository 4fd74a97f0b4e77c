package conf

import "github.com/pagd-project/pagd-go/internal/secrets"

// resolveSecrets replaces credential settings with their resolved values.
// Secrets of disabled features are left untouched.
func resolveSecrets(settings *Settings) error {
	if settings.MQTT.Enabled {
		user, err := secrets.ExpandString(settings.MQTT.Username)
		if err != nil {
			return err
		}
		password, err := secrets.Resolve(settings.MQTT.PasswordFile, settings.MQTT.Password)
		if err != nil {
			return err
		}
		settings.MQTT.Username = user
		settings.MQTT.Password = password
	}

	if settings.Datastore.Enabled && settings.Datastore.Driver == DriverMySQL {
		dsn, err := secrets.ExpandString(settings.Datastore.DSN)
		if err != nil {
			return err
		}
		settings.Datastore.DSN = dsn
	}

	if settings.Telemetry.Enabled {
		dsn, err := secrets.ExpandString(settings.Telemetry.DSN)
		if err != nil {
			return err
		}
		settings.Telemetry.DSN = dsn
	}
	return nil
}

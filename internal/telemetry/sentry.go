// Package telemetry provides opt-in, privacy-filtered error reporting to
// Sentry. Errors built with internal/errors are forwarded once InitSentry
// has installed the reporter.
package telemetry

import (
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/shirou/gopsutil/v3/host"

	"github.com/pagd-project/pagd-go/internal/conf"
	"github.com/pagd-project/pagd-go/internal/errors"
	"github.com/pagd-project/pagd-go/internal/logger"
	"github.com/pagd-project/pagd-go/internal/privacy"
)

// PlatformInfo holds privacy-safe platform information attached as tags.
// Hostnames and host IDs are never collected.
type PlatformInfo struct {
	OS              string
	Architecture    string
	NumCPU          int
	GoVersion       string
	Platform        string // e.g. debian, raspbian
	PlatformVersion string
	Virtualization  string // container or hypervisor, "" on bare metal
}

func collectPlatformInfo() PlatformInfo {
	info := PlatformInfo{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		NumCPU:       runtime.NumCPU(),
		GoVersion:    runtime.Version(),
	}
	if h, err := host.Info(); err == nil {
		info.Platform = h.Platform
		info.PlatformVersion = h.PlatformVersion
		info.Virtualization = h.VirtualizationSystem
	}
	return info
}

// InitSentry initialises the Sentry SDK and installs the error reporter.
// Nothing is sent unless telemetry is explicitly enabled.
func InitSentry(settings conf.TelemetrySettings, release string) error {
	return initSentry(settings, release, nil)
}

func initSentry(settings conf.TelemetrySettings, release string, transport sentry.Transport) error {
	if !settings.Enabled {
		GetLogger().Info("telemetry disabled")
		errors.SetTelemetryReporter(nil)
		return nil
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.DSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "",
		Release:          fmt.Sprintf("pagd@%s", release),
		Transport:        transport,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	}); err != nil {
		return errors.New(fmt.Errorf("sentry initialization failed: %w", err)).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	info := collectPlatformInfo()
	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("os", info.OS)
		scope.SetTag("arch", info.Architecture)
		scope.SetTag("num_cpu", strconv.Itoa(info.NumCPU))
		scope.SetTag("go_version", info.GoVersion)
		if info.Platform != "" {
			scope.SetTag("platform", info.Platform+" "+info.PlatformVersion)
		}
		if info.Virtualization != "" {
			scope.SetTag("virtualization", info.Virtualization)
		}
	})

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	GetLogger().Info("telemetry enabled", logger.String("release", release))
	return nil
}

// Flush waits up to timeout for queued events to be sent.
func Flush(timeout time.Duration) bool {
	if errors.GetTelemetryReporter() == nil {
		return true
	}
	return sentry.Flush(timeout)
}

// applyPrivacyFilters strips identifying data from an event.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""
	event.Message = privacy.ScrubMessage(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = privacy.ScrubMessage(event.Exception[i].Value)
	}

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}
	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	return event
}

// GetLogger returns the telemetry package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}

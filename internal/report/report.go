// Package report turns classification results into located reports and
// delivers them to sinks such as an MQTT broker or the local history.
package report

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pagd-project/pagd-go/internal/classifier"
	"github.com/pagd-project/pagd-go/internal/conf"
	"github.com/pagd-project/pagd-go/internal/logger"
)

// Report is one located detection as submitted to the backend.
type Report struct {
	ID           uuid.UUID `json:"id"`
	Node         string    `json:"node,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	Altitude     float64   `json:"altitude"`
	Gun          string    `json:"gun"`
	Category     string    `json:"category"`
	SpecificType string    `json:"specificType"`
	Score        float32   `json:"score"`
	Classifier   string    `json:"classifier"`
}

// Sink receives reports. Publish must honour ctx.
type Sink interface {
	Name() string
	Publish(ctx context.Context, r Report) error
}

// Builder stamps results with the node identity and location.
type Builder struct {
	Node          string
	Location      conf.LocationSettings
	DefaultWeapon string // gun label when the result has no specific type
}

// Build creates a report for r with a fresh ID.
func (b Builder) Build(r classifier.Result) Report {
	gun := r.SpecificType
	if gun == "" || r.Unlabelled() {
		gun = b.DefaultWeapon
	}
	return Report{
		ID:           uuid.New(),
		Node:         b.Node,
		Timestamp:    r.Timestamp,
		Latitude:     b.Location.Latitude,
		Longitude:    b.Location.Longitude,
		Altitude:     b.Location.Altitude,
		Gun:          gun,
		Category:     r.Category,
		SpecificType: r.SpecificType,
		Score:        r.Score,
		Classifier:   r.Classifier,
	}
}

// GetLogger returns the report package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("report")
}

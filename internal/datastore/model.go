// Package datastore keeps a local sqlite history of delivered reports.
package datastore

import (
	"time"

	"github.com/pagd-project/pagd-go/internal/report"
)

// Detection is one stored report.
type Detection struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ReportID     string    `gorm:"uniqueIndex;size:36" json:"reportId"`
	Node         string    `gorm:"size:64" json:"node,omitempty"`
	Timestamp    time.Time `gorm:"index" json:"timestamp"`
	Classifier   string    `gorm:"index;size:128" json:"classifier"`
	Category     string    `gorm:"index;size:128" json:"category"`
	SpecificType string    `gorm:"size:128" json:"specificType"`
	Gun          string    `gorm:"size:128" json:"gun"`
	Score        float32   `json:"score"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	Altitude     float64   `json:"altitude"`
	CreatedAt    time.Time `json:"createdAt"`
}

// FromReport maps a report onto a Detection row.
func FromReport(r report.Report) Detection {
	return Detection{
		ReportID:     r.ID.String(),
		Node:         r.Node,
		Timestamp:    r.Timestamp,
		Classifier:   r.Classifier,
		Category:     r.Category,
		SpecificType: r.SpecificType,
		Gun:          r.Gun,
		Score:        r.Score,
		Latitude:     r.Latitude,
		Longitude:    r.Longitude,
		Altitude:     r.Altitude,
	}
}

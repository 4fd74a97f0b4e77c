package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pagd-project/pagd-go/internal/datastore"
)

var csvHeader = []string{
	"report_id", "node", "timestamp", "classifier", "category", "specific_type",
	"gun", "score", "latitude", "longitude", "altitude",
}

// Write encodes detections in the requested format.
func Write(w io.Writer, format string, detections []datastore.Detection) error {
	switch format {
	case FormatCSV:
		return writeCSV(w, detections)
	case FormatJSONL:
		return writeJSONL(w, detections)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

func writeCSV(w io.Writer, detections []datastore.Detection) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for i := range detections {
		d := &detections[i]
		if err := cw.Write([]string{
			d.ReportID,
			d.Node,
			d.Timestamp.UTC().Format(time.RFC3339Nano),
			d.Classifier,
			d.Category,
			d.SpecificType,
			d.Gun,
			strconv.FormatFloat(float64(d.Score), 'f', 4, 32),
			strconv.FormatFloat(d.Latitude, 'f', -1, 64),
			strconv.FormatFloat(d.Longitude, 'f', -1, 64),
			strconv.FormatFloat(d.Altitude, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeJSONL(w io.Writer, detections []datastore.Detection) error {
	enc := json.NewEncoder(w)
	for i := range detections {
		if err := enc.Encode(&detections[i]); err != nil {
			return err
		}
	}
	return nil
}

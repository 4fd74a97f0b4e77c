package main

import (
	"fmt"
	"time"
)

// Output formats
const (
	FormatCSV   = "csv"
	FormatJSONL = "jsonl"
)

// Config holds the export options.
type Config struct {
	DBPath  string
	Format  string
	OutPath string
	From    string
	To      string
	Limit   int

	from, to time.Time
}

// Validate checks the options and parses the time range.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("--db is required")
	}
	if c.Format != FormatCSV && c.Format != FormatJSONL {
		return fmt.Errorf("unsupported format %q, use csv or jsonl", c.Format)
	}
	if c.To != "" && c.From == "" {
		return fmt.Errorf("--to needs --from")
	}
	if c.From != "" {
		from, err := time.Parse(time.RFC3339, c.From)
		if err != nil {
			return fmt.Errorf("invalid --from: %w", err)
		}
		c.from = from
	}
	if c.To != "" {
		to, err := time.Parse(time.RFC3339, c.To)
		if err != nil {
			return fmt.Errorf("invalid --to: %w", err)
		}
		c.to = to
	}
	if c.From == "" && c.Limit <= 0 {
		return fmt.Errorf("--limit must be positive")
	}
	return nil
}

// Range returns the parsed range; an open end is now.
func (c *Config) Range(now time.Time) (from, to time.Time) {
	if c.to.IsZero() {
		return c.from, now
	}
	return c.from, c.to
}

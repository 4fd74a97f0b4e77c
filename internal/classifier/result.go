package classifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/pagd-project/pagd-go/internal/scorer"
)

// Result is one detection above threshold. It is never mutated after it
// has been emitted.
type Result struct {
	Classifier   string    `json:"classifier"`
	Timestamp    time.Time `json:"timestamp"`
	Category     string    `json:"category"`
	SpecificType string    `json:"specificType"`
	Label        string    `json:"label"` // scorer label the names were derived from
	Score        float32   `json:"score"`
}

// Unlabelled reports whether the scorer could not name what it heard.
func (r Result) Unlabelled() bool {
	return r.Category == scorer.Unlabelled
}

// Listener receives every emitted result synchronously on the cycle
// goroutine. It must not block.
type Listener func(Result)

// formatSummary renders above-threshold scores as "label -> score" lines,
// highest first.
func formatSummary(entries []scorer.Score) string {
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s -> %.3f", e.Label, e.Score)
	}
	return b.String()
}

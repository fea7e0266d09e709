// ABOUTME: Diagnostics record fragments skipped during an ingestion run
// ABOUTME: Collected per file and reported after the run instead of aborting it
package models

import "fmt"

// Diagnostic describes one fragment that was skipped and why
type Diagnostic struct {
	Source string       `json:"source"`
	Page   int          `json:"page"`
	Kind   FragmentKind `json:"kind"`
	ID     string       `json:"id,omitempty"`
	Reason string       `json:"reason"`
}

func (d Diagnostic) String() string {
	if d.ID != "" {
		return fmt.Sprintf("%s page %d %s %s: %s", d.Source, d.Page, d.Kind, d.ID, d.Reason)
	}
	return fmt.Sprintf("%s page %d %s: %s", d.Source, d.Page, d.Kind, d.Reason)
}

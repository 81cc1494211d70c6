// Package core holds the data model shared across every engramic service:
// prompts, analyses, retrieval results, responses, engrams, indices, meta,
// and observations. Nothing in this package talks to a plugin, a bus, or a
// scheduler — it is pure data plus the small amount of rendering logic that
// travels with it.
package core

import "github.com/google/uuid"

// NewID returns a fresh opaque identifier. All persistent identifiers in
// engramic are opaque strings generated at creation and never reused.
func NewID() string {
	return uuid.NewString()
}

package audit

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/virtualsteve-star/stinger-sub004/internal/domain/pii"
)

// redactionFloor matches the pattern PII detector's default threshold:
// any pattern the detector would block on never reaches a sink in clear
// text.
const redactionFloor = 0.8

// Redactor scrubs PII from event content using the same pattern catalog
// as the pattern PII detector. Each match is replaced by a fixed token
// carrying a one-way hash of the original, so operators can correlate
// occurrences of the same value without learning it.
type Redactor struct {
	catalog *pii.Catalog
}

// NewRedactor creates a redactor over the full built-in catalog.
func NewRedactor() *Redactor {
	return &Redactor{catalog: pii.DefaultCatalog()}
}

// RedactText returns text with every confident PII match replaced.
func (r *Redactor) RedactText(text string) string {
	if text == "" {
		return ""
	}
	return r.catalog.Redact(text, redactionFloor, redactToken)
}

// RedactEvent scrubs the free-text fields of an event in place.
// Structured fields (reason, indicators, decision) are machine-stable
// strings produced by detectors and carry no user content.
func (r *Redactor) RedactEvent(e *Event) {
	e.RedactedContent = r.RedactText(e.RedactedContent)
}

func redactToken(match string) string {
	return fmt.Sprintf("[REDACTED:%016x]", xxhash.Sum64String(match))
}

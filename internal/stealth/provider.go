package stealth

import (
	rodstealth "github.com/go-rod/stealth"

	"github.com/pageforge/pageforge/internal/fingerprint"
)

// Scripts returns the document-start payloads for one session, in
// injection order: the generic automation-erasure baseline first, then the
// identity alignment layer. Both must be installed before any page script
// runs; a session where installation fails is unusable.
func Scripts(id *fingerprint.SessionIdentity) ([]string, error) {
	alignment, err := BuildScript(id)
	if err != nil {
		return nil, err
	}
	return []string{rodstealth.JS, alignment}, nil
}

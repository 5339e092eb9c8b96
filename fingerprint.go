package checkout

import (
	"crypto/sha256"
	"encoding/hex"
)

// FingerprintInputs are the inputs that affect a payment session's
// content. Two sets of inputs with equal fingerprints may share a session;
// a session must never be reused across two different fingerprints.
type FingerprintInputs struct {
	OfferID     string
	Name        string
	Email       string
	Activation  ActivationType
	LinkedEmail string
}

// Fingerprint returns a deterministic key for these inputs, used for
// session cache lookup. Fields are hashed with a separator so that
// adjacent values cannot collide by concatenation.
func (in FingerprintInputs) Fingerprint() string {
	h := sha256.New()
	for _, part := range []string{in.OfferID, in.Name, in.Email, string(in.Activation), in.LinkedEmail} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

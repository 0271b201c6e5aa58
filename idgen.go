package oraq

import (
	"crypto/rand"
	"encoding/hex"
)

// generateJobID returns 16 random bytes rendered as lowercase hex, the
// bit-exact format required for cross-library interop (spec §4.4/§6).
func generateJobID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

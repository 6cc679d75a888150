package appointment

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NewManageToken mints the bearer credential for an appointment's
// self-service link: 32 bytes from crypto/rand (256 bits), hex encoded.
// It is the only access control on the management endpoints.
func NewManageToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("manage token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

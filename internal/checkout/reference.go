package checkout

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// GenerateOrderNumber builds a human-readable unique order number,
// e.g. ORD-1700000000-4F2A9C.
func GenerateOrderNumber() string {
	return fmt.Sprintf("ORD-%d-%s", time.Now().Unix(), randomSuffix(3))
}

// GenerateEscrowReference builds the unique gateway reference for an
// escrow, e.g. ESC-1700000000-a1b2c3d4.
func GenerateEscrowReference() string {
	return fmt.Sprintf("ESC-%d-%s", time.Now().Unix(), strings.ToLower(randomSuffix(4)))
}

func randomSuffix(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the OS entropy source is broken.
		return fmt.Sprintf("%06X", time.Now().UnixNano()%0xFFFFFF)
	}
	return strings.ToUpper(hex.EncodeToString(buf))
}

package licence

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"regexp"
)

// codePattern matches the fixed-width display form of a licence code:
// four dash-separated groups of eight uppercase hex digits (128 bits).
var codePattern = regexp.MustCompile(`^[0-9A-F]{8}-[0-9A-F]{8}-[0-9A-F]{8}-[0-9A-F]{8}$`)

// NewCode returns a freshly generated licence code: 128 bits from a
// cryptographically secure source, rendered fixed-width. The full
// identifier is stored and compared; it is never truncated, so the
// birthday-bound collision probability stays negligible at any
// realistic issuance volume.
func NewCode() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return fmt.Sprintf("%08X-%08X-%08X-%08X",
		binary.BigEndian.Uint32(b[0:4]),
		binary.BigEndian.Uint32(b[4:8]),
		binary.BigEndian.Uint32(b[8:12]),
		binary.BigEndian.Uint32(b[12:16]),
	), nil
}

// ValidCodeFormat reports whether code has the display form produced by
// NewCode. Lookup paths do not require this check (unknown codes are
// simply not found), but it is useful for client-side validation.
func ValidCodeFormat(code string) bool {
	return codePattern.MatchString(code)
}

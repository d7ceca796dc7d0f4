package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/driftlock/dispatch-proxy/internal/utils"
)

// Fingerprint returns the deterministic exact-match cache key for a prompt:
// the hex sha256 of the lowercased, whitespace-collapsed text.
func Fingerprint(text string) string {
	buf := utils.GetBuffer()
	defer utils.PutBuffer(buf)

	inSpace := false
	for _, r := range strings.TrimSpace(text) {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if inSpace {
			_ = buf.WriteByte(' ')
			inSpace = false
		}
		_, _ = buf.WriteString(string(unicode.ToLower(r)))
	}

	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

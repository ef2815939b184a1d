package quota

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

const aliasPrefix = "user_"

// Alias derives the display alias for a source id. The same secret and id
// always give the same alias; the id cannot be recovered from it.
func Alias(secret, id string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("anonymize_" + id))
	sum := hex.EncodeToString(mac.Sum(nil))
	return aliasPrefix + sum[len(sum)-4:]
}

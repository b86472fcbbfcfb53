package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/kindredlabs/kindred/internal/platform/canonicaljson"
)

// hashDomain separates mutation hashes from any other sha256 use. The
// version suffix allows a future algorithm migration.
const hashDomain = "kindred/mutation/v1"

// RequestHash computes the deterministic hash identifying one logical
// request. The body is canonicalized first, so semantically identical JSON
// bodies hash identically regardless of field order.
func RequestHash(method, route string, body []byte) (string, error) {
	var decoded any
	if len(bytes.TrimSpace(body)) > 0 {
		decoder := json.NewDecoder(bytes.NewReader(body))
		decoder.UseNumber()
		if err := decoder.Decode(&decoded); err != nil {
			return "", fmt.Errorf("decode request body: %w", err)
		}
	}

	canonical, err := canonicaljson.Marshal(map[string]any{
		"method": method,
		"route":  route,
		"body":   decoded,
	})
	if err != nil {
		return "", fmt.Errorf("canonicalize request: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(hashDomain))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Sign returns the signature header value for a delivery. The timestamp is
// part of the signed content.
func Sign(secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func Verify(secret string, timestamp int64, payload []byte, signature string) bool {
	expectedSignature := Sign(secret, timestamp, payload)
	return hmac.Equal([]byte(signature), []byte(expectedSignature))
}

// VerifyFresh also rejects deliveries older than tolerance.
func VerifyFresh(secret string, timestamp int64, payload []byte, signature string, now time.Time, tolerance time.Duration) bool {
	age := now.Sub(time.Unix(timestamp, 0))
	if age < -tolerance || age > tolerance {
		return false
	}
	return Verify(secret, timestamp, payload, signature)
}

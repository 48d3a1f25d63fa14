package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"time"
)

// GenerateOpaqueToken genera un token opaco aleatorio (base64url sin padding).
func GenerateOpaqueToken(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SHA256Base64URL devuelve sha256(input) en base64url sin padding.
func SHA256Base64URL(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// DeriveDeviceID arma un id de device cuando el cliente no manda uno:
// sha256(userAgent|ip|nanos|nonce) en hex, 32 caracteres.
func DeriveDeviceID(userAgent, ip string, now time.Time) string {
	nonce, err := GenerateOpaqueToken(8)
	if err != nil {
		nonce = strconv.FormatInt(now.UnixNano(), 36)
	}
	sum := sha256.Sum256([]byte(userAgent + "|" + ip + "|" + strconv.FormatInt(now.UnixNano(), 10) + "|" + nonce))
	return hex.EncodeToString(sum[:])[:32]
}

// Fingerprint resume un secreto (ej: el hash de password vigente) para
// atarlo a un token sin exponerlo. 16 caracteres base64url.
func Fingerprint(s string) string {
	if s == "" {
		return ""
	}
	return SHA256Base64URL(s)[:16]
}

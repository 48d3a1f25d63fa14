// Package password hashea y verifica secretos.
//
// Hashes nuevos: argon2id en formato PHC. Se aceptan hashes bcrypt heredados
// ($2a$/$2b$/$2y$) y se marcan para rehash tras un login correcto.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

var ErrEmptyPassword = errors.New("empty password")

type Params struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	KeyLen      uint32
}

var Default = Params{Memory: 64 * 1024, Time: 3, Parallelism: 1, KeyLen: 32}

// Fast es para tests: mismo formato, costo mínimo.
var Fast = Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, KeyLen: 32}

// Hasher agrupa parámetros y el hash señuelo usado para igualar tiempos
// cuando el login no existe.
type Hasher struct {
	params Params
	dummy  string
}

func NewHasher(p Params) (*Hasher, error) {
	h := &Hasher{params: p}
	d, err := h.Hash("dummy-password-for-timing")
	if err != nil {
		return nil, err
	}
	h.dummy = d
	return h, nil
}

// Hash devuelve $argon2id$v=19$m=...,t=...,p=...$<salt>$<dk>
func (h *Hasher) Hash(plain string) (string, error) {
	if plain == "" {
		return "", ErrEmptyPassword
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	p := h.params
	dk := argon2.IDKey([]byte(plain), salt, p.Time, p.Memory, p.Parallelism, p.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Time, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(dk),
	), nil
}

// Verify compara en tiempo constante. Formatos desconocidos = false.
func (h *Hasher) Verify(plain, encoded string) bool {
	switch {
	case strings.HasPrefix(encoded, "$argon2id$"):
		return verifyArgon2id(plain, encoded)
	case isBcrypt(encoded):
		return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(plain)) == nil
	}
	return false
}

// VerifyDummy consume el mismo tiempo que un Verify real y siempre falla.
func (h *Hasher) VerifyDummy(plain string) {
	_ = verifyArgon2id(plain, h.dummy)
}

// NeedsRehash reporta si el hash debe regenerarse con los parámetros actuales.
func (h *Hasher) NeedsRehash(encoded string) bool {
	if isBcrypt(encoded) {
		return true
	}
	ph, ok := parsePHC(encoded)
	if !ok {
		return true
	}
	return ph.m != h.params.Memory || ph.t != h.params.Time || ph.p != h.params.Parallelism
}

type phc struct {
	m, t     uint32
	p        uint8
	salt, dk []byte
}

// parsePHC separa "$argon2id$v=19$m=..,t=..,p=..$salt$dk".
func parsePHC(s string) (phc, bool) {
	var out phc
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[1] != "argon2id" || parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return out, false
	}
	for _, kv := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return out, false
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return out, false
		}
		switch k {
		case "m":
			out.m = uint32(n)
		case "t":
			out.t = uint32(n)
		case "p":
			if n > 255 {
				return out, false
			}
			out.p = uint8(n)
		}
	}
	var err error
	if out.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return out, false
	}
	if out.dk, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(out.dk) == 0 {
		return out, false
	}
	return out, out.m > 0 && out.t > 0 && out.p > 0
}

func verifyArgon2id(plain, encoded string) bool {
	ph, ok := parsePHC(encoded)
	if !ok {
		return false
	}
	key := argon2.IDKey([]byte(plain), ph.salt, ph.t, ph.m, ph.p, uint32(len(ph.dk)))
	return subtle.ConstantTimeCompare(key, ph.dk) == 1
}

func isBcrypt(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

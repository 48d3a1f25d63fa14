package secretbox

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"
)

func testKey(seed byte) []byte {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = seed + byte(i)
	}
	return raw
}

func TestSealOpen_RoundTrip(t *testing.T) {
	t.Parallel()
	box, err := New(testKey(1))
	if err != nil {
		t.Fatalf("New err: %v", err)
	}

	msg := "hola mundo ✓ secreto"
	ct, err := box.Seal([]byte(msg))
	if err != nil {
		t.Fatalf("Seal err: %v", err)
	}
	pt, err := box.Open(ct)
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	if string(pt) != msg {
		t.Fatalf("plaintext mismatch: got %q want %q", pt, msg)
	}
}

func TestOpen_DetectsTamper(t *testing.T) {
	t.Parallel()
	box, err := New(testKey(200))
	if err != nil {
		t.Fatal(err)
	}
	ct, err := box.Seal([]byte("top secret"))
	if err != nil {
		t.Fatalf("Seal err: %v", err)
	}
	parts := strings.Split(ct, "|")
	if len(parts) != 2 {
		t.Fatalf("unexpected ct format")
	}
	bs, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatal(err)
	}
	bs[0] ^= 0x01
	corrupted := parts[0] + "|" + base64.StdEncoding.EncodeToString(bs)

	if _, err := box.Open(corrupted); err == nil {
		t.Fatalf("expected auth error, got nil")
	}
	if _, err := box.Open("no-separator"); err != ErrMalformed {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestOpen_WrongKey(t *testing.T) {
	t.Parallel()
	a, _ := New(testKey(1))
	b, _ := New(testKey(2))
	ct, err := a.Seal([]byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Open(ct); err == nil {
		t.Fatalf("expected error with wrong key")
	}
}

func TestParseKey(t *testing.T) {
	t.Parallel()
	raw := testKey(7)
	for name, in := range map[string]string{
		"base64":    base64.StdEncoding.EncodeToString(raw),
		"base64raw": base64.RawStdEncoding.EncodeToString(raw),
		"hex":       hex.EncodeToString(raw),
	} {
		got, err := ParseKey(in)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if string(got) != string(raw) {
			t.Fatalf("%s: key mismatch", name)
		}
	}
	if _, err := ParseKey("short"); err == nil {
		t.Fatalf("expected error for short key")
	}
	if _, err := New([]byte("short")); err == nil {
		t.Fatalf("expected error for short raw key")
	}
}

func TestGenerateKey(t *testing.T) {
	t.Parallel()
	k, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	raw, err := ParseKey(k)
	if err != nil || len(raw) != 32 {
		t.Fatalf("generated key not parseable: %v", err)
	}
}

package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainCall  = "flexstream/call/v1"
	DomainQuery = "flexstream/query/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Digest returns the domain-separated hash of v's canonical encoding.
func Digest(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}

// CallKey computes the identity of a deferred call from its operation name,
// positional arguments and keyword arguments.
// Two calls with equal keys compute the same value from the same parent.
func CallKey(name string, args IRArray, kwargs IRObject) (string, error) {
	if args == nil {
		args = IRArray{}
	}
	if kwargs == nil {
		kwargs = IRObject{}
	}
	return Digest(DomainCall, IRObject{
		"name":   IRString(name),
		"args":   args,
		"kwargs": kwargs,
	})
}

// MustDigest is like Digest but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustDigest(domain string, v any) string {
	d, err := Digest(domain, v)
	if err != nil {
		panic(err)
	}
	return d
}

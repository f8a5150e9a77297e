// Package astutil implements component B: request fingerprinting and
// the AST traversal helpers shared by the request parser and the cache
// manager.
package astutil

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint is the stable hash of a canonicalised query string (H in
// the design). It is a value type so it can be used directly as a map
// key.
type Fingerprint [16]byte

// String renders the fingerprint as a hex string, used as the on-disk
// key for the responses store.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// HashRequest computes a deterministic, collision-resistant fingerprint
// of a canonicalised query string. It must be stable across process
// restarts, so it never incorporates anything process-local (pointer
// addresses, map iteration order, wall-clock time).
func HashRequest(canonical string) Fingerprint {
	sum := sha256.Sum256([]byte(canonical))
	var f Fingerprint
	copy(f[:], sum[:16])
	return f
}

// PathHash derives the query-paths store key from a dot-joined,
// argument-inclusive field path. It deliberately does not fold in a
// request fingerprint: argument serialisation already disambiguates
// distinct resource paths (user(id:"1").name vs user(id:"2").name), and
// keying by fingerprint as well would scope every entry to one exact
// query text, defeating partial-query synthesis across textually
// different queries that target the same field.
func PathHash(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:16])
}

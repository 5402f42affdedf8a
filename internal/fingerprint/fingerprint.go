// Package fingerprint hashes clipboard payloads for change detection.
package fingerprint

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Digest is a 64-bit xxHash of a payload. It is compared only against the
// previous observation of the same content kind, never used as a key.
type Digest uint64

// Sum returns the digest of b.
func Sum(b []byte) Digest { return Digest(xxhash.Sum64(b)) }

// String returns the digest of s without copying it.
func String(s string) Digest { return Digest(xxhash.Sum64String(s)) }

func (d Digest) String() string { return strconv.FormatUint(uint64(d), 16) }

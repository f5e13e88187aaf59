package ruleengine

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/spaolacci/murmur3"
)

// BucketCount is the number of buckets merchants are spread across (0-99).
const BucketCount = 100

// HashFunc maps a bucketing subject to a 32-bit value.
type HashFunc func(subject string) uint32

const (
	HashSHA256  = "sha256"
	HashMurmur3 = "murmur3"
)

// SHA256Hash returns the first 32 bits (big-endian) of SHA-256(subject).
// Equivalent to parsing the first 8 hex characters of the digest as an integer,
// which keeps bucket assignments stable across every implementation of the algorithm.
func SHA256Hash(subject string) uint32 {
	sum := sha256.Sum256([]byte(subject))
	return binary.BigEndian.Uint32(sum[:4])
}

// Murmur3Hash is a faster, non-cryptographic alternative.
// Switching to it reshuffles every merchant's bucket, so it is opt-in per deployment.
//
// The streaming digest is used instead of murmur3.Sum32, whose pointer arithmetic
// trips the race detector's checkptr instrumentation.
func Murmur3Hash(subject string) uint32 {
	hasher := murmur3.New32()
	_, _ = hasher.Write([]byte(subject))
	return hasher.Sum32()
}

// HashByName resolves a configured hash algorithm name.
func HashByName(name string) (HashFunc, error) {
	switch name {
	case "", HashSHA256:
		return SHA256Hash, nil
	case HashMurmur3:
		return Murmur3Hash, nil
	default:
		return nil, fmt.Errorf("unknown bucket hash %q (allowed: %s, %s)", name, HashSHA256, HashMurmur3)
	}
}

// Bucket assigns a merchant to a bucket in [0, 99] for a flag using SHA-256.
func Bucket(merchantID, flagKey string) int {
	return BucketWith(SHA256Hash, merchantID, flagKey)
}

// BucketWith assigns a bucket using the given hash over merchantID+flagKey
// (plain concatenation, no separator).
func BucketWith(hash HashFunc, merchantID, flagKey string) int {
	return int(hash(merchantID+flagKey) % BucketCount)
}

package kvstore

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // digest algorithm is server-mandated, not a security primitive

	"github.com/ployz-labs/kvstore-client/types"
)

// Partitions is the fixed number of hash buckets per namespace (spec.md §3).
const Partitions = 4096

// DigestSize is the length in bytes of a Key's digest.
const DigestSize = 20

// Key identifies a record (spec.md §3): a namespace, an optional set, an
// optional user key, and the digest the server actually indexes by.
type Key struct {
	Namespace string
	SetName   string
	UserKey   types.Value
	digest    [DigestSize]byte
}

// NewKey builds a Key from a namespace, set and user key, computing its
// digest immediately. Only Integer, String and Blob user keys are
// permitted; passing any other particle type is a programmer error and
// panics, matching the Rust core's as_key! contract (spec.md §3).
func NewKey(namespace, setName string, userKey types.Value) Key {
	k := Key{Namespace: namespace, SetName: setName, UserKey: userKey}
	k.digest = computeDigest(setName, userKey)
	return k
}

// NewKeyFromDigest builds a Key directly from a precomputed digest, with no
// user key (used when only namespace/set/digest are known, e.g. records
// streamed back from a scan).
func NewKeyFromDigest(namespace, setName string, digest [DigestSize]byte) Key {
	return Key{Namespace: namespace, SetName: setName, digest: digest}
}

// Digest returns the 20-byte RIPEMD-160 digest identifying this record.
func (k Key) Digest() [DigestSize]byte { return k.digest }

func computeDigest(setName string, userKey types.Value) [DigestSize]byte {
	switch userKey.ParticleType() {
	case types.ParticleInteger, types.ParticleString, types.ParticleBlob:
	default:
		panic(fmt.Sprintf("aerospike: invalid user key particle type %d: only integer, string and blob keys are permitted", userKey.ParticleType()))
	}

	h := ripemd160.New()
	_, _ = h.Write([]byte(setName))
	_, _ = h.Write([]byte{byte(userKey.ParticleType())})
	_, _ = h.Write(userKey.KeyBytes())

	var out [DigestSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

// PartitionID returns the partition this key's digest maps to: the first 4
// digest bytes interpreted little-endian, masked to [0, Partitions)
// (spec.md §3, §8 scenario 2).
func (k Key) PartitionID() uint32 {
	return PartitionIDFromDigest(k.digest)
}

// PartitionIDFromDigest computes a partition id directly from a digest,
// without requiring a full Key (used by the stream decoder, which only
// receives digests over the wire).
func PartitionIDFromDigest(digest [DigestSize]byte) uint32 {
	return binary.LittleEndian.Uint32(digest[0:4]) & (Partitions - 1)
}

func (k Key) String() string {
	if k.UserKey != nil {
		return fmt.Sprintf("<Key: ns=%q, set=%q, key=%q>", k.Namespace, k.SetName, k.UserKey.String())
	}
	return fmt.Sprintf("<Key: ns=%q, set=%q, digest=%x>", k.Namespace, k.SetName, k.digest)
}

// Equal reports whether two keys identify the same record: namespace and
// digest equality, matching the server's own identity rule.
func (k Key) Equal(other Key) bool {
	return k.Namespace == other.Namespace && k.digest == other.digest
}

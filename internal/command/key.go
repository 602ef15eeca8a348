// Package command implements the request/response wire codec and the
// single-command router/executor (spec.md §4.1, §4.7): turning a policy and
// a key into bytes on a connection, and turning the reply back into a
// record or a structured error.
package command

import "github.com/ployz-labs/kvstore-client/types"

// DigestSize is the length in bytes of a key digest on the wire.
const DigestSize = 20

// Key is the wire-level view of a record identity: everything a command
// needs to address a record, independent of the root package's Key type
// (internal/command cannot import the root package, which imports it).
type Key struct {
	Namespace string
	SetName   string
	Digest    [DigestSize]byte
	UserKey   types.Value // nil unless the caller opted into send-key
}

package command

import (
	"github.com/ployz-labs/kvstore-client/internal/buffer"
	"github.com/ployz-labs/kvstore-client/policy"
	"github.com/ployz-labs/kvstore-client/types"
)

// BatchKey is one entry of a batch_get() request: an original-order index
// (carried back on the response so results can be reassembled regardless of
// server reply order, spec.md §8 testable property 4) plus the key itself.
type BatchKey struct {
	Index int
	Key   Key
}

// BuildBatchRead packs every key destined for one node into a single
// request: one fieldBatchIndex field holding the per-key index/digest/
// namespace/set table, followed by the shared bin selector ops that apply
// to every key in the group (spec.md §4.8 groups keys by node before
// writing the wire request).
func BuildBatchRead(buf *buffer.Buffer, pol policy.BatchPolicy, keys []BatchKey, bins types.Bins) {
	buf.Reset()
	beginRequest(buf)

	payloadStart := buf.Offset()
	buf.WriteUint32(0) // field size, patched below
	buf.WriteUint8(uint8(fieldBatchIndex))
	buf.WriteUint32(uint32(len(keys)))
	for _, bk := range keys {
		buf.WriteUint32(uint32(bk.Index))
		buf.WriteBytes(bk.Key.Digest[:])
		writeBatchKeyNamespaceSet(buf, bk.Key)
	}
	patchFieldSize(buf, payloadStart)

	readAttr := info1Read | info1Batch
	var opCount int
	switch bins.Mode {
	case types.BinsNone:
		readAttr |= info1NoBinData
		writeOperationName(buf, "", opRead)
		opCount = 1
	case types.BinsAll:
		readAttr |= info1GetAll
	case types.BinsSome:
		for _, name := range bins.Names {
			writeOperationName(buf, name, opRead)
		}
		opCount = len(bins.Names)
	}
	if pol.ConsistencyLevel == types.ConsistencyAll {
		readAttr |= info1ConsistencyAll
	}

	finishHeader(buf, readAttr, 0, 0, 0, 0, 1, uint16(opCount))
	endRequest(buf)
}

// writeBatchKeyNamespaceSet writes the namespace/set-name pair for one
// batch entry inline (length-prefixed, since they are not independent
// self-describing fields inside the packed batch-index payload).
func writeBatchKeyNamespaceSet(buf *buffer.Buffer, key Key) {
	buf.WriteUint8(uint8(len(key.Namespace)))
	buf.WriteString(key.Namespace)
	buf.WriteUint8(uint8(len(key.SetName)))
	buf.WriteString(key.SetName)
}

// patchFieldSize backpatches a field header's size once its payload length
// is known, leaving the cursor at the end of the field.
func patchFieldSize(buf *buffer.Buffer, fieldStart int) {
	end := buf.Offset()
	buf.SetOffset(fieldStart)
	buf.WriteUint32(uint32(end - fieldStart - 4))
	buf.SetOffset(end)
}

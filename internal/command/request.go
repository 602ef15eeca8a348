package command

import (
	"time"

	"github.com/ployz-labs/kvstore-client/internal/buffer"
	"github.com/ployz-labs/kvstore-client/policy"
	"github.com/ployz-labs/kvstore-client/types"
)

// BinValue is one bin name/value pair for a multi-bin write (put/add/
// append/prepend all write the same op type across a set of bins).
type BinValue struct {
	Name  string
	Value types.Value
}

// Op is one entry of an operate() call: a bin-level op type plus the bin it
// targets. Value is nil for read ops.
type Op struct {
	Type    types.OpType
	BinName string
	Value   types.Value
}

func beginRequest(buf *buffer.Buffer) {
	buf.SetOffset(totalHeaderSize)
}

// finishHeader backpatches the 22-byte remaining header once the body's
// field/op counts are known (spec.md §4.1), then restores the cursor past
// the body so endRequest's length computation sees the true size.
func finishHeader(buf *buffer.Buffer, readAttr, writeAttr, infoAttr uint8, generation, expiration uint32, fieldCount, opCount uint16) {
	bodyEnd := buf.Len()
	buf.SetOffset(8)
	buf.WriteUint8(headerSize)
	buf.WriteUint8(readAttr)
	buf.WriteUint8(writeAttr)
	buf.WriteUint8(infoAttr)
	buf.WriteUint8(0) // unused
	buf.WriteUint8(0) // result code, request side is always 0
	buf.WriteUint32(generation)
	buf.WriteUint32(expiration)
	buf.WriteUint32(0) // timeout_ms, patched later by WriteTimeoutField
	buf.WriteUint16(fieldCount)
	buf.WriteUint16(opCount)
	buf.SetOffset(bodyEnd)
}

// endRequest writes the 8-byte frame header now that the body length is
// known (spec.md §4.1).
func endRequest(buf *buffer.Buffer) {
	size := uint64(buf.Len() - 8)
	buf.SetOffset(0)
	buf.WriteUint8(msgVersion)
	buf.WriteUint8(msgTypeRecord)
	buf.WriteUint48(size)
}

// WriteTimeoutField patches the request's socket-timeout field after the
// rest of the request is built (spec.md §4.7 write_timeout step).
func WriteTimeoutField(buf *buffer.Buffer, timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	ms := uint32(timeout / time.Millisecond)
	buf.SetOffset(22)
	buf.WriteUint32(ms)
}

func writeFieldHeader(buf *buffer.Buffer, size int, ft fieldType) {
	buf.WriteUint32(uint32(size + 1))
	buf.WriteUint8(uint8(ft))
}

func writeFieldString(buf *buffer.Buffer, s string, ft fieldType) {
	writeFieldHeader(buf, len(s), ft)
	buf.WriteString(s)
}

func writeFieldBytes(buf *buffer.Buffer, b []byte, ft fieldType) {
	writeFieldHeader(buf, len(b), ft)
	buf.WriteBytes(b)
}

func writeFieldValue(buf *buffer.Buffer, v types.Value, ft fieldType) {
	writeFieldHeader(buf, v.EstimateSize()+1, ft)
	buf.WriteUint8(uint8(v.ParticleType()))
	buf.WriteBytes(v.EncodeTo(nil))
}

// writeKey writes the namespace/set/digest fields (and the user key field
// when sendKey is true and one is available), returning the field count.
func writeKey(buf *buffer.Buffer, key Key, sendKey bool) int {
	count := 0
	if key.Namespace != "" {
		writeFieldString(buf, key.Namespace, fieldNamespace)
		count++
	}
	if key.SetName != "" {
		writeFieldString(buf, key.SetName, fieldSetName)
		count++
	}
	writeFieldBytes(buf, key.Digest[:], fieldDigestRipe)
	count++
	if sendKey && key.UserKey != nil {
		writeFieldValue(buf, key.UserKey, fieldKey)
		count++
	}
	return count
}

func writeOperationBin(buf *buffer.Buffer, name string, v types.Value, op opCode) {
	value := v.EncodeTo(nil)
	buf.WriteUint32(uint32(len(name) + len(value) + 4))
	buf.WriteUint8(uint8(op))
	buf.WriteUint8(uint8(v.ParticleType()))
	buf.WriteUint8(0) // version, always 0
	buf.WriteUint8(uint8(len(name)))
	buf.WriteString(name)
	buf.WriteBytes(value)
}

func writeOperationName(buf *buffer.Buffer, name string, op opCode) {
	buf.WriteUint32(uint32(len(name) + 4))
	buf.WriteUint8(uint8(op))
	buf.WriteUint8(0)
	buf.WriteUint8(0)
	buf.WriteUint8(uint8(len(name)))
	buf.WriteString(name)
}

func writeOperationEmpty(buf *buffer.Buffer, op opCode) {
	buf.WriteUint32(4)
	buf.WriteUint8(uint8(op))
	buf.WriteUint8(0)
	buf.WriteUint8(0)
	buf.WriteUint8(0)
}

func writeAttrsForGeneration(pol policy.WritePolicy) (generation uint32, flag uint8) {
	switch pol.GenerationPolicy {
	case types.GenerationExpectGenEqual:
		return pol.Generation, info2Generation
	case types.GenerationExpectGenGT:
		return pol.Generation, info2GenerationGT
	default:
		return 0, 0
	}
}

// BuildRead builds a get() request (spec.md §4.10): bins=None reads only
// the header, bins=All requests every bin, bins=Some names specific bins.
func BuildRead(buf *buffer.Buffer, pol policy.ReadPolicy, key Key, bins types.Bins) {
	buf.Reset()
	beginRequest(buf)
	fieldCount := writeKey(buf, key, false)

	readAttr := info1Read
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

	finishHeader(buf, readAttr, 0, 0, 0, 0, uint16(fieldCount), uint16(opCount))
	endRequest(buf)
}

// BuildExists builds an exists() request: a header-only read with no ops.
func BuildExists(buf *buffer.Buffer, pol policy.ReadPolicy, key Key) {
	buf.Reset()
	beginRequest(buf)
	fieldCount := writeKey(buf, key, false)
	finishHeader(buf, info1Read|info1NoBinData, 0, 0, 0, 0, uint16(fieldCount), 0)
	endRequest(buf)
}

// BuildWrite builds a put/add/append/prepend request: opType applies to
// every bin in bins (spec.md §4.10).
func BuildWrite(buf *buffer.Buffer, pol policy.WritePolicy, key Key, opType types.OpType, bins []BinValue) {
	buf.Reset()
	beginRequest(buf)
	fieldCount := writeKey(buf, key, pol.SendKey)

	code := wireOpCode(opType)
	for _, bin := range bins {
		writeOperationBin(buf, bin.Name, bin.Value, code)
	}

	generation, genFlag := writeAttrsForGeneration(pol)
	writeAttr := info2Write | genFlag
	if pol.DurableDelete {
		writeAttr |= info2DurableDelete
	}
	if pol.CreateOnly {
		writeAttr |= info2CreateOnly
	}
	var infoAttr uint8
	if pol.CommitLevel == types.CommitMaster {
		infoAttr |= info3CommitMaster
	}

	finishHeader(buf, 0, writeAttr, infoAttr, generation, pol.Expiration, uint16(fieldCount), uint16(len(bins)))
	endRequest(buf)
}

// BuildDelete builds a delete() request, returning whether a record existed
// is the response's job (ResultKeyNotFoundError vs Ok).
func BuildDelete(buf *buffer.Buffer, pol policy.WritePolicy, key Key) {
	buf.Reset()
	beginRequest(buf)
	fieldCount := writeKey(buf, key, false)

	generation, genFlag := writeAttrsForGeneration(pol)
	writeAttr := info2Write | info2Delete | genFlag
	if pol.DurableDelete {
		writeAttr |= info2DurableDelete
	}

	finishHeader(buf, 0, writeAttr, 0, generation, 0, uint16(fieldCount), 0)
	endRequest(buf)
}

// BuildTouch builds a touch() request: a single TOUCH op that refreshes a
// record's expiration without altering its bins.
func BuildTouch(buf *buffer.Buffer, pol policy.WritePolicy, key Key) {
	buf.Reset()
	beginRequest(buf)
	fieldCount := writeKey(buf, key, pol.SendKey)
	writeOperationEmpty(buf, opTouch)

	generation, genFlag := writeAttrsForGeneration(pol)
	writeAttr := info2Write | genFlag
	if pol.DurableDelete {
		writeAttr |= info2DurableDelete
	}
	var infoAttr uint8
	if pol.CommitLevel == types.CommitMaster {
		infoAttr |= info3CommitMaster
	}

	finishHeader(buf, 0, writeAttr, infoAttr, generation, pol.Expiration, uint16(fieldCount), 1)
	endRequest(buf)
}

// BuildOperate builds an operate() request: an ordered mix of read and
// write bin-level ops in one round trip (spec.md §4.10).
func BuildOperate(buf *buffer.Buffer, pol policy.WritePolicy, key Key, ops []Op) {
	buf.Reset()
	beginRequest(buf)

	var readAttr, writeAttr uint8
	for _, op := range ops {
		switch op.Type {
		case types.OpRead:
			readAttr |= info1Read
		case types.OpReadHeader:
			readAttr |= info1Read | info1NoBinData
		default:
			writeAttr |= info2Write
		}
	}

	sendKey := pol.SendKey && writeAttr != 0
	fieldCount := writeKey(buf, key, sendKey)

	for _, op := range ops {
		switch op.Type {
		case types.OpRead, types.OpReadHeader:
			writeOperationName(buf, op.BinName, opRead)
		default:
			writeOperationBin(buf, op.BinName, op.Value, wireOpCode(op.Type))
		}
	}

	generation, genFlag := writeAttrsForGeneration(pol)
	writeAttr |= genFlag
	if pol.DurableDelete {
		writeAttr |= info2DurableDelete
	}
	if pol.CreateOnly {
		writeAttr |= info2CreateOnly
	}
	if pol.ConsistencyLevel == types.ConsistencyAll {
		readAttr |= info1ConsistencyAll
	}
	var infoAttr uint8
	if pol.CommitLevel == types.CommitMaster {
		infoAttr |= info3CommitMaster
	}

	finishHeader(buf, readAttr, writeAttr, infoAttr, generation, pol.Expiration, uint16(fieldCount), uint16(len(ops)))
	endRequest(buf)
}

// BuildUDF builds an execute_udf() request. packedArgs is the msgpack-
// encoded argument array, produced by the external value codec (spec.md
// §1) — this layer only places the already-packed bytes on the wire.
func BuildUDF(buf *buffer.Buffer, pol policy.WritePolicy, key Key, pkg, function string, packedArgs []byte) {
	buf.Reset()
	beginRequest(buf)
	fieldCount := writeKey(buf, key, pol.SendKey)
	writeFieldString(buf, pkg, fieldUdfPackageName)
	writeFieldString(buf, function, fieldUdfFunction)
	writeFieldBytes(buf, packedArgs, fieldUdfArgList)
	fieldCount += 3

	finishHeader(buf, 0, info2Write, 0, 0, pol.Expiration, uint16(fieldCount), 0)
	endRequest(buf)
}

func wireOpCode(t types.OpType) opCode {
	switch t {
	case types.OpWrite:
		return opWrite
	case types.OpAdd:
		return opAdd
	case types.OpAppend:
		return opAppend
	case types.OpPrepend:
		return opPrepend
	case types.OpTouch:
		return opTouch
	case types.OpDelete:
		return opDelete
	default:
		return opWrite
	}
}

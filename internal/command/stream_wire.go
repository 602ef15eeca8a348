package command

import (
	"github.com/ployz-labs/kvstore-client/internal/buffer"
	"github.com/ployz-labs/kvstore-client/policy"
	"github.com/ployz-labs/kvstore-client/types"
)

// StreamRequest describes one scan()/query() wire request against a single
// node: the partition id range this node is responsible for, an optional
// bin selector, and (for query) a server-side filter expression (spec.md
// §4.9).
type StreamRequest struct {
	Namespace  string
	SetName    string
	Bins       types.Bins
	TaskID     uint64
	PartitionIDs []uint16
	FilterExpr []byte // nil for a plain scan
}

// BuildScan builds a scan() or query() wire request. A scan and a query
// share everything but the presence of FilterExpr; the server tells them
// apart by whether the filter-expression field is present (spec.md §4.9).
func BuildScan(buf *buffer.Buffer, pol policy.ScanPolicy, req StreamRequest) {
	buf.Reset()
	beginRequest(buf)

	fieldCount := 0
	if req.Namespace != "" {
		writeFieldString(buf, req.Namespace, fieldNamespace)
		fieldCount++
	}
	if req.SetName != "" {
		writeFieldString(buf, req.SetName, fieldSetName)
		fieldCount++
	}

	writeFieldUint64(buf, req.TaskID, fieldTranID)
	fieldCount++

	if len(req.PartitionIDs) > 0 {
		writePIDArrayField(buf, req.PartitionIDs)
		fieldCount++
	}

	if req.FilterExpr != nil {
		writeFieldBytes(buf, req.FilterExpr, fieldFilterExp)
		fieldCount++
	}

	if pol.SocketTimeout > 0 {
		writeFieldUint32(buf, uint32(pol.SocketTimeout.Milliseconds()), fieldScanTimeout)
		fieldCount++
	}

	readAttr := info1Read
	var opCount int
	switch req.Bins.Mode {
	case types.BinsNone:
		readAttr |= info1NoBinData
	case types.BinsAll:
		readAttr |= info1GetAll
	case types.BinsSome:
		for _, name := range req.Bins.Names {
			writeOperationName(buf, name, opRead)
		}
		opCount = len(req.Bins.Names)
	}
	if !pol.IncludeBinData {
		readAttr |= info1NoBinData
	}

	finishHeader(buf, readAttr, 0, 0, 0, 0, uint16(fieldCount), uint16(opCount))
	endRequest(buf)
}

func writeFieldUint64(buf *buffer.Buffer, v uint64, ft fieldType) {
	writeFieldHeader(buf, 8, ft)
	buf.WriteUint64(v)
}

func writeFieldUint32(buf *buffer.Buffer, v uint32, ft fieldType) {
	writeFieldHeader(buf, 4, ft)
	buf.WriteUint32(v)
}

// writePIDArrayField packs the partition id list this request is scoped to
// as a flat array of big-endian u16s (spec.md §4.9 Launch: partition ids
// assigned per node up front).
func writePIDArrayField(buf *buffer.Buffer, ids []uint16) {
	writeFieldHeader(buf, len(ids)*2, fieldPIDArray)
	for _, id := range ids {
		buf.WriteUint16(id)
	}
}

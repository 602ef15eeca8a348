package command

import (
	"encoding/binary"
	"fmt"

	"github.com/ployz-labs/kvstore-client/internal/aserrors"
	"github.com/ployz-labs/kvstore-client/internal/buffer"
	"github.com/ployz-labs/kvstore-client/internal/conn"
	"github.com/ployz-labs/kvstore-client/types"
)

// Response is one parsed record-shaped reply: a header, the key fields
// present on the wire, and the decoded bin map (spec.md §4.1 response body,
// §4.9 per-record decode).
type Response struct {
	ResultCode    int
	Generation    uint32
	Expiration    uint32
	Info3         uint8
	Key           Key
	Bins          map[string]types.Value
	BatchIndex    int
	HasBatchIndex bool
	BVal          uint64 // secondary-index sort value, present on query() responses only
}

// Err translates ResultCode into the client's structured error taxonomy
// (spec.md §7); nil when the result code is Ok.
func (r *Response) Err() error {
	if r.ResultCode == resultOk {
		return nil
	}
	return aserrors.Server(r.ResultCode, resultMessage(r.ResultCode))
}

// IsLast reports whether this frame carries the terminal marker for its
// response stream (spec.md §4.9 info3.LAST).
func (r *Response) IsLast() bool { return r.Info3&info3Last != 0 }

// IsPartitionDone reports whether this frame is a partition-complete
// marker rather than a record (spec.md §4.9 info3.PARTITION_DONE).
func (r *Response) IsPartitionDone() bool { return r.Info3&info3PartitionDone != 0 }

// ReadResponse reads one complete, self-contained frame off c: the 8-byte
// frame header followed by exactly one record-shaped body (spec.md §4.1).
// Used by single-key commands; batch and stream responses may pack many
// record-shaped bodies into one frame and use ReadFrames instead.
func ReadResponse(c *conn.Conn) (*Response, error) {
	header := make([]byte, 8)
	if err := c.ReadFull(header); err != nil {
		return nil, aserrors.Wrap(aserrors.KindConnection, "read response frame header", err)
	}
	size := decodeUint48(header[2:])
	if size == 0 {
		return &Response{Info3: info3Last, Bins: map[string]types.Value{}}, nil
	}

	buf := c.Buffer
	buf.Reset()
	if err := buf.Resize(int(size)); err != nil {
		return nil, aserrors.Wrap(aserrors.KindBadResponse, "resize response buffer", err)
	}
	if err := c.ReadFull(buf.Bytes()); err != nil {
		return nil, aserrors.Wrap(aserrors.KindConnection, "read response body", err)
	}
	buf.SetOffset(0)
	return parseResponseBody(buf)
}

// parseResponseBody parses one record-shaped entry starting at buf's
// current offset, leaving the cursor positioned right after it so callers
// can parse another entry from the same frame body (spec.md §4.9).
func parseResponseBody(buf *buffer.Buffer) (*Response, error) {
	if _, err := buf.ReadUint8(); err != nil { // header_len
		return nil, badResponse(err)
	}
	if _, err := buf.ReadUint8(); err != nil { // read_attr, unused on responses
		return nil, badResponse(err)
	}
	if _, err := buf.ReadUint8(); err != nil { // write_attr, unused on responses
		return nil, badResponse(err)
	}
	info3, err := buf.ReadUint8()
	if err != nil {
		return nil, badResponse(err)
	}
	if _, err := buf.ReadUint8(); err != nil { // unused
		return nil, badResponse(err)
	}
	resultCode, err := buf.ReadUint8()
	if err != nil {
		return nil, badResponse(err)
	}
	generation, err := buf.ReadUint32()
	if err != nil {
		return nil, badResponse(err)
	}
	expiration, err := buf.ReadUint32()
	if err != nil {
		return nil, badResponse(err)
	}
	if _, err := buf.ReadUint32(); err != nil { // timeout_ms
		return nil, badResponse(err)
	}
	fieldCount, err := buf.ReadUint16()
	if err != nil {
		return nil, badResponse(err)
	}
	opCount, err := buf.ReadUint16()
	if err != nil {
		return nil, badResponse(err)
	}

	resp := &Response{
		ResultCode: int(resultCode),
		Generation: generation,
		Expiration: expiration,
		Info3:      info3,
		Bins:       make(map[string]types.Value, opCount),
	}

	for i := uint16(0); i < fieldCount; i++ {
		if err := readResponseField(buf, resp); err != nil {
			return nil, badResponse(err)
		}
	}
	for i := uint16(0); i < opCount; i++ {
		name, value, err := readResponseOp(buf)
		if err != nil {
			return nil, badResponse(err)
		}
		resp.Bins[name] = value
	}
	return resp, nil
}

func readResponseField(buf *buffer.Buffer, resp *Response) error {
	size, err := buf.ReadUint32()
	if err != nil {
		return err
	}
	ft, err := buf.ReadUint8()
	if err != nil {
		return err
	}
	payload, err := buf.ReadBytes(int(size) - 1)
	if err != nil {
		return err
	}

	switch fieldType(ft) {
	case fieldNamespace:
		resp.Key.Namespace = string(payload)
	case fieldSetName:
		resp.Key.SetName = string(payload)
	case fieldDigestRipe:
		copy(resp.Key.Digest[:], payload)
	case fieldKey:
		if len(payload) > 0 {
			if v, err := types.Decode(types.ParticleType(payload[0]), payload[1:]); err == nil {
				resp.Key.UserKey = v
			}
		}
	case fieldBatchIndex:
		if len(payload) == 4 {
			resp.BatchIndex = int(binary.BigEndian.Uint32(payload))
			resp.HasBatchIndex = true
		}
	case fieldBVal:
		if len(payload) == 8 {
			resp.BVal = binary.BigEndian.Uint64(payload)
		}
	}
	return nil
}

func readResponseOp(buf *buffer.Buffer) (string, types.Value, error) {
	size, err := buf.ReadUint32()
	if err != nil {
		return "", nil, err
	}
	if _, err := buf.ReadUint8(); err != nil { // op_type, echoed back, unused here
		return "", nil, err
	}
	particleType, err := buf.ReadUint8()
	if err != nil {
		return "", nil, err
	}
	if _, err := buf.ReadUint8(); err != nil { // version
		return "", nil, err
	}
	nameLen, err := buf.ReadUint8()
	if err != nil {
		return "", nil, err
	}
	name, err := buf.ReadString(int(nameLen))
	if err != nil {
		return "", nil, err
	}
	valueLen := int(size) - 4 - int(nameLen)
	if valueLen < 0 {
		return "", nil, fmt.Errorf("command: negative op value length for %q", name)
	}
	raw, err := buf.ReadBytes(valueLen)
	if err != nil {
		return "", nil, err
	}
	v, err := types.Decode(types.ParticleType(particleType), raw)
	if err != nil {
		return "", nil, err
	}
	return name, v, nil
}

func badResponse(err error) error {
	return aserrors.Wrap(aserrors.KindBadResponse, "parse response body", err)
}

func decodeUint48(b []byte) uint64 {
	return uint64(b[0])<<40 | uint64(b[1])<<32 | uint64(b[2])<<24 |
		uint64(b[3])<<16 | uint64(b[4])<<8 | uint64(b[5])
}

// resultMessage gives a human-readable label for the result codes the core
// inspects or is likely to surface to callers (spec.md §7).
func resultMessage(code int) string {
	switch code {
	case aserrors.ResultKeyNotFoundError:
		return "key not found"
	case aserrors.ResultGenerationError:
		return "generation mismatch"
	case aserrors.ResultParameterError:
		return "parameter error"
	case aserrors.ResultKeyExistsError:
		return "key already exists"
	case aserrors.ResultBinExistsError:
		return "bin already exists"
	case aserrors.ResultClusterKeyMismatch:
		return "cluster key mismatch"
	case aserrors.ResultServerMemError:
		return "server out of memory"
	case aserrors.ResultTimeout:
		return "server timeout"
	case aserrors.ResultPartitionUnavailable:
		return "partition unavailable"
	case aserrors.ResultBinTypeError:
		return "bin type error"
	case aserrors.ResultRecordTooBig:
		return "record too big"
	case aserrors.ResultKeyBusy:
		return "hot key"
	case aserrors.ResultScanAbortedError:
		return "scan aborted"
	case aserrors.ResultUnsupportedFeature:
		return "unsupported feature"
	case aserrors.ResultBinNotFound:
		return "bin not found"
	case aserrors.ResultDeviceOverload:
		return "device overload"
	case aserrors.ResultInvalidNamespace:
		return "invalid namespace"
	case aserrors.ResultFilteredOut:
		return "filtered out"
	case aserrors.ResultUdfBadResponse:
		return "udf failure"
	default:
		return fmt.Sprintf("server error %d", code)
	}
}

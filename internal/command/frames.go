package command

import (
	"github.com/ployz-labs/kvstore-client/internal/aserrors"
	"github.com/ployz-labs/kvstore-client/internal/conn"
)

// ReadFrames drives the multi-frame response loop shared by the batch (C8)
// and stream (C9) executors (spec.md §4.9): read an 8-byte frame header,
// and while bytes remain in its declared size, parse one record-shaped
// entry at a time and hand it to onRecord. A zero-size frame or a record
// with info3.LAST ends the whole response. onRecord returning stop=true
// lets a caller end the loop early (e.g. a closed recordset, spec.md §5
// cancellation).
func ReadFrames(c *conn.Conn, onRecord func(*Response) (stop bool, err error)) error {
	for {
		header := make([]byte, 8)
		if err := c.ReadFull(header); err != nil {
			return aserrors.Wrap(aserrors.KindConnection, "read frame header", err)
		}
		size := decodeUint48(header[2:])
		if size == 0 {
			return nil
		}

		buf := c.Buffer
		buf.Reset()
		if err := buf.Resize(int(size)); err != nil {
			return aserrors.Wrap(aserrors.KindBadResponse, "resize frame buffer", err)
		}
		if err := c.ReadFull(buf.Bytes()); err != nil {
			return aserrors.Wrap(aserrors.KindConnection, "read frame body", err)
		}
		buf.SetOffset(0)

		for buf.Offset() < buf.Len() {
			resp, err := parseResponseBody(buf)
			if err != nil {
				return err
			}
			if resp.IsLast() {
				return nil
			}
			stop, err := onRecord(resp)
			if err != nil {
				return err
			}
			if stop {
				return nil
			}
		}
	}
}

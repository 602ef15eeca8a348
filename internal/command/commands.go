package command

import (
	"errors"

	"github.com/ployz-labs/kvstore-client/internal/aserrors"
	"github.com/ployz-labs/kvstore-client/internal/conn"
	"github.com/ployz-labs/kvstore-client/policy"
	"github.com/ployz-labs/kvstore-client/types"
)

// Command is one single-key operation the retry loop (Execute, spec.md
// §4.7) can drive: it builds its own request against the leased
// connection's buffer and interprets its own response.
type Command interface {
	// Build writes the wire request for this attempt into c's buffer.
	Build(c *conn.Conn)
	// Timeout returns the total-deadline policy value written into the
	// request's server-side socket-timeout field.
	Timeout() policy.BasePolicy
	// ParseResult reads and interprets the response.
	ParseResult(c *conn.Conn) error
}

// ReadCommand implements get(): bins=All/None/Some against a single key.
// A "key not found" result is a normal failure for get() (spec.md §4.10),
// unlike exists()/delete() which interpret it specially.
type ReadCommand struct {
	Policy policy.ReadPolicy
	Key    Key
	Bins   types.Bins

	Result *Response
}

func (g *ReadCommand) Build(c *conn.Conn) {
	BuildRead(c.Buffer, g.Policy, g.Key, g.Bins)
	WriteTimeoutField(c.Buffer, g.Policy.Timeout)
}

func (g *ReadCommand) Timeout() policy.BasePolicy { return g.Policy.BasePolicy }

func (g *ReadCommand) ParseResult(c *conn.Conn) error {
	resp, err := ReadResponse(c)
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	g.Result = resp
	return nil
}

// ExistsCommand implements exists(): a header-only read whose "key not
// found" result is not an error, just Existed=false.
type ExistsCommand struct {
	Policy policy.ReadPolicy
	Key    Key

	Existed bool
}

func (e *ExistsCommand) Build(c *conn.Conn) {
	BuildExists(c.Buffer, e.Policy, e.Key)
	WriteTimeoutField(c.Buffer, e.Policy.Timeout)
}

func (e *ExistsCommand) Timeout() policy.BasePolicy { return e.Policy.BasePolicy }

func (e *ExistsCommand) ParseResult(c *conn.Conn) error {
	resp, err := ReadResponse(c)
	if err != nil {
		return err
	}
	switch resp.ResultCode {
	case aserrors.ResultOk:
		e.Existed = true
		return nil
	case aserrors.ResultKeyNotFoundError:
		e.Existed = false
		return nil
	default:
		return resp.Err()
	}
}

// WriteCommand implements put/add/append/prepend(): one op type applied
// to every bin given.
type WriteCommand struct {
	Policy policy.WritePolicy
	Key    Key
	OpType types.OpType
	Bins   []BinValue
}

func (w *WriteCommand) Build(c *conn.Conn) {
	BuildWrite(c.Buffer, w.Policy, w.Key, w.OpType, w.Bins)
	WriteTimeoutField(c.Buffer, w.Policy.Timeout)
}

func (w *WriteCommand) Timeout() policy.BasePolicy { return w.Policy.BasePolicy }

func (w *WriteCommand) ParseResult(c *conn.Conn) error {
	resp, err := ReadResponse(c)
	if err != nil {
		return err
	}
	return resp.Err()
}

// DeleteCommand implements delete(): Existed reports whether a record was
// actually removed, matching spec.md §8 scenario 6 (delete never fails
// just because the key was already gone).
type DeleteCommand struct {
	Policy policy.WritePolicy
	Key    Key

	Existed bool
}

func (d *DeleteCommand) Build(c *conn.Conn) {
	BuildDelete(c.Buffer, d.Policy, d.Key)
	WriteTimeoutField(c.Buffer, d.Policy.Timeout)
}

func (d *DeleteCommand) Timeout() policy.BasePolicy { return d.Policy.BasePolicy }

func (d *DeleteCommand) ParseResult(c *conn.Conn) error {
	resp, err := ReadResponse(c)
	if err != nil {
		return err
	}
	switch resp.ResultCode {
	case aserrors.ResultOk:
		d.Existed = true
		return nil
	case aserrors.ResultKeyNotFoundError:
		d.Existed = false
		return nil
	default:
		return resp.Err()
	}
}

// TouchCommand implements touch(): refresh expiration, leave bins alone.
type TouchCommand struct {
	Policy policy.WritePolicy
	Key    Key
}

func (t *TouchCommand) Build(c *conn.Conn) {
	BuildTouch(c.Buffer, t.Policy, t.Key)
	WriteTimeoutField(c.Buffer, t.Policy.Timeout)
}

func (t *TouchCommand) Timeout() policy.BasePolicy { return t.Policy.BasePolicy }

func (t *TouchCommand) ParseResult(c *conn.Conn) error {
	resp, err := ReadResponse(c)
	if err != nil {
		return err
	}
	return resp.Err()
}

// OperateCommand implements operate(): an ordered mix of read/write ops in
// one round trip. Result carries whatever bins the server echoed back
// (read ops' values; BuildOperate does not set the respond-all-ops flag).
type OperateCommand struct {
	Policy policy.WritePolicy
	Key    Key
	Ops    []Op

	Result *Response
}

func (o *OperateCommand) Build(c *conn.Conn) {
	BuildOperate(c.Buffer, o.Policy, o.Key, o.Ops)
	WriteTimeoutField(c.Buffer, o.Policy.Timeout)
}

func (o *OperateCommand) Timeout() policy.BasePolicy { return o.Policy.BasePolicy }

func (o *OperateCommand) ParseResult(c *conn.Conn) error {
	resp, err := ReadResponse(c)
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	o.Result = resp
	return nil
}

// failureBinName is the bin the server packs a UDF error string into.
const failureBinName = "FAILURE"

// UDFCommand implements execute_udf(): packedArgs is already msgpack
// encoded by the external value codec (spec.md §1); this layer only
// places the bytes on the wire and unwraps the FAILURE bin on error.
type UDFCommand struct {
	Policy   policy.WritePolicy
	Key      Key
	Package  string
	Function string
	Args     []byte

	Result types.Value
}

func (u *UDFCommand) Build(c *conn.Conn) {
	BuildUDF(c.Buffer, u.Policy, u.Key, u.Package, u.Function, u.Args)
	WriteTimeoutField(c.Buffer, u.Policy.Timeout)
}

func (u *UDFCommand) Timeout() policy.BasePolicy { return u.Policy.BasePolicy }

func (u *UDFCommand) ParseResult(c *conn.Conn) error {
	resp, err := ReadResponse(c)
	if err != nil {
		return err
	}
	if resp.ResultCode == aserrors.ResultUdfBadResponse {
		reason := "udf failure"
		if v, ok := resp.Bins[failureBinName]; ok {
			reason = v.String()
		}
		return aserrors.Wrap(aserrors.KindUdfBadResponse, reason, errors.New(reason))
	}
	if err := resp.Err(); err != nil {
		return err
	}
	for _, v := range resp.Bins {
		u.Result = v
		break
	}
	return nil
}

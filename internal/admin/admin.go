// Package admin implements the LOGIN authentication handshake (spec.md
// §4.12): a single admin-protocol frame (version=2, type=2) carrying a
// USER field and a bcrypt-hashed CREDENTIAL field, completed before a
// newly dialed connection is handed to any caller.
package admin

import (
	"encoding/binary"
	"fmt"

	"github.com/ployz-labs/kvstore-client/internal/buffer"
	"github.com/ployz-labs/kvstore-client/internal/conn"
)

const (
	msgVersion = 2
	msgType    = 2

	cmdLogin = 20

	fieldUser       = 0
	fieldCredential = 3

	headerSize      = 24
	headerRemaining = 16
	resultCodeOffset = 9

	resultOK               = 0
	resultSecurityNotEnabled = 54
)

// Login runs the handshake on a freshly dialed connection. It is a no-op
// from the caller's point of view on success; on failure the connection
// must be closed by the caller (it is left in an indeterminate wire state).
func Login(c *conn.Conn, user, password string) error {
	credential, err := hashCredential(password)
	if err != nil {
		return fmt.Errorf("admin: %w", err)
	}

	buf := c.Buffer
	buf.Reset()
	writeHeaderPlaceholder(buf, cmdLogin, 2)
	writeField(buf, fieldUser, []byte(user))
	writeField(buf, fieldCredential, []byte(credential))
	patchLength(buf)

	if err := c.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("admin: send login frame: %w", err)
	}

	header := make([]byte, headerSize)
	if err := c.ReadFull(header); err != nil {
		return fmt.Errorf("admin: read login response: %w", err)
	}

	result := header[resultCodeOffset]
	if result != resultOK && result != resultSecurityNotEnabled {
		return fmt.Errorf("admin: login rejected with result code %d", result)
	}

	lengthField := binary.BigEndian.Uint64(header[0:8]) & 0xFFFFFFFFFFFF
	remaining := int64(lengthField) - headerRemaining
	if remaining > 0 {
		discard := make([]byte, remaining)
		if err := c.ReadFull(discard); err != nil {
			return fmt.Errorf("admin: drain login response: %w", err)
		}
	}
	return nil
}

// writeHeaderPlaceholder writes the full 24-byte admin header with a
// zeroed length field — patched in once the frame's total size is known.
func writeHeaderPlaceholder(buf *buffer.Buffer, command, fieldCount uint8) {
	buf.WriteUint8(msgVersion)
	buf.WriteUint8(msgType)
	buf.WriteUint48(0)
	buf.WriteUint8(0) // reserved
	buf.WriteUint8(0) // result code position on a response, unused on request
	buf.WriteUint8(command)
	buf.WriteUint8(fieldCount)
	for i := 0; i < headerRemaining-4; i++ {
		buf.WriteUint8(0)
	}
}

func writeField(buf *buffer.Buffer, id uint8, payload []byte) {
	buf.WriteUint32(uint32(len(payload) + 1))
	buf.WriteUint8(id)
	buf.WriteBytes(payload)
}

func patchLength(buf *buffer.Buffer) {
	total := buf.Len()
	buf.SetOffset(2)
	buf.WriteUint48(uint64(total - 8))
}

// Package info implements the info sub-protocol (spec.md §4.11): a
// newline-separated command request over a version=2/type=1 frame,
// answered with newline-separated key\tvalue tuples.
package info

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ployz-labs/kvstore-client/internal/conn"
)

const (
	msgVersion = 2
	msgType    = 1

	// maxBufferSize guards against a corrupted length field asking for an
	// unreasonable allocation.
	maxBufferSize = 1024*1024 + 8
)

// Request sends commands (joined with '\n') to c and parses the response
// into a command -> value map, per spec.md's tuple grammar (split on the
// first '\t'; a command with no value maps to "").
func Request(c *conn.Conn, commands ...string) (map[string]string, error) {
	body := strings.Join(commands, "\n") + "\n"

	header := make([]byte, 8)
	header[0] = msgVersion
	header[1] = msgType
	putUint48(header[2:8], uint64(len(body)))

	if err := c.Write(header); err != nil {
		return nil, fmt.Errorf("info: send header: %w", err)
	}
	if err := c.Write([]byte(body)); err != nil {
		return nil, fmt.Errorf("info: send body: %w", err)
	}

	respHeader := make([]byte, 8)
	if err := c.ReadFull(respHeader); err != nil {
		return nil, fmt.Errorf("info: read response header: %w", err)
	}

	dataLen := binary.BigEndian.Uint64(append([]byte{0, 0}, respHeader[2:8]...))
	if dataLen > maxBufferSize {
		return nil, fmt.Errorf("info: response length %d exceeds max buffer size", dataLen)
	}

	payload := make([]byte, dataLen)
	if err := c.ReadFull(payload); err != nil {
		return nil, fmt.Errorf("info: read response body: %w", err)
	}

	return parseResponse(payload), nil
}

func parseResponse(payload []byte) map[string]string {
	response := strings.Trim(string(payload), "\n")
	result := make(map[string]string)
	if response == "" {
		return result
	}

	for _, tuple := range strings.Split(response, "\n") {
		key, val, found := strings.Cut(tuple, "\t")
		if !found {
			result[key] = ""
			continue
		}
		result[key] = val
	}
	return result
}

func putUint48(dst []byte, v uint64) {
	dst[0] = byte(v >> 40)
	dst[1] = byte(v >> 32)
	dst[2] = byte(v >> 24)
	dst[3] = byte(v >> 16)
	dst[4] = byte(v >> 8)
	dst[5] = byte(v)
}

/*Package comm provides transport plumbing for CNC controller backends:
a connection pool and line framing.

A controller backend has many outstanding requests at once, and
real-time verbs that must not wait behind a queued motion command, so
connections are pooled (comm2.go) rather than held one-per-device.
Reconnect and timeout policy belongs to each concrete firmware backend,
not here.

ChecksummedTerminator adds an opt-in line checksum for firmware dialects
that append one (some grbl-derived dialects and most Smoothieware/TinyG
variants append a CRC to streamed lines to guard against serial noise).
*/
package comm

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/snksoft/crc"
)

// ErrTerminatorNotFound is returned when a checksum suffix was expected on a
// received line but none was present.
var ErrTerminatorNotFound = errors.New("comm: checksum terminator not found")

// ChecksummedTerminator wraps a Terminator, appending a hex-encoded CRC16
// after the payload and before the write terminator, and verifying/
// stripping it on read. It satisfies the same io.ReadWriter shape as
// Terminator so the two are interchangeable to a backend's write path.
type ChecksummedTerminator struct {
	Terminator
}

// NewChecksummedTerminator returns a ChecksummedTerminator wrapping rw
// with the given Rx/Tx termination bytes.
func NewChecksummedTerminator(rw io.ReadWriter, rx, tx byte) ChecksummedTerminator {
	return ChecksummedTerminator{Terminator: NewTerminator(rw, rx, tx)}
}

// Write appends a hex CRC16/CCITT-FALSE of b before delegating to the
// embedded Terminator, which appends the wire terminator.
func (c ChecksummedTerminator) Write(b []byte) (int, error) {
	sum := crc.CalculateCRC(crc.CCITT, b)
	framed := append(append([]byte{}, b...), []byte(fmt.Sprintf("*%04X", sum))...)
	n, err := c.Terminator.Write(framed)
	if n > len(b) {
		n = len(b)
	}
	return n, err
}

// Read delegates to the embedded Terminator, then verifies and strips a
// trailing "*XXXX" checksum suffix. It returns ErrTerminatorNotFound if no
// such suffix is present, and a checksum mismatch error if the suffix does
// not match the CRC of the payload received.
func (c ChecksummedTerminator) Read(buf []byte) (int, error) {
	n, err := c.Terminator.Read(buf)
	if err != nil {
		return n, err
	}
	line := buf[:n]
	idx := bytes.LastIndexByte(line, '*')
	if idx == -1 || len(line)-idx != 5 {
		return n, ErrTerminatorNotFound
	}
	payload := line[:idx]
	want := fmt.Sprintf("*%04X", crc.CalculateCRC(crc.CCITT, payload))
	if string(line[idx:]) != want {
		return 0, fmt.Errorf("comm: checksum mismatch, got %s want %s", line[idx:], want)
	}
	return copy(buf, payload), nil
}

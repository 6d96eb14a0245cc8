package comm

import (
	"bufio"
	"bytes"
	"io"
	"time"
)

// CreationFunc opens one fresh connection to a device. A closure over
// whatever address/config a concrete backend needs.
type CreationFunc func() (io.ReadWriteCloser, error)

// Pool holds a bounded set of connections to one CNC controller, handing
// them out on Get and returning them on Put, lazily dialing a new one via
// maker when the pool is under capacity and none are idle. A single serial
// link only ever needs a Pool of size 1, but a backend that multiplexes a
// command channel and a status-polling channel over separate TCP sockets
// (some network-attached grbl/Smoothieware bridges do) wants more than
// one. Pool is concurrency-safe.
type Pool struct {
	maxSize int                     // capacity, == cap(conns)
	onLease int                     // connections currently checked out, <= maxSize
	conns   chan io.ReadWriteCloser // the idle connections available for Get
	sem     chan struct{}           // serializes pool-size-changing operations
	maker   func() (io.ReadWriteCloser, error)
}

// NewPool returns a Pool that dials new connections with maker, up to
// maxSize concurrently checked out.
func NewPool(maxSize int, maker CreationFunc) *Pool {
	p := &Pool{
		maxSize: maxSize,
		conns:   make(chan io.ReadWriteCloser, maxSize),
		sem:     make(chan struct{}, 1),
		maker:   maker,
	}
	p.sem <- struct{}{}
	return p
}

// Get checks out a connection, blocking until one is idle or the pool has
// room to dial a new one. The caller must not retain the returned value
// past a matching Put or Destroy; it must not be type-asserted to its
// concrete connection type and used outside this interface.
func (p *Pool) Get() (io.ReadWriter, error) {
	select {
	case rw := <-p.conns:
		p.onLease++
		return rw, nil
	case <-time.After(100 * time.Microsecond):
		if p.onLease == p.maxSize {
			// Every connection is checked out; block for one to come back.
			// A caller that never returns its lease will deadlock here,
			// which is a caller bug, not a Pool bug.
			rw := <-p.conns
			p.onLease++
			return rw, nil
		}
		select {
		case rw := <-p.conns:
			p.onLease++
			return rw, nil
		default:
			<-p.sem
			defer func() { p.sem <- struct{}{} }()
			rw, err := p.maker()
			if err == nil {
				p.onLease++
			}
			return rw, err
		}
	}
}

// Put returns a still-good connection to the pool for reuse.
func (p *Pool) Put(rw io.ReadWriter) {
	<-p.sem
	p.onLease--
	p.conns <- (rw).(io.ReadWriteCloser)
	p.sem <- struct{}{}
}

// Destroy closes and discards a connection that has gone bad (a write or
// read returned a comm_error), rather than returning it to the pool with
// Put.
func (p *Pool) Destroy(rw io.ReadWriter) {
	rwc := (rw).(io.ReadWriteCloser)
	rwc.Close()
	<-p.sem
	p.onLease--
	p.sem <- struct{}{}
}

// Terminator appends a write-termination byte and strips a
// read-termination byte, the line-framing every ASCII CNC dialect in this
// module's scope uses (most terminate on '\n', some grbl variants on
// '\r\n' read back as a bare '\n' once CRLF is normalized upstream).
type Terminator struct {
	Wterm byte
	Rterm byte
	w     io.Writer
	r     io.Reader
}

// Write appends Wterm to b and writes the result.
func (t Terminator) Write(b []byte) (int, error) {
	b = append(b, t.Wterm)
	return t.w.Write(b)
}

// Read scans for the first Rterm, strips it, and returns the line before
// it.
func (t Terminator) Read(buf []byte) (int, error) {
	b, err := bufio.NewReader(t.r).ReadBytes(t.Rterm)
	if err != nil {
		return 0, err
	}
	if bytes.HasSuffix(b, []byte{t.Rterm}) {
		idx := bytes.IndexByte(b, t.Rterm)
		b = b[:idx]
	}
	return copy(buf, b), nil
}

// NewTerminator wraps rw with the given read/write termination bytes.
func NewTerminator(rw io.ReadWriter, rx, tx byte) Terminator {
	return Terminator{w: rw, r: rw, Wterm: tx, Rterm: rx}
}

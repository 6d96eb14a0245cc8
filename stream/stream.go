/*Package stream provides one abstract pull-based sequence contract that
both a file-backed job (read ahead line by line) and a live push source
(a console typing lines one at a time) can satisfy. A consumer that only
ever calls Next never needs to know which kind of source it was handed.
*/
package stream

import (
	"bufio"
	"context"
	"io"
)

// Source yields successive items on demand. Next blocks until an item is
// available, the source is exhausted, ctx is done, or an error occurs. A
// Source must not be read from concurrently by more than one goroutine.
type Source interface {
	// Next returns the next item. ok is false, with a nil error, once the
	// source is exhausted; err is non-nil only on an unrecoverable read
	// failure or ctx cancellation.
	Next(ctx context.Context) (item interface{}, ok bool, err error)
}

// lineSource adapts an io.Reader to Source, yielding one string per line.
type lineSource struct {
	r *bufio.Reader
}

// FromLines returns a Source that pulls newline-delimited text from r,
// yielding each line (without its terminator) as a string. This is the
// shape a file-backed job source takes.
func FromLines(r io.Reader) Source {
	return &lineSource{r: bufio.NewReader(r)}
}

func (s *lineSource) Next(ctx context.Context) (interface{}, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	line, err := s.r.ReadString('\n')
	if err != nil && line == "" {
		if err == io.EOF {
			return nil, false, nil
		}
		return nil, false, err
	}
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line, true, nil
}

// chanSource adapts a channel to Source, for a push producer (e.g. a
// console typing commands one at a time) that does not know in advance how
// many items it will emit.
type chanSource struct {
	c <-chan interface{}
}

// FromChannel returns a Source that yields values received from c until c
// is closed.
func FromChannel(c <-chan interface{}) Source {
	return &chanSource{c: c}
}

func (s *chanSource) Next(ctx context.Context) (interface{}, bool, error) {
	select {
	case v, ok := <-s.c:
		if !ok {
			return nil, false, nil
		}
		return v, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

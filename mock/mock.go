/*Package mock implements a reference Backend purely in memory, so the
controller contract can be exercised and tested without a real serial
link. It simulates a device that acks, executes, and reports status
asynchronously, the way a network-attached motion controller does.

Device is deliberately small: it understands just enough of the
"G1 <AXIS><value>... F<feed>" line shape Core's Move helper emits to update
its simulated position and feed. The "$H" and "G28.2 <AXIS>..." lines
Core's Home helper emits carry no coordinates and leave the simulated
position unchanged. It is not a G-code interpreter.
*/
package mock

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"

	"github.com/nasa-jpl/cncctl/comm"
	"github.com/nasa-jpl/cncctl/config"
	"github.com/nasa-jpl/cncctl/controller"
	"github.com/nasa-jpl/cncctl/errs"
	"github.com/nasa-jpl/cncctl/lifecycle"
	"github.com/nasa-jpl/cncctl/state"
)

// Config is the mock backend's own opaque configuration, decoded from a
// free-form map via config.DecodeBackendArgs. Serial distinguishes a
// simulated serial link from a simulated TCP one, though neither is
// actually opened; this mock never touches real hardware.
type Config struct {
	// Serial, if non-nil, marks this as a simulated serial-attached
	// device; its Name/Baud are recorded but never opened.
	Serial *serial.Config `arg:"serial"`

	// Address, if Serial is nil, marks this as a simulated network
	// device reachable at this address.
	Address string `arg:"address"`

	// Checksum selects whether every simulated line round-trips through a
	// comm.ChecksummedTerminator (CRC16-framed) instead of a plain
	// comm.Terminator.
	Checksum bool `arg:"checksum"`

	// ExecDelay paces the simulated sent->ack->executing->executed
	// progression. Zero means "as fast as the scheduler allows", useful
	// for tests.
	ExecDelay time.Duration `arg:"exec_delay"`

	// ProbeInitialTripped, if true, makes Probe always fail with
	// errs.ProbeInitialState, simulating a probe already triggered before
	// the move starts.
	ProbeInitialTripped bool `arg:"probe_initial_tripped"`

	// ProbeTripFraction, in (0,1), makes Probe stop that fraction of the
	// way to target and report a trip. Zero or >=1 means the probe never
	// trips and the move completes with errs.ProbeEnd.
	ProbeTripFraction float64 `arg:"probe_trip_fraction"`
}

// New decodes args into a Config via config.DecodeBackendArgs and
// constructs a Device.
func New(args map[string]interface{}, axisCfg config.AxisConfig, opts ...controller.Option) (*Device, error) {
	var cfg Config
	if err := config.DecodeBackendArgs(args, &cfg); err != nil {
		return nil, errs.New(errs.Invalid, "mock: decoding args: %v", err)
	}
	return NewFromConfig(cfg, axisCfg, opts...), nil
}

// NewFromConfig constructs a Device directly from a typed Config.
func NewFromConfig(cfg Config, axisCfg config.AxisConfig, opts ...controller.Option) *Device {
	d := &Device{cfg: cfg}
	d.Core = controller.New(d, axisCfg, opts...)
	return d
}

// Device is a reference Backend implementation. It embeds *controller.Core
// so that calling code drives it entirely through the Controller Contract.
type Device struct {
	*controller.Core

	cfg Config

	mu   sync.Mutex
	open bool
	pool *comm.Pool

	// pipeline is closed once the most recently written line has finished
	// its simulated progression; the next line waits on it first.
	pipeline chan struct{}
}

var _ controller.Backend = (*Device)(nil)
var _ controller.Prober = (*Device)(nil)

// loopback is an in-memory io.ReadWriteCloser standing in for the serial
// or TCP socket a real backend would dial: WriteLine frames each line
// through it and reads the framing back, so this mock exercises the same
// comm.Terminator/comm.ChecksummedTerminator wire plumbing a real firmware
// dialect backend would, instead of bypassing it.
type loopback struct {
	bytes.Buffer
}

func (loopback) Close() error { return nil }

// Open marks the simulated transport open and dials the one simulated
// wire connection this device uses, via the same comm.Pool a concurrent
// backend checks connections out of.
func (d *Device) Open(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = true
	if d.pool == nil {
		d.pool = comm.NewPool(1, func() (io.ReadWriteCloser, error) {
			return &loopback{}, nil
		})
	}
	return nil
}

// frameRoundTrip checks a simulated connection out of the pool, writes
// line through a comm.Terminator (comm.ChecksummedTerminator if
// cfg.Checksum), reads the framing back off the same loopback, and
// returns the connection. It is how this mock exercises the wire-framing
// code a real ASCII-dialect backend would run every line through.
func (d *Device) frameRoundTrip(line string) (string, error) {
	conn, err := d.pool.Get()
	if err != nil {
		return "", err
	}

	var term interface {
		Write([]byte) (int, error)
		Read([]byte) (int, error)
	}
	if d.cfg.Checksum {
		term = comm.NewChecksummedTerminator(conn, '\n', '\n')
	} else {
		term = comm.NewTerminator(conn, '\n', '\n')
	}

	if _, err := term.Write([]byte(line)); err != nil {
		d.pool.Destroy(conn)
		return "", err
	}
	buf := make([]byte, len(line)+16)
	n, err := term.Read(buf)
	if err != nil {
		d.pool.Destroy(conn)
		return "", err
	}
	d.pool.Put(conn)
	echoed := string(buf[:n])
	d.Received(echoed)
	return echoed, nil
}

// Handshake only checks that Open was called: the mock device needs no
// wake sequence.
func (d *Device) Handshake(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return errs.New(errs.CommError, "mock: handshake before open")
	}
	return nil
}

// WriteLine simulates the device's asynchronous command pipeline: it
// frames line over the simulated wire (exercising the real
// comm.Terminator/comm.ChecksummedTerminator round trip), then acks, then
// executes, then applies line's effect to the simulated position and
// marks the instruction executed. Lines progress one at a time in the
// order they were written. Each step respects ctx cancellation.
func (d *Device) WriteLine(ctx context.Context, id lifecycle.ID, line string) error {
	if _, err := d.frameRoundTrip(line); err != nil {
		return errs.New(errs.ParseError, "mock: wire framing: %v", err)
	}
	d.mu.Lock()
	prev := d.pipeline
	done := make(chan struct{})
	d.pipeline = done
	d.mu.Unlock()
	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		if err := d.sleepOrDone(ctx); err != nil {
			d.Fail(id, errs.New(errs.Cancelled, "mock: %v", err))
			return
		}
		d.Ack(id)

		if err := d.sleepOrDone(ctx); err != nil {
			d.Fail(id, errs.New(errs.Cancelled, "mock: %v", err))
			return
		}
		d.Executing(id)

		if err := d.sleepOrDone(ctx); err != nil {
			d.Fail(id, errs.New(errs.Cancelled, "mock: %v", err))
			return
		}
		d.applyLine(line)
		d.Executed(id)
	}()
	return nil
}

func (d *Device) sleepOrDone(ctx context.Context) error {
	if d.cfg.ExecDelay <= 0 {
		return nil
	}
	select {
	case <-time.After(d.cfg.ExecDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// applyLine applies every "<AXIS><value>" field of line to the simulated
// machine position and an "F<value>" field to the feed. Fields without a
// numeric value (such as the axis names in a homing line) are skipped.
func (d *Device) applyLine(line string) {
	fields := strings.Fields(line)
	d.Mutate(func(v *state.Vector) {
		for _, f := range fields {
			if len(f) < 2 {
				continue
			}
			label := strings.ToLower(f[:1])
			val, err := strconv.ParseFloat(f[1:], 64)
			if err != nil {
				continue
			}
			if label == "f" {
				v.Feed = val
				continue
			}
			for i, l := range v.AxisLabels {
				if l == label {
					v.Mpos[i] = val
				}
			}
		}
	})
}

// SoftReset, HardReset, and ClearAlarm have nothing to undo in the
// simulated device beyond what Core itself already tracks.
func (d *Device) SoftReset(ctx context.Context) error  { return nil }
func (d *Device) HardReset(ctx context.Context) error  { return nil }
func (d *Device) ClearAlarm(ctx context.Context) error { return nil }

// FeedHold, FeedResume, and Stop have no simulated device-side effect;
// Core tracks held/moving itself.
func (d *Device) FeedHold(ctx context.Context) error   { return nil }
func (d *Device) FeedResume(ctx context.Context) error { return nil }
func (d *Device) Stop(ctx context.Context) error       { return nil }

// RealTimeJog applies inc to axis immediately, bypassing the queue.
func (d *Device) RealTimeJog(ctx context.Context, axis string, inc float64) error {
	label := strings.ToLower(axis)
	return d.Mutate(func(v *state.Vector) {
		for i, l := range v.AxisLabels {
			if l == label {
				v.Mpos[i] += inc
			}
		}
	})
}

// Probe simulates a probing move: ProbeInitialTripped fails immediately;
// otherwise the simulated probe trips at ProbeTripFraction of the distance
// to target (or never, reporting errs.ProbeEnd).
func (d *Device) Probe(ctx context.Context, target []*float64, feed *float64) ([]float64, error) {
	if d.cfg.ProbeInitialTripped {
		return nil, errs.New(errs.ProbeInitialState, "probe: already tripped on entry")
	}

	status := d.GetStatus()
	result := append([]float64(nil), status.Mpos...)
	tripped := d.cfg.ProbeTripFraction > 0 && d.cfg.ProbeTripFraction < 1
	for i, t := range target {
		if t == nil || i >= len(result) {
			continue
		}
		if tripped {
			result[i] = status.Mpos[i] + (*t-status.Mpos[i])*d.cfg.ProbeTripFraction
		} else {
			result[i] = *t
		}
	}

	if err := d.Mutate(func(v *state.Vector) { v.Mpos = append([]float64(nil), result...) }); err != nil {
		return nil, err
	}
	if !tripped {
		return result, errs.New(errs.ProbeEnd, "probe: reached target without tripping")
	}
	return result, nil
}

//go:build !nomidi

package input

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// ExcludedPatterns are system ports never offered as inputs.
var ExcludedPatterns = []string{"Midi Through", "Through Port", "Dummy"}

const virtualPrefix = "virtual:"

// inputDriver is the part of a gomidi driver RtMIDI uses after setup.
type inputDriver interface {
	Ins() ([]drivers.In, error)
	Close() error
}

// RtMIDI is MIDIAccess backed by the rtmidi driver. A background scan
// turns device hot-plug into state-change notifications.
//
// The driver delivers messages on its own thread and joins that thread
// when a port closes, so the message callback never takes mu and ports are
// stopped and closed only after mu is released.
type RtMIDI struct {
	log *slog.Logger
	drv inputDriver

	onMsg atomic.Pointer[func(raw []byte)]

	mu       sync.Mutex
	virtual  drivers.In
	vname    string
	in       drivers.In
	stopFn   func()
	onState  func(Device, bool)
	present  map[string]Device
	done     chan struct{}
	closed   bool
	scanOnce sync.Once
	interval time.Duration
}

// NewRtMIDI opens the rtmidi driver. If virtualName is not empty a virtual
// input port with that name is created and offered as a device, so other
// software can play into the engine.
func NewRtMIDI(logger *slog.Logger, rescan time.Duration, virtualName string) (*RtMIDI, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("%w: rtmididrv: %v", ErrUnsupported, err)
	}
	var virtual drivers.In
	if virtualName != "" {
		virtual, err = drv.OpenVirtualIn(virtualName)
		if err != nil {
			drv.Close()
			return nil, fmt.Errorf("create virtual port %q: %w", virtualName, err)
		}
	}
	return newRtMIDI(drv, virtual, virtualName, logger, rescan), nil
}

func newRtMIDI(drv inputDriver, virtual drivers.In, vname string, logger *slog.Logger, rescan time.Duration) *RtMIDI {
	if logger == nil {
		logger = slog.Default()
	}
	r := &RtMIDI{
		log:      logger,
		drv:      drv,
		present:  make(map[string]Device),
		done:     make(chan struct{}),
		interval: rescan,
	}
	if virtual != nil {
		r.virtual = virtual
		r.vname = vname
	}
	if devs, err := r.Devices(); err == nil {
		for _, d := range devs {
			r.present[d.ID] = d
		}
	}
	return r
}

func (r *RtMIDI) Devices() ([]Device, error) {
	r.mu.Lock()
	hasVirtual, vname := r.virtual != nil, r.vname
	r.mu.Unlock()

	ins, err := r.drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("list inputs: %w", err)
	}
	var out []Device
	if hasVirtual {
		out = append(out, Device{ID: virtualPrefix + vname, Name: vname, Virtual: true})
	}
	for _, in := range ins {
		name := in.String()
		if excluded(name) || (hasVirtual && name == vname) {
			r.log.Debug("midi: input excluded", slog.String("device", name))
			continue
		}
		out = append(out, Device{ID: name, Name: name})
	}
	return out, nil
}

func excluded(name string) bool {
	for _, pat := range ExcludedPatterns {
		if containsFold(name, pat) {
			return true
		}
	}
	return false
}

// port resolves id. Callers hold mu.
func (r *RtMIDI) port(id string) (drivers.In, error) {
	if r.virtual != nil && id == virtualPrefix+r.vname {
		return r.virtual, nil
	}
	ins, err := r.drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("list inputs: %w", err)
	}
	for _, in := range ins {
		if in.String() == id {
			return in, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
}

func (r *RtMIDI) Connect(id string) error {
	if err := r.Disconnect(); err != nil {
		r.log.Debug("midi: closing previous input", slog.Any("error", err))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrUnsupported
	}
	in, err := r.port(id)
	if err != nil {
		return err
	}
	if !in.IsOpen() {
		if err := in.Open(); err != nil {
			return fmt.Errorf("open %q: %w", id, err)
		}
	}
	stop, err := midi.ListenTo(in, func(msg midi.Message, _ int32) {
		if h := r.onMsg.Load(); h != nil {
			(*h)([]byte(msg))
		}
	}, midi.HandleError(func(listenErr error) {
		r.log.Warn("midi: listener error", slog.String("device", id), slog.Any("error", listenErr))
	}))
	if err != nil {
		if in != r.virtual {
			_ = in.Close()
		}
		return fmt.Errorf("listen %q: %w", id, err)
	}
	r.in = in
	r.stopFn = stop
	r.scanOnce.Do(func() { go r.watch() })
	return nil
}

func (r *RtMIDI) Disconnect() error {
	r.mu.Lock()
	stop, in := r.detachLocked()
	r.mu.Unlock()
	return release(stop, in)
}

// detachLocked forgets the connected port and returns what release must
// shut down once mu is no longer held.
func (r *RtMIDI) detachLocked() (func(), drivers.In) {
	stop, in := r.stopFn, r.in
	if in == r.virtual {
		in = nil
	}
	r.stopFn = nil
	r.in = nil
	return stop, in
}

func release(stop func(), in drivers.In) error {
	if stop != nil {
		stop()
	}
	if in != nil {
		return in.Close()
	}
	return nil
}

func (r *RtMIDI) OnMessage(h func(raw []byte)) {
	if h == nil {
		r.onMsg.Store(nil)
		return
	}
	r.onMsg.Store(&h)
}

func (r *RtMIDI) OnStateChange(h func(Device, bool)) {
	r.mu.Lock()
	r.onState = h
	r.mu.Unlock()
}

// watch rescans the port list and reports devices that appeared or
// disappeared since the last scan.
func (r *RtMIDI) watch() {
	if r.interval <= 0 {
		return
	}
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-t.C:
			r.rescan()
		}
	}
}

func (r *RtMIDI) rescan() {
	devs, err := r.Devices()
	if err != nil {
		r.log.Error("midi: rescan failed", slog.Any("error", err))
		return
	}
	now := make(map[string]Device, len(devs))
	for _, d := range devs {
		now[d.ID] = d
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	var changes []func()
	h := r.onState
	for id, d := range r.present {
		if _, ok := now[id]; !ok {
			changes = append(changes, func() { h(d, false) })
		}
	}
	for id, d := range now {
		if _, ok := r.present[id]; !ok {
			changes = append(changes, func() { h(d, true) })
		}
	}
	r.present = now
	r.mu.Unlock()

	if h == nil {
		return
	}
	for _, c := range changes {
		c()
	}
}

// Close stops the scanner and releases the driver.
func (r *RtMIDI) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.done)
	stop, in := r.detachLocked()
	virtual := r.virtual
	r.virtual = nil
	r.mu.Unlock()

	err := release(stop, in)
	if virtual != nil {
		_ = virtual.Close()
	}
	r.drv.Close()
	return err
}

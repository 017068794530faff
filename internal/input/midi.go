package input

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/icco/chordcoach/internal/clock"
)

var (
	ErrUnsupported    = errors.New("MIDI is not supported on this host")
	ErrNoDevices      = errors.New("no MIDI input devices")
	ErrDeviceNotFound = errors.New("MIDI device not found")
)

// Device is a MIDI input port.
type Device struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Virtual bool   `json:"virtual,omitempty"`
}

// MIDIAccess is the host's MIDI input capability. Handlers may be invoked
// from any goroutine; passing nil removes a handler.
type MIDIAccess interface {
	Devices() ([]Device, error)
	Connect(id string) error
	Disconnect() error
	OnMessage(h func(raw []byte))
	OnStateChange(h func(d Device, present bool))
}

// DeviceStatus reports the connection state of the adapter's device.
type DeviceStatus struct {
	Device    Device
	Connected bool
	Err       error
}

// MIDIAdapter feeds decoded messages from one MIDI input device into a
// Sink. Messages are handed to the loop via post, so the sink only ever
// runs on the loop goroutine.
type MIDIAdapter struct {
	access MIDIAccess
	device Device
	post   clock.PostFunc
	log    *slog.Logger

	// OnStatus, if set, is called on the loop when the device disconnects
	// or reconnects.
	OnStatus func(DeviceStatus)

	sink      Sink
	gen       uint64
	connected bool
}

func NewMIDIAdapter(access MIDIAccess, device Device, post clock.PostFunc, logger *slog.Logger) *MIDIAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &MIDIAdapter{access: access, device: device, post: post, log: logger}
}

func (a *MIDIAdapter) Name() string { return "midi:" + a.device.Name }

// Device returns the device this adapter reads from.
func (a *MIDIAdapter) Device() Device { return a.device }

// Connected reports whether the device is currently open.
func (a *MIDIAdapter) Connected() bool { return a.connected }

func (a *MIDIAdapter) Start(sink Sink) error {
	a.gen++
	gen := a.gen
	a.sink = sink

	a.access.OnMessage(func(raw []byte) {
		ev, ok := Decode(raw)
		if !ok {
			return
		}
		a.post(func() {
			if a.gen != gen || !a.connected || a.sink == nil {
				return
			}
			Deliver(a.sink, ev)
		})
	})
	a.access.OnStateChange(func(d Device, present bool) {
		a.post(func() {
			if a.gen != gen {
				return
			}
			a.deviceChanged(d, present)
		})
	})

	if err := a.access.Connect(a.device.ID); err != nil {
		a.detach()
		return fmt.Errorf("connect %q: %w", a.device.Name, err)
	}
	a.connected = true
	a.log.Info("midi: connected", slog.String("device", a.device.Name))
	return nil
}

func (a *MIDIAdapter) deviceChanged(d Device, present bool) {
	if d.ID != a.device.ID {
		return
	}
	switch {
	case !present && a.connected:
		a.log.Warn("midi: device disappeared", slog.String("device", a.device.Name))
		a.connected = false
		if err := a.access.Disconnect(); err != nil {
			a.log.Debug("midi: disconnect after unplug", slog.Any("error", err))
		}
		a.status(DeviceStatus{Device: a.device})
	case present && !a.connected:
		err := a.access.Connect(a.device.ID)
		if err != nil {
			a.log.Error("midi: reconnect failed", slog.String("device", a.device.Name), slog.Any("error", err))
		} else {
			a.connected = true
			a.log.Info("midi: reconnected", slog.String("device", a.device.Name))
		}
		a.status(DeviceStatus{Device: a.device, Connected: a.connected, Err: err})
	}
}

func (a *MIDIAdapter) status(s DeviceStatus) {
	if a.OnStatus != nil {
		a.OnStatus(s)
	}
}

func (a *MIDIAdapter) Stop() error {
	a.gen++
	a.detach()
	if !a.connected {
		return nil
	}
	a.connected = false
	if err := a.access.Disconnect(); err != nil {
		return fmt.Errorf("disconnect %q: %w", a.device.Name, err)
	}
	a.log.Info("midi: disconnected", slog.String("device", a.device.Name))
	return nil
}

func (a *MIDIAdapter) detach() {
	a.sink = nil
	a.access.OnMessage(nil)
	a.access.OnStateChange(nil)
}

// PreferredPatterns are device name fragments picked first by PickDevice.
var PreferredPatterns = []string{"Launchkey", "Novation", "Keystation", "Piano"}

// PickDevice chooses an input: a device whose name matches a preferred
// pattern, otherwise the first physical device, otherwise the first device.
func PickDevice(devices []Device) (Device, bool) {
	if len(devices) == 0 {
		return Device{}, false
	}
	for _, pat := range PreferredPatterns {
		for _, d := range devices {
			if containsFold(d.Name, pat) {
				return d, true
			}
		}
	}
	for _, d := range devices {
		if !d.Virtual {
			return d, true
		}
	}
	return devices[0], true
}

// FindDevice looks a device up by ID or, failing that, by name.
func FindDevice(devices []Device, idOrName string) (Device, bool) {
	for _, d := range devices {
		if d.ID == idOrName {
			return d, true
		}
	}
	for _, d := range devices {
		if containsFold(d.Name, idOrName) {
			return d, true
		}
	}
	return Device{}, false
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

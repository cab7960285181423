// Package capability tracks the local camera, microphone and screen-share controls.
package capability

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"liveclass-backend/internal/domain"
	"liveclass-backend/internal/media"
	"liveclass-backend/pkg/errors"
	"liveclass-backend/pkg/logger"
	"liveclass-backend/pkg/metrics"
)

// State of one capability
type State int

const (
	Inactive State = iota
	PendingEnable
	Active
	PendingDisable
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case PendingEnable:
		return "pending-enable"
	case Active:
		return "active"
	case PendingDisable:
		return "pending-disable"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Pending reports whether a request is in flight
func (s State) Pending() bool {
	return s == PendingEnable || s == PendingDisable
}

// Device is the part of the media SDK that starts and stops local sources
type Device interface {
	EnableWebcam(ctx context.Context) error
	DisableWebcam(ctx context.Context) error
	UnmuteMic(ctx context.Context) error
	MuteMic(ctx context.Context) error
	EnableScreenShare(ctx context.Context) error
	DisableScreenShare(ctx context.Context) error
}

// Machine holds the state of every capability. Toggles move a capability into
// a pending state; only Confirm (driven by the SDK stream callbacks) completes it.
type Machine struct {
	mu      sync.Mutex
	states  map[domain.Capability]State
	device  Device
	metrics *metrics.Metrics
}

// NewMachine creates a machine with every capability Inactive.
// device may be nil until the SDK client exists.
func NewMachine(device Device, m *metrics.Metrics) *Machine {
	states := make(map[domain.Capability]State, len(domain.Capabilities))
	for _, c := range domain.Capabilities {
		states[c] = Inactive
	}
	return &Machine{
		states:  states,
		device:  device,
		metrics: m,
	}
}

// SetDevice binds the SDK client once it has connected
func (m *Machine) SetDevice(device Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.device = device
}

// Toggle requests the opposite of the current settled state. While a request
// is pending it does nothing and returns the pending state.
func (m *Machine) Toggle(ctx context.Context, c domain.Capability) (State, error) {
	m.mu.Lock()
	current := m.states[c]
	if current.Pending() {
		m.mu.Unlock()
		m.metrics.RecordCapabilityToggle(string(c), "ignored")
		logger.Debug("Toggle ignored while request is pending",
			zap.String("capability", string(c)),
			zap.Stringer("state", current))
		return current, nil
	}
	if m.device == nil {
		m.mu.Unlock()
		return current, errors.InvalidStateError("media client is not connected")
	}

	enable := current == Inactive
	next := PendingDisable
	if enable {
		next = PendingEnable
	}
	m.states[c] = next
	device := m.device
	m.mu.Unlock()

	m.metrics.RecordCapabilityToggle(string(c), "requested")

	if err := request(ctx, device, c, enable); err != nil {
		m.mu.Lock()
		if m.states[c] == next {
			m.states[c] = current
		}
		m.mu.Unlock()

		m.metrics.RecordCapabilityToggle(string(c), "failed")
		message := media.DeviceMessage(c)
		if !enable {
			message = fmt.Sprintf("cannot stop %s", c)
		}
		return current, errors.DeviceError(message, err)
	}

	return next, nil
}

func request(ctx context.Context, device Device, c domain.Capability, enable bool) error {
	switch c {
	case domain.CapabilityCamera:
		if enable {
			return device.EnableWebcam(ctx)
		}
		return device.DisableWebcam(ctx)
	case domain.CapabilityMicrophone:
		if enable {
			return device.UnmuteMic(ctx)
		}
		return device.MuteMic(ctx)
	case domain.CapabilityScreenShare:
		if enable {
			return device.EnableScreenShare(ctx)
		}
		return device.DisableScreenShare(ctx)
	default:
		return fmt.Errorf("unknown capability %q", c)
	}
}

// Confirm settles c from an SDK stream callback. The SDK is authoritative, so
// the settled state is applied whatever the current state is.
func (m *Machine) Confirm(c domain.Capability, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if enabled {
		m.states[c] = Active
		return
	}
	m.states[c] = Inactive
}

// DeviceFailed handles an SDK error code. For device codes the blocked
// capability is reset to Inactive and the user-facing error is returned.
func (m *Machine) DeviceFailed(code int, message string) (*errors.AppError, bool) {
	c, ok := media.DeviceCapability(code)
	if !ok {
		return nil, false
	}

	m.mu.Lock()
	m.states[c] = Inactive
	m.mu.Unlock()

	m.metrics.RecordDeviceError(string(c))
	logger.Warn("Device error from media SDK",
		zap.String("capability", string(c)),
		zap.Int("code", code),
		zap.String("message", message))

	return errors.DeviceError(media.DeviceMessage(c), fmt.Errorf("sdk error %d: %s", code, message)), true
}

// Reset forces every capability to Inactive without contacting the SDK
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for c := range m.states {
		m.states[c] = Inactive
	}
}

func (m *Machine) State(c domain.Capability) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[c]
}

// Snapshot copies the state of every capability
func (m *Machine) Snapshot() map[domain.Capability]State {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[domain.Capability]State, len(m.states))
	for c, s := range m.states {
		out[c] = s
	}
	return out
}

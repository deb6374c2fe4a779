package engine

import (
	"fmt"
	"net"

	"github.com/krisarmstrong/netsim-go/pkg/errors"
	"github.com/krisarmstrong/netsim-go/pkg/logging"
)

// Device is the uniform contract every simulated device implements. Poll is
// non-blocking: the device drains its inboxes, updates internal state, queues
// frames into its outboxes and returns. Long protocol delays are deadline
// ticks checked against the clock, never suspension.
type Device interface {
	ID() int
	Name() string
	Kind() string
	Ports() []*Port

	// Attach is called exactly once at registration
	Attach(id int, clk *Clock)

	// Poll performs one tick of work
	Poll()

	// LinkUp and LinkDown notify the device of cable changes on a port
	LinkUp(port int)
	LinkDown(port int)

	// Command executes one driver console line; asynchronous results are
	// appended to the device console later
	Command(line string)

	// ConsoleTake drains accumulated console output
	ConsoleTake() []string
}

// IPConfigurable is implemented by devices with configurable IPv4 interfaces
type IPConfigurable interface {
	ConfigureIP(port int, ip net.IP, mask net.IPMask, gateway net.IP) error
}

// TraceWriter receives every frame the fabric delivers
type TraceWriter interface {
	WriteFrame(tick uint64, frame []byte) error
}

// Engine owns all simulation state: the device registry, the cable fabric and
// the clock. The driver holds an exclusive handle; snapshots may be read
// between ticks but never mutated during one.
type Engine struct {
	clock   *Clock
	devices map[int]Device
	order   []int // device ids, ascending poll order
	cables  []Cable
	nextID  int

	macSeq uint32
	trace  TraceWriter
	debug  *logging.DebugConfig

	pending []queuedCommand

	framesDelivered uint64
	serial          int
	faults          []string
}

type queuedCommand struct {
	device int
	line   string
}

// New creates an empty engine
func New(debug *logging.DebugConfig) *Engine {
	if debug == nil {
		debug = logging.NewDebugConfig(0)
	}
	return &Engine{
		clock:   NewClock(DefaultTicksPerSecond),
		devices: make(map[int]Device),
		debug:   debug,
	}
}

// Clock returns the engine clock
func (e *Engine) Clock() *Clock {
	return e.clock
}

// Debug returns the per-protocol debug configuration
func (e *Engine) Debug() *logging.DebugConfig {
	return e.debug
}

// SetTrace installs a frame trace writer (nil disables)
func (e *Engine) SetTrace(w TraceWriter) {
	e.trace = w
}

// NextMAC hands out a locally administered MAC; allocation is sequential so
// identical topologies get identical addressing
func (e *Engine) NextMAC() net.HardwareAddr {
	e.macSeq++
	return net.HardwareAddr{
		0x02, 0x4e, 0x53,
		byte(e.macSeq >> 16), byte(e.macSeq >> 8), byte(e.macSeq),
	}
}

// NextSerial numbers a frame for tracing
func (e *Engine) NextSerial() int {
	e.serial++
	return e.serial
}

// AddDevice registers a device and assigns its id
func (e *Engine) AddDevice(d Device) int {
	id := e.nextID
	e.nextID++
	d.Attach(id, e.clock)
	e.devices[id] = d
	e.order = append(e.order, id)
	return id
}

// RemoveDevice detaches all cables touching the device, then drops it. No
// dangling peer references persist.
func (e *Engine) RemoveDevice(id int) error {
	d, ok := e.devices[id]
	if !ok {
		return errors.Configf("remove_device", "no device %d", id)
	}
	for i, p := range d.Ports() {
		if p.Connected() {
			_ = e.Disconnect(id, i)
		}
	}
	delete(e.devices, id)
	for i, v := range e.order {
		if v == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	return nil
}

// Device returns a registered device by id
func (e *Engine) Device(id int) (Device, bool) {
	d, ok := e.devices[id]
	return d, ok
}

// DeviceByName returns a registered device by name
func (e *Engine) DeviceByName(name string) (Device, bool) {
	for _, id := range e.order {
		if e.devices[id].Name() == name {
			return e.devices[id], true
		}
	}
	return nil, false
}

// Devices returns all devices in poll order
func (e *Engine) Devices() []Device {
	out := make([]Device, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.devices[id])
	}
	return out
}

// ConfigureIP assigns an address to a device port, surfacing ConfigError on
// invalid input with engine state unchanged
func (e *Engine) ConfigureIP(id, port int, ip net.IP, mask net.IPMask, gateway net.IP) error {
	d, ok := e.devices[id]
	if !ok {
		return errors.Configf("configure_ip", "no device %d", id)
	}
	c, ok := d.(IPConfigurable)
	if !ok {
		return errors.Configf("configure_ip", "%s does not take IP configuration", d.Kind())
	}
	return c.ConfigureIP(port, ip, mask, gateway)
}

// EnqueueCommand queues a console line for execution at the device's next poll
func (e *Engine) EnqueueCommand(id int, line string) error {
	if _, ok := e.devices[id]; !ok {
		return errors.Configf("enqueue_command", "no device %d", id)
	}
	e.pending = append(e.pending, queuedCommand{device: id, line: line})
	return nil
}

// Tick advances the simulation one step: deliver queued frames across every
// cable, then poll each device in ascending id order
func (e *Engine) Tick() {
	e.clock.advance()
	e.clampInconsistentCables()
	e.deliver()

	commands := e.pending
	e.pending = nil
	for _, id := range e.order {
		d := e.devices[id]
		for _, qc := range commands {
			if qc.device == id {
				d.Command(qc.line)
			}
		}
		d.Poll()
	}
}

// Run advances the simulation n ticks
func (e *Engine) Run(n int) {
	for i := 0; i < n; i++ {
		e.Tick()
	}
}

// FramesDelivered reports the fabric's lifetime delivery count
func (e *Engine) FramesDelivered() uint64 {
	return e.framesDelivered
}

// Faults returns recorded internal inconsistencies
func (e *Engine) Faults() []string {
	return append([]string(nil), e.faults...)
}

// clampInconsistentCables enforces peer symmetry. An asymmetric pairing is an
// internal fault: the cable is removed and the fault recorded, and the tick
// continues.
func (e *Engine) clampInconsistentCables() {
	for i := 0; i < len(e.cables); i++ {
		c := e.cables[i]
		pa, errA := e.port(c.A.Device, c.A.Port)
		pb, errB := e.port(c.B.Device, c.B.Port)
		bad := errA != nil || errB != nil
		if !bad {
			aDev, aPort := pa.Peer()
			bDev, bPort := pb.Peer()
			bad = aDev != c.B.Device || aPort != c.B.Port || bDev != c.A.Device || bPort != c.A.Port
		}
		if bad {
			e.faults = append(e.faults,
				fmt.Sprintf("tick %d: asymmetric cable %d:%d<->%d:%d removed",
					e.clock.Now(), c.A.Device, c.A.Port, c.B.Device, c.B.Port))
			e.severCable(c.A, c.B)
			i--
		}
	}
}

func (e *Engine) port(dev, portIdx int) (*Port, error) {
	d, ok := e.devices[dev]
	if !ok {
		return nil, errors.Configf("connect", "no device %d", dev)
	}
	ports := d.Ports()
	if portIdx < 0 || portIdx >= len(ports) {
		return nil, errors.Configf("connect", "device %d has no port %d", dev, portIdx)
	}
	return ports[portIdx], nil
}

// Package vport keeps the table of datapath ports and turns device
// unregistration into deferred port-deleted notifications for the management
// plane.
package vport

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mongiaK/openvswitch/internal/core"
	"github.com/mongiaK/openvswitch/internal/eventbus"
	"github.com/mongiaK/openvswitch/internal/log"
	"github.com/mongiaK/openvswitch/internal/metrics"
)

// Type is the kind of device behind a vport.
type Type uint8

const (
	TypeNetdev Type = iota + 1
	TypeInternal
	TypeTunnel
)

func (t Type) String() string {
	switch t {
	case TypeNetdev:
		return "netdev"
	case TypeInternal:
		return "internal"
	case TypeTunnel:
		return "tunnel"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Vport is one port of a datapath.
type Vport struct {
	PortNo   uint32
	Name     string
	Type     Type
	Datapath string
}

// DeviceEvent is a state change of the device behind a vport.
type DeviceEvent uint8

const (
	DeviceRegister DeviceEvent = iota + 1
	DeviceUnregister
	DeviceUp
	DeviceDown
)

func (e DeviceEvent) String() string {
	switch e {
	case DeviceRegister:
		return "register"
	case DeviceUnregister:
		return "unregister"
	case DeviceUp:
		return "up"
	case DeviceDown:
		return "down"
	default:
		return fmt.Sprintf("event(%d)", uint8(e))
	}
}

const topicNotify = "vport.notify"

// Table is the set of vports across datapaths. Detached ports stay in the
// table until the deferred notification work has reported them.
type Table struct {
	mu       sync.Mutex
	byNo     map[uint32]*entry
	byName   map[string]*entry
	bus      eventbus.EventBus
	notifier Notifier
}

type entry struct {
	Vport
	detached bool
}

// NewTable returns an empty table that delivers notifications to n through
// bus.
func NewTable(bus eventbus.EventBus, n Notifier) (*Table, error) {
	t := &Table{
		byNo:     make(map[uint32]*entry),
		byName:   make(map[string]*entry),
		bus:      bus,
		notifier: n,
	}
	if err := bus.Subscribe(topicNotify, t.handleNotifyWork); err != nil {
		return nil, fmt.Errorf("vport: subscribe: %w", err)
	}
	return t, nil
}

// Add attaches v.
func (t *Table) Add(v Vport) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.byNo[v.PortNo]; ok {
		return fmt.Errorf("vport: port %d: %w", v.PortNo, core.ErrPortAlreadyExists)
	}
	if _, ok := t.byName[v.Name]; ok {
		return fmt.Errorf("vport: device %q: %w", v.Name, core.ErrPortAlreadyExists)
	}
	e := &entry{Vport: v}
	t.byNo[v.PortNo] = e
	t.byName[v.Name] = e
	metrics.VportsActive.Inc()
	return nil
}

// Get returns the attached port with number no.
func (t *Table) Get(no uint32) (Vport, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.byNo[no]
	if !ok || e.detached {
		return Vport{}, fmt.Errorf("vport: port %d: %w", no, core.ErrPortNotFound)
	}
	return e.Vport, nil
}

// Lookup returns the attached port backed by device name.
func (t *Table) Lookup(name string) (Vport, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.byName[name]
	if !ok || e.detached {
		return Vport{}, fmt.Errorf("vport: device %q: %w", name, core.ErrPortNotFound)
	}
	return e.Vport, nil
}

// List returns the attached ports ordered by port number.
func (t *Table) List() []Vport {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Vport, 0, len(t.byNo))
	for _, e := range t.byNo {
		if !e.detached {
			out = append(out, e.Vport)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PortNo < out[j].PortNo })
	return out
}

// Remove deletes port no without notifying; the caller that asked for the
// deletion reports it.
func (t *Table) Remove(no uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.byNo[no]
	if !ok {
		return fmt.Errorf("vport: port %d: %w", no, core.ErrPortNotFound)
	}
	t.delete(e)
	return nil
}

func (t *Table) delete(e *entry) {
	delete(t.byNo, e.PortNo)
	if t.byName[e.Name] == e {
		delete(t.byName, e.Name)
	}
	if !e.detached {
		metrics.VportsActive.Dec()
	}
}

// DeviceEvent handles a state change of device name. Devices that back no
// vport, and internal devices, are ignored. On unregister the port is detached
// at once and its deletion is reported later by the notification work.
func (t *Table) DeviceEvent(name string, ev DeviceEvent) error {
	t.mu.Lock()
	e, ok := t.byName[name]
	if !ok || e.Type == TypeInternal || ev != DeviceUnregister {
		t.mu.Unlock()
		return nil
	}
	if !e.detached {
		e.detached = true
		metrics.VportsActive.Dec()
	}
	dp := e.Datapath
	t.mu.Unlock()

	log.GetLogger().WithField("port", e.PortNo).WithField("device", name).Debug("vport detached")

	if err := t.bus.Publish(&eventbus.Event{Topic: topicNotify, Key: dp}); err != nil {
		return fmt.Errorf("vport: schedule notification for %q: %w", name, err)
	}
	return nil
}

// handleNotifyWork destroys every detached port and reports each deletion.
// Several unregister events may collapse into one run.
func (t *Table) handleNotifyWork(*eventbus.Event) error {
	t.mu.Lock()
	var gone []Vport
	for _, e := range t.byNo {
		if e.detached && e.Type != TypeInternal {
			gone = append(gone, e.Vport)
			t.delete(e)
		}
	}
	t.mu.Unlock()

	sort.Slice(gone, func(i, j int) bool { return gone[i].PortNo < gone[j].PortNo })

	var firstErr error
	for _, v := range gone {
		n := Notification{Cmd: CmdDel, Vport: v}
		if err := t.notifier.Notify(n); err != nil {
			log.GetLogger().WithError(err).WithField("port", v.PortNo).Error("vport notification failed")
			metrics.VportNotificationsTotal.WithLabelValues("error").Inc()
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		metrics.VportNotificationsTotal.WithLabelValues(n.Cmd.String()).Inc()
	}
	return firstErr
}

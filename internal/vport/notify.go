package vport

import (
	"fmt"

	"github.com/mongiaK/openvswitch/internal/log"
)

// Cmd is the management-plane command a notification reports.
type Cmd uint8

const (
	CmdNew Cmd = iota + 1
	CmdDel
)

func (c Cmd) String() string {
	switch c {
	case CmdNew:
		return "new"
	case CmdDel:
		return "del"
	default:
		return fmt.Sprintf("cmd(%d)", uint8(c))
	}
}

// Notification tells the management plane about a vport change.
type Notification struct {
	Cmd   Cmd
	Vport Vport
}

// Notifier delivers notifications to the management plane.
type Notifier interface {
	Notify(n Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n Notification) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(n Notification) error {
	return f(n)
}

// LogNotifier reports notifications to the process log.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(n Notification) error {
	log.GetLogger().WithFields(map[string]interface{}{
		"cmd":      n.Cmd.String(),
		"port":     n.Vport.PortNo,
		"device":   n.Vport.Name,
		"type":     n.Vport.Type.String(),
		"datapath": n.Vport.Datapath,
	}).Info("vport notification")
	return nil
}

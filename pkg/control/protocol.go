// Package control is the daemon's command channel: newline-delimited JSON
// over a Unix socket.
package control

import (
	"github.com/borgmon/alarm-clock/pkg/engine"
)

// Commands understood by the daemon.
const (
	CmdPing   = "ping"
	CmdStatus = "status"
	CmdSync   = "sync"
	CmdOff    = "off"
	CmdSnooze = "snooze"
)

// Command is sent from a client to the daemon.
type Command struct {
	Cmd string  `json:"cmd"`
	ID  int64   `json:"id,omitempty"`
	IDs []int64 `json:"ids,omitempty"`
}

// Response is returned by the daemon after processing a command.
type Response struct {
	OK     bool                 `json:"ok"`
	Error  string               `json:"error,omitempty"`
	Alarms []engine.AlarmStatus `json:"alarms,omitempty"`
}

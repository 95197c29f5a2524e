package rpc

import "fmt"

// Request is a single command sent to a daemon service
type Request struct {
	Command  string         `msgpack:"command"`
	Service  string         `msgpack:"service"`
	Origin   string         `msgpack:"origin"`
	ClientID uint64         `msgpack:"client_id"`
	Args     map[string]any `msgpack:"args,omitempty"`
}

// Response is the daemon's reply to a Request
type Response struct {
	Data  map[string]any `msgpack:"data,omitempty"`
	Error string         `msgpack:"error,omitempty"`
}

// Push is a server-initiated message delivered over an established subscription.
// The daemon emits these as state_changed events: State names what changed,
// WalletID scopes the change when it applies to a single wallet, and Seq is a
// per-service monotonic sequence used to drop redeliveries after reconnect.
type Push struct {
	Command  string         `msgpack:"command"`
	Service  string         `msgpack:"service"`
	State    string         `msgpack:"state"`
	Seq      uint64         `msgpack:"seq"`
	WalletID uint32         `msgpack:"wallet_id,omitempty"`
	Data     map[string]any `msgpack:"data,omitempty"`
}

// DaemonError is a daemon-side failure carried in a Response
type DaemonError struct {
	Command string
	Service string
	Message string
}

func (e *DaemonError) Error() string {
	return fmt.Sprintf("daemon error on %s.%s: %s", e.Service, e.Command, e.Message)
}

// CallSubject returns the request/reply subject for a command
func CallSubject(service, command string) string {
	return service + ".rpc." + command
}

// PushSubject returns the push delivery subject for a subscribe command
func PushSubject(service, command string) string {
	return service + ".push." + command
}

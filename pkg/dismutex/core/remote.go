package core

import (
	"bufio"
	"encoding/json"
	"net"
	"time"

	"github.com/holmgr/go-dismutex/pkg/dismutex/types"
	"github.com/pkg/errors"
)

const dialTimeout = 5 * time.Second

// Caller turns a named invocation with positional arguments into one
// request/response exchange on a fresh connection. It is the generic
// half of a remote handle; typed wrappers live on top of it.
type Caller struct {
	address types.Address
}

func NewCaller(address types.Address) *Caller {
	return &Caller{address: address}
}

func (c *Caller) Address() types.Address {
	return c.address
}

// Call performs the exchange. A nil raw result with a nil error is the
// absent-value sentinel. Transport failures surface as
// types.ErrCommunication; wire errors are rebuilt from the whitelist.
func (c *Caller) Call(method string, args ...interface{}) (json.RawMessage, error) {
	raw := make([]json.RawMessage, 0, len(args))
	for _, arg := range args {
		data, err := json.Marshal(arg)
		if err != nil {
			return nil, errors.Wrapf(err, "marshalling %s argument", method)
		}
		raw = append(raw, data)
	}
	request, err := json.Marshal(types.Request{Method: method, Args: raw})
	if err != nil {
		return nil, errors.Wrapf(err, "marshalling %s request", method)
	}

	conn, err := net.DialTimeout("tcp", c.address.String(), dialTimeout)
	if err != nil {
		return nil, errors.Wrapf(types.ErrCommunication, "dialing %s: %v", c.address, err)
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(wireDeadline)); err != nil {
		return nil, errors.Wrapf(types.ErrCommunication, "deadline on %s: %v", c.address, err)
	}

	if _, err := conn.Write(append(request, '\n')); err != nil {
		return nil, errors.Wrapf(types.ErrCommunication, "sending %s to %s: %v", method, c.address, err)
	}
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return nil, errors.Wrapf(types.ErrCommunication, "reading %s reply from %s: %v", method, c.address, err)
	}

	var reply types.Reply
	if err := json.Unmarshal(line, &reply); err != nil {
		return nil, errors.Wrapf(types.ErrCommunication, "malformed reply from %s: %v", c.address, err)
	}
	if reply.Error != nil {
		return nil, types.NamedError(reply.Error)
	}
	if reply.Result == nil {
		return nil, types.ErrUnexpectedReply
	}
	if string(reply.Result) == "null" {
		return nil, nil
	}
	return reply.Result, nil
}

// Handle is the capability set a peer exposes to the other components:
// the lock needs the token messages, the directory needs membership
// notifications, the resource owner needs replication and liveness.
type Handle interface {
	Address() types.Address
	RequestToken(timestamp uint64, pid types.PeerID) error
	ObtainToken(token types.Token) error
	RegisterPeer(pid types.PeerID, addr types.Address) error
	UnregisterPeer(pid types.PeerID) error
	Read() (string, bool, error)
	Write(record string) error
	DisplayStatus() error
	Check() (types.PeerID, string, error)
}

// RemoteHandle is the local stand-in for a remote peer, exposing every
// remote method explicitly instead of reflecting arbitrary names.
type RemoteHandle struct {
	*Caller
}

func NewRemoteHandle(address types.Address) *RemoteHandle {
	return &RemoteHandle{Caller: NewCaller(address)}
}

// RemoteHandle implements Handle.
func (h *RemoteHandle) RequestToken(timestamp uint64, pid types.PeerID) error {
	_, err := h.Call("request_token", timestamp, pid)
	return err
}

// RemoteHandle implements Handle.
func (h *RemoteHandle) ObtainToken(token types.Token) error {
	_, err := h.Call("obtain_token", token)
	return err
}

// RemoteHandle implements Handle.
func (h *RemoteHandle) RegisterPeer(pid types.PeerID, addr types.Address) error {
	_, err := h.Call("register_peer", pid, addr)
	return err
}

// RemoteHandle implements Handle.
func (h *RemoteHandle) UnregisterPeer(pid types.PeerID) error {
	_, err := h.Call("unregister_peer", pid)
	return err
}

// RemoteHandle implements Handle. The boolean is false when the remote
// store is empty.
func (h *RemoteHandle) Read() (string, bool, error) {
	result, err := h.Call("read")
	if err != nil {
		return "", false, err
	}
	if result == nil {
		return "", false, nil
	}
	var record string
	if err := json.Unmarshal(result, &record); err != nil {
		return "", false, errors.Wrapf(types.ErrCommunication, "bad read reply: %v", err)
	}
	return record, true, nil
}

// RemoteHandle implements Handle.
func (h *RemoteHandle) Write(record string) error {
	_, err := h.Call("write", record)
	return err
}

// RemoteHandle implements Handle.
func (h *RemoteHandle) DisplayStatus() error {
	_, err := h.Call("display_status")
	return err
}

// RemoteHandle implements Handle.
func (h *RemoteHandle) Check() (types.PeerID, string, error) {
	result, err := h.Call("check")
	if err != nil {
		return 0, "", err
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(result, &raw); err != nil || len(raw) != 2 {
		return 0, "", errors.Wrapf(types.ErrCommunication, "bad check reply %s", string(result))
	}
	var pid types.PeerID
	var ptype string
	if err := json.Unmarshal(raw[0], &pid); err != nil {
		return 0, "", errors.Wrapf(types.ErrCommunication, "bad check id: %v", err)
	}
	if err := json.Unmarshal(raw[1], &ptype); err != nil {
		return 0, "", errors.Wrapf(types.ErrCommunication, "bad check type: %v", err)
	}
	return pid, ptype, nil
}

var _ Handle = (*RemoteHandle)(nil)

package types

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"

	"github.com/pkg/errors"
)

// PeerID identifies a peer within a run. Ids are handed out by the
// name service monotonically and are never reused while the name
// service is up, so the smallest id always belongs to the oldest
// surviving peer.
type PeerID uint64

// Address is a host and port pair. On the wire it travels as a two
// element JSON array, ["host", port].
type Address struct {
	Host string
	Port int
}

// ParseAddress splits a "host:port" string into an Address.
func ParseAddress(s string) (Address, error) {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return Address{}, errors.Wrapf(ErrInvalidAddress, "cannot parse %q", s)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return Address{}, errors.Wrapf(ErrInvalidAddress, "bad port in %q", s)
	}
	return Address{Host: host, Port: p}, nil
}

func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// Address implements json.Marshaler.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{a.Host, a.Port})
}

// Address implements json.Unmarshaler.
func (a *Address) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("address must be a [host, port] pair, got %s", string(data))
	}
	if err := json.Unmarshal(raw[0], &a.Host); err != nil {
		return err
	}
	return json.Unmarshal(raw[1], &a.Port)
}

// PeerInfo couples the identity issued by the name service with the
// published address. The hash is opaque and is only needed to
// unregister.
type PeerInfo struct {
	ID      PeerID
	Type    string
	Address Address
	Hash    string
}

// PeerEntry is a single row of a name service listing. On the wire it
// is the array [id, [host, port]].
type PeerEntry struct {
	ID      PeerID
	Address Address
}

// PeerEntry implements json.Marshaler.
func (e PeerEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{e.ID, e.Address})
}

// PeerEntry implements json.Unmarshaler.
func (e *PeerEntry) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("peer entry must be an [id, address] pair, got %s", string(data))
	}
	if err := json.Unmarshal(raw[0], &e.ID); err != nil {
		return err
	}
	return json.Unmarshal(raw[1], &e.Address)
}

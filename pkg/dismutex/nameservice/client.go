package nameservice

import (
	"encoding/json"

	"github.com/holmgr/go-dismutex/pkg/dismutex/core"
	"github.com/holmgr/go-dismutex/pkg/dismutex/types"
	"github.com/pkg/errors"
)

// Client is the typed consumer side of the name service protocol.
type Client struct {
	caller *core.Caller
}

func NewClient(address types.Address) *Client {
	return &Client{caller: core.NewCaller(address)}
}

// Register announces a peer and returns the issued id and the opaque
// hash needed to unregister.
func (c *Client) Register(ptype string, addr types.Address) (types.PeerID, string, error) {
	result, err := c.caller.Call("register", ptype, addr)
	if err != nil {
		return 0, "", err
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(result, &raw); err != nil || len(raw) != 2 {
		return 0, "", errors.Wrapf(types.ErrCommunication, "bad register reply %s", string(result))
	}
	var id types.PeerID
	var hash string
	if err := json.Unmarshal(raw[0], &id); err != nil {
		return 0, "", errors.Wrapf(types.ErrCommunication, "bad register id: %v", err)
	}
	if err := json.Unmarshal(raw[1], &hash); err != nil {
		return 0, "", errors.Wrapf(types.ErrCommunication, "bad register hash: %v", err)
	}
	return id, hash, nil
}

// Unregister withdraws a registration.
func (c *Client) Unregister(id types.PeerID, ptype, hash string) error {
	_, err := c.caller.Call("unregister", id, ptype, hash)
	return err
}

// RequireAll lists every live peer of a type, sorted by id.
func (c *Client) RequireAll(ptype string) ([]types.PeerEntry, error) {
	result, err := c.caller.Call("require_all", ptype)
	if err != nil {
		return nil, err
	}
	var listing []types.PeerEntry
	if err := json.Unmarshal(result, &listing); err != nil {
		return nil, errors.Wrapf(types.ErrCommunication, "bad require_all reply: %v", err)
	}
	return listing, nil
}

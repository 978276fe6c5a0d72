package core_test

import (
	"sort"
	"sync"

	"github.com/holmgr/go-dismutex/pkg/dismutex/core"
	"github.com/holmgr/go-dismutex/pkg/dismutex/definition"
	"github.com/holmgr/go-dismutex/pkg/dismutex/types"
	"github.com/pkg/errors"
)

func testLogger(name string) types.Logger {
	return definition.NewDefaultLogger(name)
}

// noopHandle satisfies core.Handle; embed it and override what the
// test cares about.
type noopHandle struct {
	addr types.Address
}

func (h noopHandle) Address() types.Address                    { return h.addr }
func (noopHandle) RequestToken(uint64, types.PeerID) error     { return nil }
func (noopHandle) ObtainToken(types.Token) error               { return nil }
func (noopHandle) RegisterPeer(types.PeerID, types.Address) error { return nil }
func (noopHandle) UnregisterPeer(types.PeerID) error           { return nil }
func (noopHandle) Read() (string, bool, error)                 { return "", false, nil }
func (noopHandle) Write(string) error                          { return nil }
func (noopHandle) DisplayStatus() error                        { return nil }
func (noopHandle) Check() (types.PeerID, string, error)        { return 0, "", nil }

// fakeMembership is an in-process directory: a fixed peer set with one
// monitor, no network.
type fakeMembership struct {
	monitor *sync.Cond
	self    types.PeerID
	handles map[types.PeerID]core.Handle
}

func newFakeMembership(self types.PeerID, others ...types.PeerID) *fakeMembership {
	m := &fakeMembership{
		monitor: sync.NewCond(&sync.Mutex{}),
		self:    self,
		handles: map[types.PeerID]core.Handle{self: noopHandle{}},
	}
	for _, pid := range others {
		m.handles[pid] = noopHandle{}
	}
	return m
}

func (m *fakeMembership) Monitor() *sync.Cond { return m.monitor }
func (m *fakeMembership) Self() types.PeerID  { return m.self }

func (m *fakeMembership) Ids() []types.PeerID {
	pids := make([]types.PeerID, 0, len(m.handles))
	for pid := range m.handles {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	return pids
}

func (m *fakeMembership) Peer(pid types.PeerID) (core.Handle, error) {
	h, ok := m.handles[pid]
	if !ok {
		return nil, errors.Wrapf(types.ErrPeerNotFound, "peer %d", pid)
	}
	return h, nil
}

// lockHandle forwards the token messages straight into another lock,
// the way a synchronous RPC would. fail simulates a dead peer.
type lockHandle struct {
	noopHandle
	target *core.TokenLock
	fail   bool
}

func (h *lockHandle) RequestToken(timestamp uint64, pid types.PeerID) error {
	if h.fail {
		return errors.Wrap(types.ErrCommunication, "peer is down")
	}
	h.target.RequestToken(timestamp, pid)
	return nil
}

func (h *lockHandle) ObtainToken(token types.Token) error {
	if h.fail {
		return errors.Wrap(types.ErrCommunication, "peer is down")
	}
	h.target.ObtainToken(token)
	return nil
}

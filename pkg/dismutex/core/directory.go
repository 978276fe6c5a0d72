package core

import (
	"sort"
	"sync"

	"github.com/holmgr/go-dismutex/pkg/dismutex/types"
	"github.com/pkg/errors"
)

// MembershipListener gets told about membership changes. The directory
// invokes it while holding the monitor, so implementations must not
// try to take it again.
type MembershipListener interface {
	RegisterPeer(pid types.PeerID)
	UnregisterPeer(pid types.PeerID)
}

// Membership is the directory capability set the lock depends on. The
// accessors marked monitor-held do no locking of their own.
type Membership interface {
	// The per-peer monitor guarding all membership and lock state.
	Monitor() *sync.Cond

	// Id of the local peer. Monitor-held.
	Self() types.PeerID

	// All known ids in ascending order, the local peer included.
	// Monitor-held.
	Ids() []types.PeerID

	// Handle for one peer. Monitor-held.
	Peer(pid types.PeerID) (Handle, error)
}

// Dialer builds a remote handle for a peer address. Injected so tests
// can wire peers together without a network.
type Dialer func(addr types.Address) Handle

// Directory is this peer's view of who is alive: a mapping from peer
// id to a remote handle, the local peer included once Initialize has
// put it there from the name service listing. Every read and write
// of the view happens under the monitor, which doubles as the
// condition variable the lock waits on.
type Directory struct {
	monitor  *sync.Cond
	log      types.Logger
	dial     Dialer
	self     types.PeerInfo
	peers    map[types.PeerID]Handle
	listener MembershipListener
}

func NewDirectory(dial Dialer, log types.Logger) *Directory {
	return &Directory{
		monitor: sync.NewCond(&sync.Mutex{}),
		log:     log,
		dial:    dial,
		peers:   make(map[types.PeerID]Handle),
	}
}

// SetSelf records the identity issued by the name service. Must happen
// before Initialize.
func (d *Directory) SetSelf(info types.PeerInfo) {
	d.monitor.L.Lock()
	defer d.monitor.L.Unlock()
	d.self = info
}

// SetListener wires the lock's membership callbacks. Must happen
// before the listener starts serving.
func (d *Directory) SetListener(l MembershipListener) {
	d.listener = l
}

// Directory implements Membership.
func (d *Directory) Monitor() *sync.Cond {
	return d.monitor
}

// Directory implements Membership.
func (d *Directory) Self() types.PeerID {
	return d.self.ID
}

// Directory implements Membership.
func (d *Directory) Ids() []types.PeerID {
	pids := make([]types.PeerID, 0, len(d.peers))
	for pid := range d.peers {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	return pids
}

// Directory implements Membership.
func (d *Directory) Peer(pid types.PeerID) (Handle, error) {
	h, ok := d.peers[pid]
	if !ok {
		return nil, errors.Wrapf(types.ErrPeerNotFound, "peer %d", pid)
	}
	return h, nil
}

// Initialize populates the view from a name service listing and makes
// the older peers aware of the newcomer. Registration is only sent to
// peers with lower ids: higher-id peers are younger, are still
// initializing themselves, and will announce themselves to us --
// sending in both directions could deadlock two joiners on each
// other's monitors. A peer that cannot be reached is omitted from the
// view rather than failing the whole initialization.
func (d *Directory) Initialize(listing []types.PeerEntry) {
	d.monitor.L.Lock()
	defer d.monitor.L.Unlock()

	for _, entry := range listing {
		handle := d.dial(entry.Address)
		if entry.ID < d.self.ID {
			if err := handle.RegisterPeer(d.self.ID, d.self.Address); err != nil {
				d.log.Warnf("cannot announce to peer %d at %s: %v", entry.ID, entry.Address, err)
				continue
			}
		}
		d.peers[entry.ID] = handle
	}
}

// Destroy tells every other peer we are leaving. Best effort: a peer
// that cannot be told is already gone or will notice on its own.
func (d *Directory) Destroy() {
	d.monitor.L.Lock()
	targets := make(map[types.PeerID]Handle, len(d.peers))
	for pid, h := range d.peers {
		if pid != d.self.ID {
			targets[pid] = h
		}
	}
	self := d.self.ID
	d.monitor.L.Unlock()

	for pid, h := range targets {
		if err := h.UnregisterPeer(self); err != nil {
			d.log.Debugf("cannot unregister from peer %d: %v", pid, err)
		}
	}
}

// RegisterPeer adds a peer that announced itself. Re-registration of a
// known id just replaces the handle with an equivalent one.
func (d *Directory) RegisterPeer(pid types.PeerID, addr types.Address) {
	d.monitor.L.Lock()
	defer d.monitor.L.Unlock()
	d.peers[pid] = d.dial(addr)
	if d.listener != nil {
		d.listener.RegisterPeer(pid)
	}
	d.log.Infof("peer %d at %s joined the system", pid, addr)
}

// UnregisterPeer removes a departing peer from the view.
func (d *Directory) UnregisterPeer(pid types.PeerID) error {
	d.monitor.L.Lock()
	defer d.monitor.L.Unlock()
	if _, ok := d.peers[pid]; !ok {
		return errors.Wrapf(types.ErrPeerNotFound, "peer %d", pid)
	}
	delete(d.peers, pid)
	if d.listener != nil {
		d.listener.UnregisterPeer(pid)
	}
	d.log.Infof("peer %d left the system", pid)
	return nil
}

// Peers returns a snapshot of the whole view.
func (d *Directory) Peers() map[types.PeerID]Handle {
	d.monitor.L.Lock()
	defer d.monitor.L.Unlock()
	snapshot := make(map[types.PeerID]Handle, len(d.peers))
	for pid, h := range d.peers {
		snapshot[pid] = h
	}
	return snapshot
}

// DisplayPeers logs the sorted peer table.
func (d *Directory) DisplayPeers() {
	d.monitor.L.Lock()
	defer d.monitor.L.Unlock()
	d.log.Infof("peers of type %q:", d.self.Type)
	for _, pid := range d.Ids() {
		d.log.Infof("    id: %2d, address: %s", pid, d.peers[pid].Address())
	}
}

var _ Membership = (*Directory)(nil)

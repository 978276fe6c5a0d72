package dismutex

import (
	"encoding/json"

	"github.com/holmgr/go-dismutex/pkg/dismutex/core"
	"github.com/holmgr/go-dismutex/pkg/dismutex/definition"
	"github.com/holmgr/go-dismutex/pkg/dismutex/helper"
	"github.com/holmgr/go-dismutex/pkg/dismutex/nameservice"
	"github.com/holmgr/go-dismutex/pkg/dismutex/types"
	"github.com/pkg/errors"
)

// Peer binds the record store, the membership directory and the
// distributed lock to one process and exposes them over the wire.
// Lifecycle: NewPeer builds the components, Start brings the listener
// up and joins the system, Destroy leaves it gracefully.
type Peer struct {
	conf      *types.PeerConfiguration
	log       types.Logger
	info      types.PeerInfo
	ns        *nameservice.Client
	storage   types.Storage
	directory *core.Directory
	lock      *core.TokenLock
	rw        *core.DistributedReadWriteLock
	listener  *core.Listener
}

func NewPeer(conf *types.PeerConfiguration) (*Peer, error) {
	log := conf.Logger
	if log == nil {
		log = definition.NewDefaultLogger(conf.Type)
		conf.Logger = log
	}
	log.ToggleDebug(conf.Debug)

	storage, err := definition.NewFileStorage(conf.DatabasePath)
	if err != nil {
		return nil, err
	}

	p := &Peer{
		conf:    conf,
		log:     log,
		ns:      nameservice.NewClient(conf.NameService),
		storage: storage,
	}

	p.directory = core.NewDirectory(func(addr types.Address) core.Handle {
		return core.NewRemoteHandle(addr)
	}, log)
	p.lock = core.NewTokenLock(p.directory, log)
	p.directory.SetListener(p.lock)
	p.rw = core.NewDistributedReadWriteLock(p.lock)

	registry := core.NewRegistry()
	registry.Handle("read", p.handleRead)
	registry.Handle("write", p.handleWrite)
	registry.Handle("register_peer", p.handleRegisterPeer)
	registry.Handle("unregister_peer", p.handleUnregisterPeer)
	registry.Handle("request_token", p.handleRequestToken)
	registry.Handle("obtain_token", p.handleObtainToken)
	registry.Handle("display_status", p.handleDisplayStatus)
	registry.Handle("check", p.handleCheck)

	bind, err := helper.ExternalInterface(conf.Bind)
	if err != nil {
		return nil, err
	}
	listener, err := core.NewListener(bind, registry, log)
	if err != nil {
		return nil, err
	}
	p.listener = listener
	return p, nil
}

// Start exposes the listener, registers with the name service, and
// joins the existing membership. The listener must be up first: as
// soon as registration succeeds, other peers may call in.
func (p *Peer) Start() error {
	p.listener.Start()

	addr := p.listener.Addr()
	id, hash, err := p.ns.Register(p.conf.Type, addr)
	if err != nil {
		p.listener.Close()
		return errors.Wrap(err, "registering with the name service")
	}
	p.info = types.PeerInfo{ID: id, Type: p.conf.Type, Address: addr, Hash: hash}
	p.directory.SetSelf(p.info)

	listing, err := p.ns.RequireAll(p.conf.Type)
	if err != nil {
		p.listener.Close()
		return errors.Wrap(err, "listing peers")
	}
	p.directory.Initialize(listing)
	p.lock.Initialize()

	p.log.Infof("peer %d serving on %s", p.info.ID, addr)
	return nil
}

// Destroy leaves the system: hand off the token if resident, tell the
// other peers, withdraw the name service registration, stop serving.
func (p *Peer) Destroy() {
	p.lock.Destroy()
	p.directory.Destroy()
	if err := p.ns.Unregister(p.info.ID, p.info.Type, p.info.Hash); err != nil {
		p.log.Warnf("name service unregistration failed: %v", err)
	}
	p.listener.Close()
}

// ID of this peer, issued by the name service.
func (p *Peer) ID() types.PeerID {
	return p.info.ID
}

// Addr the listener is bound to.
func (p *Peer) Addr() types.Address {
	return p.listener.Addr()
}

// Read returns a random record from the local replica. The boolean is
// false when the store is empty.
func (p *Peer) Read() (string, bool) {
	p.rw.ReadAcquire()
	defer p.rw.ReadRelease()
	return p.storage.Random()
}

// Write appends a record everywhere: it takes the distributed write
// lock, appends locally, and propagates the record to every other
// peer. Replication to an unreachable peer is logged and dropped; a
// dead peer's replica no longer matters.
func (p *Peer) Write(record string) error {
	p.rw.WriteAcquire()
	defer p.rw.WriteRelease()

	if err := p.storage.Append(record); err != nil {
		return err
	}

	for pid, handle := range p.directory.Peers() {
		if pid == p.info.ID {
			continue
		}
		if err := handle.Write(record); err != nil {
			p.log.Warnf("replicating to peer %d failed: %v", pid, err)
		}
	}
	return nil
}

// Records is a snapshot of the local replica.
func (p *Peer) Records() []string {
	p.rw.ReadAcquire()
	defer p.rw.ReadRelease()
	return p.storage.All()
}

// Acquire takes the distributed write lock, for operators who want to
// hold the critical section across several commands.
func (p *Peer) Acquire() {
	p.rw.WriteAcquire()
}

// Release undoes Acquire.
func (p *Peer) Release() {
	p.rw.WriteRelease()
}

// Status returns a snapshot of the lock state.
func (p *Peer) Status() core.LockStatus {
	return p.lock.Status()
}

// DisplayStatus logs the lock state.
func (p *Peer) DisplayStatus() {
	p.lock.DisplayStatus()
}

// DisplayPeers logs the membership table.
func (p *Peer) DisplayPeers() {
	p.directory.DisplayPeers()
}

// Check reports liveness.
func (p *Peer) Check() (types.PeerID, string) {
	return p.info.ID, p.info.Type
}

// RPC surface. Handlers run on the listener's per-connection workers.

// read() -> record or null when the store is empty.
func (p *Peer) handleRead(args []json.RawMessage) (interface{}, error) {
	p.rw.ReadAcquire()
	defer p.rw.ReadRelease()
	record, ok := p.storage.Random()
	if !ok {
		return nil, nil
	}
	return record, nil
}

// write(record). The sender holds the token on our behalf, so this
// takes only the local writer lock.
func (p *Peer) handleWrite(args []json.RawMessage) (interface{}, error) {
	var record string
	if err := decode(args, &record); err != nil {
		return nil, err
	}
	p.rw.WriteAcquireLocal()
	defer p.rw.WriteReleaseLocal()
	return nil, p.storage.Append(record)
}

// register_peer(pid, addr)
func (p *Peer) handleRegisterPeer(args []json.RawMessage) (interface{}, error) {
	var pid types.PeerID
	var addr types.Address
	if err := decode(args, &pid, &addr); err != nil {
		return nil, err
	}
	p.directory.RegisterPeer(pid, addr)
	return nil, nil
}

// unregister_peer(pid)
func (p *Peer) handleUnregisterPeer(args []json.RawMessage) (interface{}, error) {
	var pid types.PeerID
	if err := decode(args, &pid); err != nil {
		return nil, err
	}
	return nil, p.directory.UnregisterPeer(pid)
}

// request_token(time, pid)
func (p *Peer) handleRequestToken(args []json.RawMessage) (interface{}, error) {
	var timestamp uint64
	var pid types.PeerID
	if err := decode(args, &timestamp, &pid); err != nil {
		return nil, err
	}
	p.lock.RequestToken(timestamp, pid)
	return nil, nil
}

// obtain_token(token-as-pairs)
func (p *Peer) handleObtainToken(args []json.RawMessage) (interface{}, error) {
	var token types.Token
	if err := decode(args, &token); err != nil {
		return nil, err
	}
	p.lock.ObtainToken(token)
	return nil, nil
}

// display_status()
func (p *Peer) handleDisplayStatus(args []json.RawMessage) (interface{}, error) {
	p.lock.DisplayStatus()
	return nil, nil
}

// check() -> [id, type]
func (p *Peer) handleCheck(args []json.RawMessage) (interface{}, error) {
	return []interface{}{p.info.ID, p.info.Type}, nil
}

// decode unpacks positional arguments into the given targets.
func decode(args []json.RawMessage, targets ...interface{}) error {
	if len(args) != len(targets) {
		return errors.Errorf("expected %d arguments, got %d", len(targets), len(args))
	}
	for i, target := range targets {
		if err := json.Unmarshal(args[i], target); err != nil {
			return errors.Wrapf(err, "argument %d", i)
		}
	}
	return nil
}

package nameservice

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/holmgr/go-dismutex/pkg/dismutex/core"
	"github.com/holmgr/go-dismutex/pkg/dismutex/helper"
	"github.com/holmgr/go-dismutex/pkg/dismutex/types"
	"github.com/pkg/errors"
)

type registration struct {
	address types.Address
	hash    string
}

// Server is the name service: the registry peers discover each other
// through. Ids are assigned from a single counter across all peer
// types, so they are monotonic and never reused within a run. The hash
// handed out at registration is required to unregister, which keeps a
// peer from being unregistered by anyone but itself.
type Server struct {
	mutex    sync.Mutex
	log      types.Logger
	registry *core.Registry
	listener *core.Listener

	nextID  types.PeerID
	entries map[string]map[types.PeerID]registration
}

func NewServer(bind types.Address, log types.Logger) (*Server, error) {
	s := &Server{
		log:     log,
		entries: make(map[string]map[types.PeerID]registration),
	}
	s.registry = core.NewRegistry()
	s.registry.Handle("register", s.register)
	s.registry.Handle("unregister", s.unregister)
	s.registry.Handle("require_all", s.requireAll)
	s.registry.Handle("check", s.check)

	listener, err := core.NewListener(bind, s.registry, log)
	if err != nil {
		return nil, err
	}
	s.listener = listener
	return s, nil
}

// Addr is the bound address.
func (s *Server) Addr() types.Address {
	return s.listener.Addr()
}

// Start begins serving.
func (s *Server) Start() {
	s.listener.Start()
	s.log.Infof("name service listening on %s", s.Addr())
}

// Close stops the listener.
func (s *Server) Close() {
	s.listener.Close()
}

// register(type, addr) -> [id, hash]
func (s *Server) register(args []json.RawMessage) (interface{}, error) {
	var ptype string
	var addr types.Address
	if err := decode(args, &ptype, &addr); err != nil {
		return nil, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.nextID++
	id := s.nextID
	hash := helper.GenerateHash()
	if s.entries[ptype] == nil {
		s.entries[ptype] = make(map[types.PeerID]registration)
	}
	s.entries[ptype][id] = registration{address: addr, hash: hash}
	s.log.Infof("registered %s peer %d at %s", ptype, id, addr)
	return []interface{}{id, hash}, nil
}

// unregister(id, type, hash) -> null
func (s *Server) unregister(args []json.RawMessage) (interface{}, error) {
	var id types.PeerID
	var ptype, hash string
	if err := decode(args, &id, &ptype, &hash); err != nil {
		return nil, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	reg, ok := s.entries[ptype][id]
	if !ok || reg.hash != hash {
		return nil, errors.Wrapf(types.ErrPeerNotFound, "no %s registration for %d", ptype, id)
	}
	delete(s.entries[ptype], id)
	s.log.Infof("unregistered %s peer %d", ptype, id)
	return nil, nil
}

// require_all(type) -> [[id, [host, port]], ...] sorted by id
func (s *Server) requireAll(args []json.RawMessage) (interface{}, error) {
	var ptype string
	if err := decode(args, &ptype); err != nil {
		return nil, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	listing := make([]types.PeerEntry, 0, len(s.entries[ptype]))
	for id, reg := range s.entries[ptype] {
		listing = append(listing, types.PeerEntry{ID: id, Address: reg.address})
	}
	sort.Slice(listing, func(i, j int) bool { return listing[i].ID < listing[j].ID })
	return listing, nil
}

// check() -> [0, "name_service"]
func (s *Server) check(args []json.RawMessage) (interface{}, error) {
	return []interface{}{0, "name_service"}, nil
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

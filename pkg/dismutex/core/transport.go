package core

import (
	"bufio"
	"encoding/json"
	"net"
	"time"

	"github.com/holmgr/go-dismutex/pkg/dismutex/types"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// How long a single one-shot exchange may take, on either side.
const wireDeadline = 10 * time.Second

// Handler executes one inbound invocation. Arguments arrive as the raw
// positional JSON values; each handler decodes its own schema. The
// returned value is marshalled into the reply; a nil value with a nil
// error is the absent-value sentinel ("result": null).
type Handler func(args []json.RawMessage) (interface{}, error)

// Registry maps wire method names to handlers. This replaces dynamic
// attribute dispatch: only methods registered here exist remotely.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Handle binds a method name. Binding happens during assembly, before
// the listener starts, so no locking is needed.
func (r *Registry) Handle(method string, h Handler) {
	r.handlers[method] = h
}

// Dispatch runs the handler for a request and shapes the reply.
// Handler errors travel as wire errors; they never escape locally.
func (r *Registry) Dispatch(req *types.Request) types.Reply {
	inboundRequests.WithLabelValues(req.Method).Inc()
	h, ok := r.handlers[req.Method]
	if !ok {
		return errorReply(errors.Errorf("unknown method %q", req.Method))
	}
	result, err := h(req.Args)
	if err != nil {
		return errorReply(err)
	}
	data, err := json.Marshal(result)
	if err != nil {
		return errorReply(errors.Wrapf(err, "marshalling %s result", req.Method))
	}
	return types.Reply{Result: data}
}

func errorReply(err error) types.Reply {
	return types.Reply{Error: &types.WireError{
		Name: types.ErrorName(err),
		Args: []string{err.Error()},
	}}
}

// Listener accepts one connection per invocation, parses the request,
// dispatches it through the registry and writes back a reply. Accepts
// are serial; each accepted connection is served on its own worker.
type Listener struct {
	log      types.Logger
	registry *Registry
	ln       net.Listener
	addr     types.Address
	closed   atomic.Bool
}

// NewListener binds the listener socket. bind.Port may be zero; the
// address reported by Addr always carries the port actually bound.
func NewListener(bind types.Address, registry *Registry, log types.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", bind.String())
	if err != nil {
		return nil, errors.Wrapf(types.ErrInvalidAddress, "binding %s: %v", bind, err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	return &Listener{
		log:      log,
		registry: registry,
		ln:       ln,
		addr:     types.Address{Host: bind.Host, Port: port},
	}, nil
}

// Addr is the bound address, with the real port.
func (l *Listener) Addr() types.Address {
	return l.addr
}

// Start begins serving on a background worker.
func (l *Listener) Start() {
	InvokerInstance().Spawn(l.serve)
}

// Close stops accepting. In-flight invocations finish on their own
// workers.
func (l *Listener) Close() {
	if l.closed.CAS(false, true) {
		if err := l.ln.Close(); err != nil {
			l.log.Debugf("closing listener: %v", err)
		}
	}
}

func (l *Listener) serve() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if l.closed.Load() {
				return
			}
			l.log.Warnf("accept failed: %v", err)
			continue
		}
		InvokerInstance().Spawn(func() {
			l.handle(conn)
		})
	}
}

// One request, one reply, close. Failures here only concern the single
// caller on the other end; they are logged and dropped.
func (l *Listener) handle(conn net.Conn) {
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(wireDeadline)); err != nil {
		l.log.Debugf("setting deadline: %v", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		l.log.Warnf("reading request from %s: %v", conn.RemoteAddr(), err)
		return
	}

	var req types.Request
	var reply types.Reply
	if err := json.Unmarshal(line, &req); err != nil {
		reply = errorReply(errors.Wrap(types.ErrCommunication, "malformed request"))
	} else {
		reply = l.registry.Dispatch(&req)
	}

	// Dispatch may have taken a while; give the reply its own window.
	if err := conn.SetWriteDeadline(time.Now().Add(wireDeadline)); err != nil {
		l.log.Debugf("setting write deadline: %v", err)
	}
	data, err := json.Marshal(reply)
	if err != nil {
		l.log.Errorf("marshalling reply: %v", err)
		return
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		l.log.Warnf("writing reply to %s: %v", conn.RemoteAddr(), err)
	}
}

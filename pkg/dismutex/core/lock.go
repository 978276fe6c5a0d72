package core

import (
	"github.com/holmgr/go-dismutex/pkg/dismutex/types"
)

// TokenLock is the distributed mutual exclusion state machine. One
// token circulates among the peers; entering the critical section
// means broadcasting a timestamped request and waiting for the current
// holder to hand the token over. The grant rule hands it to the first
// peer, scanning circularly from just past the holder's id, whose
// recorded request timestamp exceeds the token's last-served timestamp
// for that peer.
//
// Every piece of state here is guarded by the membership monitor. The
// one place the monitor must be dropped around an outbound call is the
// request broadcast in Acquire: the remote handler may synchronously
// hand the token back to us, and our obtain_token handler needs the
// monitor. Release and Destroy keep the monitor across their
// obtain_token calls; the receiver's handler only takes its own.
type TokenLock struct {
	members Membership
	log     types.Logger
	clock   LogicalClock

	// Guarded by members.Monitor().
	state   types.LockState
	token   types.Token
	request map[types.PeerID]uint64
}

func NewTokenLock(members Membership, log types.Logger) *TokenLock {
	return &TokenLock{
		members: members,
		log:     log,
		clock:   NewClock(),
		state:   types.NoToken,
		request: make(map[types.PeerID]uint64),
	}
}

// Initialize seeds the token map with a zero entry per known peer and
// applies the bootstrap rule: the peer with the smallest id of the
// current view starts with the token. The first peer to join sees only
// itself and is the minimum; every later joiner finds a smaller id
// already present, so exactly one initial holder exists.
// The directory must already be populated.
func (l *TokenLock) Initialize() {
	mon := l.members.Monitor()
	mon.L.Lock()
	defer mon.L.Unlock()

	pids := l.members.Ids()
	l.token = make(types.Token, len(pids))
	for _, pid := range pids {
		l.token[pid] = 0
	}
	if len(pids) > 0 && pids[0] == l.members.Self() {
		l.state = types.TokenPresent
		l.log.Infof("bootstrap holder, token created for %d peers", len(pids))
	}
}

// Acquire blocks until the token is resident and marks the critical
// section active. Safe to call when the token is already here.
func (l *TokenLock) Acquire() {
	mon := l.members.Monitor()
	mon.L.Lock()
	if l.state == types.NoToken {
		// Plan the broadcast under the monitor, send outside it.
		self := l.members.Self()
		type target struct {
			pid    types.PeerID
			handle Handle
		}
		var targets []target
		for _, pid := range l.members.Ids() {
			if pid == self {
				continue
			}
			if handle, err := l.members.Peer(pid); err == nil {
				targets = append(targets, target{pid: pid, handle: handle})
			}
		}
		mon.L.Unlock()

		for _, t := range targets {
			timestamp := l.clock.Tick()
			tokenRequestsSent.Inc()
			if err := t.handle.RequestToken(timestamp, self); err != nil {
				// An unreachable peer cannot grant anyway; skip it.
				l.log.Debugf("request to peer %d failed: %v", t.pid, err)
			}
		}
		mon.L.Lock()
	}

	for l.state == types.NoToken {
		mon.Wait()
	}
	l.state = types.TokenHeld
	mon.L.Unlock()
}

// Release ends the critical section and tries to hand the token to the
// first eligible requester. When a hand-off fails the token is rolled
// back to its pre-attempt value and the scan moves on; when nobody is
// eligible the token simply stays resident. Idempotent without the
// token.
func (l *TokenLock) Release() {
	mon := l.members.Monitor()
	mon.L.Lock()
	defer mon.L.Unlock()

	if l.state == types.NoToken {
		return
	}
	l.state = types.TokenPresent

	self := l.members.Self()
	pids := l.members.Ids()
	start := 0
	for i, pid := range pids {
		if pid == self {
			start = i
			break
		}
	}

	for i := 1; i < len(pids); i++ {
		pid := pids[(start+i)%len(pids)]
		if pid == self || l.request[pid] <= l.token[pid] {
			continue
		}
		handle, err := l.members.Peer(pid)
		if err != nil {
			continue
		}

		snapshot := l.token.Clone()
		l.token[self] = l.clock.Tock()
		l.token[pid] = l.clock.Tick()

		if err := handle.ObtainToken(l.token.Clone()); err != nil {
			tokenHandoffFailures.Inc()
			l.log.Warnf("hand-off to peer %d failed, keeping token: %v", pid, err)
			l.token = snapshot
			continue
		}
		tokenHandoffs.Inc()
		l.state = types.NoToken
		l.log.Debugf("token handed to peer %d", pid)
		return
	}
}

// RequestToken is the inbound request from peer pid, stamped with its
// clock. The local clock moves to max(stamp, clock+1) and the request
// table records that new value, keeping the recorded request monotone
// with the clock. When the token is resident and idle it is handed off
// right away; the opportunistic release must run after the monitor is
// dropped, because handing off calls back into the requester.
func (l *TokenLock) RequestToken(timestamp uint64, pid types.PeerID) {
	tokenRequestsReceived.Inc()
	mon := l.members.Monitor()
	mon.L.Lock()
	now := l.clock.Sync(timestamp)
	if now > l.request[pid] {
		l.request[pid] = now
	}
	handoff := l.state == types.TokenPresent
	mon.L.Unlock()

	if handoff {
		l.Release()
	}
}

// ObtainToken installs a token received from the previous holder and
// wakes whoever is blocked in Acquire.
func (l *TokenLock) ObtainToken(token types.Token) {
	mon := l.members.Monitor()
	mon.L.Lock()
	defer mon.L.Unlock()

	l.token = token
	l.state = types.TokenPresent
	l.clock.Sync(token[l.members.Self()])
	l.log.Debugf("token received, clock at %d", l.clock.Tock())
	mon.Broadcast()
}

// RegisterPeer extends the token with a zero entry for a joining peer
// while the token is resident. Called by the directory with the
// monitor held; never changes the lock state.
func (l *TokenLock) RegisterPeer(pid types.PeerID) {
	if l.state == types.NoToken || l.token == nil {
		return
	}
	if _, ok := l.token[pid]; !ok {
		l.token[pid] = 0
	}
}

// UnregisterPeer drops a departing peer from the token when resident
// and always forgets its outstanding request. Called by the directory
// with the monitor held; never changes the lock state.
func (l *TokenLock) UnregisterPeer(pid types.PeerID) {
	if l.state != types.NoToken && l.token != nil {
		delete(l.token, pid)
	}
	delete(l.request, pid)
}

// Destroy hands the token over before departure. A held token is first
// released normally, which already prefers outstanding requesters;
// whatever is still resident afterwards is offered unconditionally to
// the peers in circular order. With no other peer, or when every offer
// fails over a full circle, the token is discarded: there is nobody
// left to serve it to.
func (l *TokenLock) Destroy() {
	mon := l.members.Monitor()

	mon.L.Lock()
	held := l.state == types.TokenHeld
	mon.L.Unlock()
	if held {
		l.Release()
	}

	mon.L.Lock()
	defer mon.L.Unlock()
	if l.state != types.TokenPresent {
		return
	}

	self := l.members.Self()
	pids := l.members.Ids()
	if len(pids) <= 1 {
		// Nobody left to serve; the token dies with us.
		l.state = types.NoToken
		l.log.Debugf("last peer standing, token discarded")
		return
	}
	start := 0
	for i, pid := range pids {
		if pid == self {
			start = i
			break
		}
	}

	for i := 1; i < len(pids); i++ {
		pid := pids[(start+i)%len(pids)]
		if pid == self {
			continue
		}
		handle, err := l.members.Peer(pid)
		if err != nil {
			continue
		}
		if err := handle.ObtainToken(l.token.Clone()); err != nil {
			l.log.Warnf("departure hand-off to peer %d failed: %v", pid, err)
			continue
		}
		tokenHandoffs.Inc()
		l.state = types.NoToken
		l.log.Infof("token handed to peer %d on departure", pid)
		return
	}

	l.log.Warnf("no peer accepted the token, discarding it")
	l.state = types.NoToken
}

// LockStatus is a consistent snapshot of the lock state, taken under
// the monitor.
type LockStatus struct {
	State    types.LockState
	Clock    uint64
	Token    types.Token
	Requests map[types.PeerID]uint64
}

func (l *TokenLock) Status() LockStatus {
	mon := l.members.Monitor()
	mon.L.Lock()
	defer mon.L.Unlock()

	requests := make(map[types.PeerID]uint64, len(l.request))
	for pid, ts := range l.request {
		requests[pid] = ts
	}
	return LockStatus{
		State:    l.state,
		Clock:    l.clock.Tock(),
		Token:    l.token.Clone(),
		Requests: requests,
	}
}

// DisplayStatus logs the state the way an operator wants to read it.
func (l *TokenLock) DisplayStatus() {
	s := l.Status()
	l.log.Infof("state   :: no token      : %v", s.State == types.NoToken)
	l.log.Infof("           token present : %v", s.State == types.TokenPresent)
	l.log.Infof("           token held    : %v", s.State == types.TokenHeld)
	l.log.Infof("request :: %v", s.Requests)
	l.log.Infof("token   :: %v", s.Token)
	l.log.Infof("time    :: %d", s.Clock)
}

var _ MembershipListener = (*TokenLock)(nil)

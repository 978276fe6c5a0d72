package types

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Token is the singleton permission object that circulates between
// peers. It maps every known peer id to the timestamp of the last
// request serviced for that peer; the grant rule hands the token to a
// peer whose recorded request timestamp exceeds its token entry.
//
// JSON object keys must be strings while the token is keyed by integer
// ids, so on the wire the token travels as a list of [id, timestamp]
// pairs and is rebuilt on receipt.
type Token map[PeerID]uint64

// Clone returns an independent copy, used to snapshot the token before
// a hand-off attempt so a transport failure can roll it back.
func (t Token) Clone() Token {
	if t == nil {
		return nil
	}
	c := make(Token, len(t))
	for pid, ts := range t {
		c[pid] = ts
	}
	return c
}

// Token implements json.Marshaler. Pairs are emitted sorted by id so
// the encoding is deterministic.
func (t Token) MarshalJSON() ([]byte, error) {
	pids := make([]PeerID, 0, len(t))
	for pid := range t {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	pairs := make([][2]uint64, 0, len(t))
	for _, pid := range pids {
		pairs = append(pairs, [2]uint64{uint64(pid), t[pid]})
	}
	return json.Marshal(pairs)
}

// Token implements json.Unmarshaler.
func (t *Token) UnmarshalJSON(data []byte) error {
	var pairs [][2]uint64
	if err := json.Unmarshal(data, &pairs); err != nil {
		return fmt.Errorf("token must be a list of [id, timestamp] pairs: %v", err)
	}
	m := make(Token, len(pairs))
	for _, pair := range pairs {
		m[PeerID(pair[0])] = pair[1]
	}
	*t = m
	return nil
}

package test

import (
	"testing"
	"time"

	"github.com/holmgr/go-dismutex/pkg/dismutex/core"
	"github.com/holmgr/go-dismutex/pkg/dismutex/types"
	"github.com/stretchr/testify/require"
)

func TestProtocol_BootstrapFirstPeerHoldsToken(t *testing.T) {
	cluster := CreateCluster(t, 1)
	defer cluster.Off()
	p1 := cluster.Peers[0]

	require.Equal(t, types.PeerID(1), p1.ID())
	s := p1.Status()
	require.Equal(t, types.TokenPresent, s.State)
	require.Equal(t, types.Token{1: 0}, s.Token)
}

func TestProtocol_SecondJoinerStartsEmptyHanded(t *testing.T) {
	cluster := CreateCluster(t, 1)
	defer cluster.Off()
	p1 := cluster.Peers[0]
	p2 := cluster.AddPeer()

	require.Equal(t, types.NoToken, p2.Status().State)
	s1 := p1.Status()
	require.Equal(t, types.TokenPresent, s1.State)
	require.Equal(t, types.Token{1: 0, 2: 0}, s1.Token,
		"the resident token grows an entry for the joiner")
}

func TestProtocol_SimpleHandoff(t *testing.T) {
	cluster := CreateCluster(t, 2)
	defer cluster.Off()
	p1, p2 := cluster.Peers[0], cluster.Peers[1]

	if !WaitThisOrTimeout(p2.Acquire, 5*time.Second) {
		PrintStackTrace(t)
		t.Fatal("acquire on the idle cluster timed out")
	}

	require.Equal(t, types.NoToken, p1.Status().State)
	require.NotZero(t, p1.Status().Requests[2])

	s2 := p2.Status()
	require.Equal(t, types.TokenHeld, s2.State)
	require.True(t, s2.Token[2] > s2.Token[1])

	p2.Release()
	require.Equal(t, types.TokenPresent, p2.Status().State)
}

func TestProtocol_ChainedHandoffIsFair(t *testing.T) {
	cluster := CreateCluster(t, 3)
	defer cluster.Off()
	p1, p2, p3 := cluster.Peers[0], cluster.Peers[1], cluster.Peers[2]

	if !WaitThisOrTimeout(p2.Acquire, 5*time.Second) {
		PrintStackTrace(t)
		t.Fatal("first acquire timed out")
	}

	acquired := make(chan struct{})
	go func() {
		p3.Acquire()
		close(acquired)
	}()

	// The third peer's request must land at the current holder before
	// it releases, or there is nothing to chain.
	require.Eventually(t, func() bool {
		return p2.Status().Requests[3] > 0
	}, 5*time.Second, 10*time.Millisecond)

	p2.Release()
	select {
	case <-acquired:
	case <-time.After(5 * time.Second):
		PrintStackTrace(t)
		t.Fatal("token never reached the third peer")
	}

	require.Equal(t, types.TokenHeld, p3.Status().State)
	require.Equal(t, types.NoToken, p1.Status().State)
	require.Equal(t, types.NoToken, p2.Status().State)
	p3.Release()
}

func TestProtocol_WriteReplicatesEverywhere(t *testing.T) {
	cluster := CreateCluster(t, 2)
	defer cluster.Off()
	p1, p2 := cluster.Peers[0], cluster.Peers[1]

	require.NoError(t, p1.Write("a stitch in time saves nine"))
	require.Equal(t, []string{"a stitch in time saves nine"}, p1.Records())
	require.Equal(t, []string{"a stitch in time saves nine"}, p2.Records())
}

func TestProtocol_RemoteReadAndCheck(t *testing.T) {
	cluster := CreateCluster(t, 1)
	defer cluster.Off()
	p1 := cluster.Peers[0]

	handle := core.NewRemoteHandle(p1.Addr())

	_, ok, err := handle.Read()
	require.NoError(t, err)
	require.False(t, ok, "an empty store reads as the absent value, not an error")

	require.NoError(t, p1.Write("fortune favours the bold"))
	record, ok, err := handle.Read()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "fortune favours the bold", record)

	pid, ptype, err := handle.Check()
	require.NoError(t, err)
	require.Equal(t, p1.ID(), pid)
	require.Equal(t, "fortune", ptype)
}

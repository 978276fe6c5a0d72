package fuzzy

import (
	"sync"
	"testing"
	"time"

	"github.com/holmgr/go-dismutex/pkg/dismutex/core"
	"github.com/holmgr/go-dismutex/pkg/dismutex/types"
	"github.com/holmgr/go-dismutex/test"
	"go.uber.org/goleak"
)

// A peer that requested the token and died unannounced must not stall
// the system: the hand-off fails, the token rolls back and the scan
// moves on to the next requester.
func Test_DeadPeerDuringHandoff(t *testing.T) {
	cluster := test.CreateCluster(t, 1)
	defer func() {
		if !test.WaitThisOrTimeout(cluster.Off, 30*time.Second) {
			t.Error("failed shutdown cluster")
			test.PrintStackTrace(t)
		}
		goleak.VerifyNone(t)
	}()
	p1 := cluster.Peers[0]

	// A phantom peer takes id 2 and dies without ever serving.
	deadAddr := test.DeadAddress(t)
	phantomID, _, err := cluster.Client.Register("fortune", deadAddr)
	if err != nil {
		t.Fatalf("failed registering the phantom. %v", err)
	}
	p3 := cluster.AddPeer()

	// Introduce the phantom to the holder and request on its behalf.
	h1 := core.NewRemoteHandle(p1.Addr())
	if err := h1.RegisterPeer(phantomID, deadAddr); err != nil {
		t.Fatalf("failed registering the phantom with peer 1. %v", err)
	}
	if err := h1.RequestToken(5, phantomID); err != nil {
		t.Fatalf("failed requesting on behalf of the phantom. %v", err)
	}

	// The opportunistic hand-off to the dead peer failed and rolled
	// back; the token is still with peer 1.
	s1 := p1.Status()
	if s1.State != types.TokenPresent {
		t.Fatalf("expected the token to stay with peer 1, state is %v", s1.State)
	}
	if s1.Token[phantomID] != 0 {
		t.Fatalf("failed hand-off must restore the token, entry is %d", s1.Token[phantomID])
	}

	// A live requester gets the token past the dead entry.
	if !test.WaitThisOrTimeout(p3.Acquire, 5*time.Second) {
		test.PrintStackTrace(t)
		t.Fatal("live peer never got the token")
	}
	s3 := p3.Status()
	if s3.State != types.TokenHeld {
		t.Fatalf("expected peer 3 to hold the token, state is %v", s3.State)
	}
	if s3.Token[phantomID] != 0 {
		t.Fatalf("the dead peer's entry must be unchanged, got %d", s3.Token[phantomID])
	}
	if p1.Status().State != types.NoToken {
		t.Fatal("peer 1 should have given the token away")
	}
	p3.Release()
}

// A departing holder hands the token over and disappears from the name
// service.
func Test_GracefulHolderDeparture(t *testing.T) {
	cluster := test.CreateCluster(t, 2)
	defer func() {
		if !test.WaitThisOrTimeout(cluster.Off, 30*time.Second) {
			t.Error("failed shutdown cluster")
			test.PrintStackTrace(t)
		}
		goleak.VerifyNone(t)
	}()
	p1, p2 := cluster.Peers[0], cluster.Peers[1]

	p1.Destroy()

	if p2.Status().State != types.TokenPresent {
		t.Fatalf("the survivor should have received the token, state is %v", p2.Status().State)
	}
	listing, err := cluster.Client.RequireAll("fortune")
	if err != nil {
		t.Fatalf("failed listing peers. %v", err)
	}
	if len(listing) != 1 || listing[0].ID != p2.ID() {
		t.Fatalf("the name service should only list the survivor, got %v", listing)
	}
}

// Concurrent writers are serialized by the token: both replicas end up
// with the same records in the same order.
func Test_WriteSerialization(t *testing.T) {
	cluster := test.CreateCluster(t, 2)
	defer func() {
		if !test.WaitThisOrTimeout(cluster.Off, 30*time.Second) {
			t.Error("failed shutdown cluster")
			test.PrintStackTrace(t)
		}
		goleak.VerifyNone(t)
	}()
	p1, p2 := cluster.Peers[0], cluster.Peers[1]

	group := sync.WaitGroup{}
	group.Add(2)
	go func() {
		defer group.Done()
		if err := p1.Write("east or west home is best"); err != nil {
			t.Errorf("write on peer 1 failed. %v", err)
		}
	}()
	go func() {
		defer group.Done()
		if err := p2.Write("practice makes perfect"); err != nil {
			t.Errorf("write on peer 2 failed. %v", err)
		}
	}()

	if !test.WaitThisOrTimeout(group.Wait, 15*time.Second) {
		test.PrintStackTrace(t)
		t.Fatal("concurrent writes never finished")
	}

	first, second := p1.Records(), p2.Records()
	if len(first) != 2 {
		t.Fatalf("expected 2 records, found %d", len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("replicas disagree at %d: %q vs %q", i, first[i], second[i])
		}
	}
}

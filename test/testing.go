package test

import (
	"fmt"
	"io/ioutil"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/holmgr/go-dismutex/pkg/dismutex"
	"github.com/holmgr/go-dismutex/pkg/dismutex/core"
	"github.com/holmgr/go-dismutex/pkg/dismutex/definition"
	"github.com/holmgr/go-dismutex/pkg/dismutex/nameservice"
	"github.com/holmgr/go-dismutex/pkg/dismutex/types"
)

// Cluster is a name service plus a set of peers, all on loopback with
// kernel-assigned ports. Peers are started strictly one after another,
// so ids are 1..n in creation order and the first peer is always the
// bootstrap holder.
type Cluster struct {
	T      *testing.T
	NS     *nameservice.Server
	Client *nameservice.Client
	Peers  []*dismutex.Peer
	dir    string
}

func CreateCluster(t *testing.T, size int) *Cluster {
	dir, err := ioutil.TempDir("", "dismutex-cluster")
	if err != nil {
		t.Fatalf("failed creating cluster directory. %v", err)
	}

	ns, err := nameservice.NewServer(
		types.Address{Host: "127.0.0.1", Port: 0},
		definition.NewDefaultLogger("name_service"),
	)
	if err != nil {
		t.Fatalf("failed creating name service. %v", err)
	}
	ns.Start()

	c := &Cluster{
		T:      t,
		NS:     ns,
		Client: nameservice.NewClient(ns.Addr()),
		dir:    dir,
	}
	for i := 0; i < size; i++ {
		c.AddPeer()
	}
	return c
}

// AddPeer starts one more peer and waits for it to join.
func (c *Cluster) AddPeer() *dismutex.Peer {
	index := len(c.Peers)
	conf := definition.DefaultConfiguration("fortune")
	conf.Bind = types.Address{Host: "127.0.0.1", Port: 0}
	conf.NameService = c.NS.Addr()
	conf.DatabasePath = filepath.Join(c.dir, fmt.Sprintf("peer-%d.db", index))
	conf.Logger = definition.NewDefaultLogger(fmt.Sprintf("peer-%d", index+1))

	peer, err := dismutex.NewPeer(conf)
	if err != nil {
		c.T.Fatalf("failed creating peer %d. %v", index, err)
	}
	if err := peer.Start(); err != nil {
		c.T.Fatalf("failed starting peer %d. %v", index, err)
	}
	c.Peers = append(c.Peers, peer)
	return peer
}

// Off destroys every peer in creation order, stops the name service
// and waits for every worker to drain.
func (c *Cluster) Off() {
	for _, peer := range c.Peers {
		peer.Destroy()
	}
	c.NS.Close()
	core.InvokerInstance().Stop()
	os.RemoveAll(c.dir)
}

// DeadAddress returns a loopback address nothing listens on.
func DeadAddress(t *testing.T) types.Address {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed probing for a free port. %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return types.Address{Host: "127.0.0.1", Port: port}
}

func PrintStackTrace(t *testing.T) {
	buf := make([]byte, 1<<16)
	runtime.Stack(buf, true)
	t.Errorf("%s", buf)
}

// WaitThisOrTimeout runs cb and reports whether it finished in time.
func WaitThisOrTimeout(cb func(), duration time.Duration) bool {
	done := make(chan bool, 1)
	go func() {
		cb()
		done <- true
	}()
	select {
	case <-done:
		return true
	case <-time.After(duration):
		return false
	}
}

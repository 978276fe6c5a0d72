package types

// PeerConfiguration carries everything a peer needs to come up.
// definition.DefaultConfiguration builds one with local defaults;
// NewPeer fills in only a missing Logger.
type PeerConfiguration struct {
	// Peer type as registered with the name service. Peers only ever
	// discover peers of their own type.
	Type string

	// Address the listener binds to. Port 0 asks the kernel for a free
	// port; the published address always carries the real one.
	Bind Address

	// Address of the name service.
	NameService Address

	// Path of the record store file. Created on first write when it
	// does not exist.
	DatabasePath string

	// Optional host:port for the Prometheus metrics endpoint; empty
	// disables it.
	MetricsBind string

	// Emit debug output.
	Debug bool

	// Logger used by every component of this peer.
	Logger Logger
}

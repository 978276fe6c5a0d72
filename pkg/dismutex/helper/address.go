package helper

import (
	"net"

	"github.com/holmgr/go-dismutex/pkg/dismutex/types"
	"github.com/pkg/errors"
)

// ExternalInterface translates a host name into the machine's external
// address rather than 127.0.0.1, so the published address is reachable
// from peers on other hosts. The loopback address is only used when it
// is the sole interface the name resolves to. An empty host is kept
// as-is (bind on all interfaces).
func ExternalInterface(addr types.Address) (types.Address, error) {
	if addr.Host == "" {
		return addr, nil
	}
	ips, err := net.LookupHost(addr.Host)
	if err != nil {
		return types.Address{}, errors.Wrapf(types.ErrInvalidAddress, "resolving %q: %v", addr.Host, err)
	}
	if len(ips) == 0 {
		return types.Address{}, errors.Wrapf(types.ErrInvalidAddress, "%q resolves to nothing", addr.Host)
	}
	chosen := ips[0]
	if len(ips) > 1 {
		for _, ip := range ips {
			if ip != "127.0.0.1" && ip != "::1" {
				chosen = ip
				break
			}
		}
	}
	return types.Address{Host: chosen, Port: addr.Port}, nil
}

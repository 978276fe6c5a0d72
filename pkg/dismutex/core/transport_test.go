package core_test

import (
	"encoding/json"
	"testing"

	"github.com/holmgr/go-dismutex/pkg/dismutex/core"
	"github.com/holmgr/go-dismutex/pkg/dismutex/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func startListener(t *testing.T, registry *core.Registry) *core.Listener {
	listener, err := core.NewListener(types.Address{Host: "127.0.0.1", Port: 0}, registry, testLogger("listener"))
	require.NoError(t, err)
	listener.Start()
	return listener
}

func TestTransport_RoundTrip(t *testing.T) {
	registry := core.NewRegistry()
	registry.Handle("echo", func(args []json.RawMessage) (interface{}, error) {
		var s string
		require.NoError(t, json.Unmarshal(args[0], &s))
		return s, nil
	})
	listener := startListener(t, registry)
	defer listener.Close()

	caller := core.NewCaller(listener.Addr())
	result, err := caller.Call("echo", "fortune favours the bold")
	require.NoError(t, err)

	var echoed string
	require.NoError(t, json.Unmarshal(result, &echoed))
	require.Equal(t, "fortune favours the bold", echoed)
}

func TestTransport_NullResultIsAbsentValue(t *testing.T) {
	registry := core.NewRegistry()
	registry.Handle("nothing", func(args []json.RawMessage) (interface{}, error) {
		return nil, nil
	})
	listener := startListener(t, registry)
	defer listener.Close()

	result, err := core.NewCaller(listener.Addr()).Call("nothing")
	require.NoError(t, err)
	require.Nil(t, result)
}

func TestTransport_ErrorKindSurvivesTheWire(t *testing.T) {
	registry := core.NewRegistry()
	registry.Handle("lookup", func(args []json.RawMessage) (interface{}, error) {
		return nil, errors.Wrap(types.ErrPeerNotFound, "peer 9")
	})
	listener := startListener(t, registry)
	defer listener.Close()

	_, err := core.NewCaller(listener.Addr()).Call("lookup")
	require.Error(t, err)
	require.Equal(t, types.ErrPeerNotFound, errors.Cause(err))
}

func TestTransport_UnknownMethodIsAnError(t *testing.T) {
	listener := startListener(t, core.NewRegistry())
	defer listener.Close()

	_, err := core.NewCaller(listener.Addr()).Call("no_such_method")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no_such_method")
}

func TestTransport_UnreachablePeerIsCommunicationFailure(t *testing.T) {
	// Bind and immediately close to get a port nobody listens on.
	listener := startListener(t, core.NewRegistry())
	addr := listener.Addr()
	listener.Close()

	_, err := core.NewCaller(addr).Call("check")
	require.Error(t, err)
	require.Equal(t, types.ErrCommunication, errors.Cause(err))
}

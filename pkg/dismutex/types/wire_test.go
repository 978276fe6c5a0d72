package types

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestAddress_TravelsAsPair(t *testing.T) {
	addr := Address{Host: "10.0.0.7", Port: 4242}
	data, err := json.Marshal(addr)
	require.NoError(t, err)
	require.JSONEq(t, `["10.0.0.7", 4242]`, string(data))

	var decoded Address
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, addr, decoded)
}

func TestPeerEntry_TravelsAsPair(t *testing.T) {
	entry := PeerEntry{ID: 3, Address: Address{Host: "10.0.0.7", Port: 4242}}
	data, err := json.Marshal(entry)
	require.NoError(t, err)
	require.JSONEq(t, `[3, ["10.0.0.7", 4242]]`, string(data))

	var decoded PeerEntry
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, entry, decoded)
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("localhost:4242")
	require.NoError(t, err)
	require.Equal(t, Address{Host: "localhost", Port: 4242}, addr)

	_, err = ParseAddress("no-port-here")
	require.Equal(t, ErrInvalidAddress, errors.Cause(err))
}

func TestErrorNames_RoundTrip(t *testing.T) {
	cases := []struct {
		err  error
		name string
	}{
		{ErrCommunication, WireErrCommunication},
		{ErrPeerNotFound, WireErrNotFound},
	}
	for _, c := range cases {
		require.Equal(t, c.name, ErrorName(errors.Wrap(c.err, "context")))
		rebuilt := NamedError(&WireError{Name: c.name, Args: []string{"context"}})
		require.Equal(t, c.err, errors.Cause(rebuilt))
	}
}

func TestNamedError_UnknownNameCollapses(t *testing.T) {
	err := NamedError(&WireError{Name: "KeyboardInterrupt", Args: []string{"boom"}})
	require.Equal(t, ErrUnexpectedReply, err)
}

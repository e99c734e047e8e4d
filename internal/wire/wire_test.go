package wire

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipe() (*Conn, *Conn) {
	a, b := net.Pipe()
	return NewConn(a), NewConn(b)
}

func TestUint8RoundTrip(t *testing.T) {
	client, server := pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		require.NoError(t, client.WriteUint8(7))
		require.NoError(t, client.Flush())
	}()

	got, err := server.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, byte(7), got)
}

func TestInt64RoundTrip(t *testing.T) {
	client, server := pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		require.NoError(t, client.WriteInt64(-12345))
		require.NoError(t, client.Flush())
	}()

	got, err := server.ReadInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(-12345), got)
}

func TestBytesRoundTrip(t *testing.T) {
	client, server := pipe()
	defer client.Close()
	defer server.Close()

	want := []byte("hello rendezvous")
	go func() {
		require.NoError(t, client.WriteBytes(want))
		require.NoError(t, client.Flush())
	}()

	got, err := server.ReadBytes()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestEmptyBytesRoundTrip(t *testing.T) {
	client, server := pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		require.NoError(t, client.WriteBytes([]byte{}))
		require.NoError(t, client.Flush())
	}()

	got, err := server.ReadBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{}, got)
}

func TestStringVectorRoundTrip(t *testing.T) {
	client, server := pipe()
	defer client.Close()
	defer server.Close()

	want := [][]byte{[]byte("a"), []byte("bb"), []byte("ccc")}
	go func() {
		require.NoError(t, client.WriteStringVector(want))
		require.NoError(t, client.Flush())
	}()

	got, err := server.ReadStringVector()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestReadAfterCloseIsConnectionLost(t *testing.T) {
	client, server := pipe()
	client.Close()

	_, err := server.ReadUint8()
	assert.ErrorIs(t, err, ErrConnectionLost)
}

func TestReadBytesRejectsOversizedLength(t *testing.T) {
	client, server := pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		require.NoError(t, client.WriteInt64(maxBytesLen+1))
		require.NoError(t, client.Flush())
	}()

	_, err := server.ReadBytes()
	assert.ErrorIs(t, err, ErrConnectionLost)
}

func TestReadStringVectorRejectsOversizedCount(t *testing.T) {
	client, server := pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		require.NoError(t, client.WriteInt64(maxVectorCount+1))
		require.NoError(t, client.Flush())
	}()

	_, err := server.ReadStringVector()
	assert.ErrorIs(t, err, ErrConnectionLost)
}

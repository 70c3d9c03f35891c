package export

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExport_WritesNewlineDelimitedPayload(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	lines := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, _ := bufio.NewReader(conn).ReadString('\n')
		lines <- line
	}()

	e := New(ln.Addr().String(), 2*time.Second, zerolog.Nop())
	err = e.Export(`{"sensor":1,"entries":["0.16 70.00 0.16 2026-01-18 16:06 (1768773960)"]}`)
	require.NoError(t, err)

	select {
	case got := <-lines:
		assert.Equal(t, `{"sensor":1,"entries":["0.16 70.00 0.16 2026-01-18 16:06 (1768773960)"]}`+"\n", got)
	case <-time.After(2 * time.Second):
		t.Fatal("sink never received the payload")
	}
}

func TestExport_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close() // nothing listening anymore

	e := New(addr, 500*time.Millisecond, zerolog.Nop())
	assert.Error(t, e.Export("{}"))
}

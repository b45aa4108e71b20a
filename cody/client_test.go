package cody

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveOneConn runs a Server's decode/dispatch loop over conn until the
// resolver terminates the session or the peer closes conn. It's the same shape cmd/codyhelperd's listener uses per
// accepted connection, trimmed to what a test needs.
func serveOneConn(t *testing.T, conn net.Conn, resolver Resolver) {
	t.Helper()
	s := NewServer(nil, resolver)
	for {
		res, err := s.In.Read(conn)
		require.NoError(t, err)
		switch res {
		case ResultEAgain:
			time.Sleep(time.Millisecond)
			continue
		case ResultEOF:
			return
		case ResultOk:
		default:
			t.Fatalf("unexpected read result %v", res)
		}
		terminate := s.ParseRequests()
		for {
			wres, werr := s.Out.Write(conn)
			require.NoError(t, werr)
			if wres == ResultOk {
				break
			}
			require.Equal(t, ResultEAgain, wres)
			time.Sleep(time.Millisecond)
		}
		if terminate {
			return
		}
	}
}

func TestClientOverLoopbackConnect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, aerr := ln.Accept()
		require.NoError(t, aerr)
		defer conn.Close()
		serveOneConn(t, conn, NewDefaultResolver())
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	client := NewClient(nil, conn)
	resp, err := client.Connect(ProtocolVersion, "gcc", "13.2")
	require.NoError(t, err)
	assert.Equal(t, VerbHello, resp.Verb)
	assert.Equal(t, []string{"1", DefaultAgentIdent}, resp.Args)

	resp, err = client.ModuleImport("foo")
	require.NoError(t, err)
	assert.Equal(t, VerbModuleCMI, resp.Verb)
	assert.Equal(t, []string{"foo.cmi"}, resp.Args)

	conn.Close()
	<-done
}

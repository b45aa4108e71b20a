package cody

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectPairHelloAndModuleExport(t *testing.T) {
	client, _ := NewDirectPair(nil, NewDefaultResolver())

	hello, err := client.Connect(ProtocolVersion, "gcc", "13.2")
	require.NoError(t, err)
	assert.Equal(t, VerbHello, hello.Verb)
	assert.Equal(t, []string{"1", DefaultAgentIdent}, hello.Args)

	resp, err := client.ModuleExport("foo")
	require.NoError(t, err)
	assert.Equal(t, VerbModuleCMI, resp.Verb)
	assert.Equal(t, []string{"foo.cmi"}, resp.Args)
}

func TestDirectPairBatchedRequests(t *testing.T) {
	client, _ := NewDirectPair(nil, NewDefaultResolver())

	_, err := client.Connect(ProtocolVersion, "gcc", "13.2")
	require.NoError(t, err)

	client.QueueModuleRepo()
	client.QueueModuleExport("bar")
	client.QueueModuleImport("foo")
	responses, err := client.WaitUntilReady()
	require.NoError(t, err)
	require.Len(t, responses, 3)
	assert.Equal(t, VerbModuleRepo, responses[0].Verb)
	assert.Equal(t, []string{DefaultRepository}, responses[0].Args)
	assert.Equal(t, VerbModuleCMI, responses[1].Verb)
	assert.Equal(t, []string{"bar.cmi"}, responses[1].Args)
	assert.Equal(t, VerbModuleCMI, responses[2].Verb)
	assert.Equal(t, []string{"foo.cmi"}, responses[2].Args)
}

func TestDirectPairProtocolErrorOnMalformedRequest(t *testing.T) {
	client, _ := NewDirectPair(nil, NewDefaultResolver())
	_, err := client.Connect(ProtocolVersion, "gcc", "13.2")
	require.NoError(t, err)

	_, err = client.ModuleCompiled("")
	require.Error(t, err)
	perr, ok := err.(*ProtocolError)
	require.True(t, ok)
	assert.Equal(t, "malformed_request", perr.Code)
}

func TestDirectPairRefusalTerminatesSession(t *testing.T) {
	client, _ := NewDirectPair(nil, &refusingResolver{})
	_, err := client.Connect(ProtocolVersion, "gcc", "13.2")
	assert.ErrorIs(t, err, ErrClosed)
}

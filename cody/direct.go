package cody

import "log"

// NewDirectPair wires a Client directly to a Server without a kernel
// transport: WaitUntilReady hands the Client's outgoing buffer straight to
// the Server's incoming one (and the Server's response batch straight back),
// a same-thread handoff that never reports EAgain. This is the "direct
// (in-process) connection" mode of spec.md §5, useful for tests and for a
// single binary acting as both compiler front end and helper.
func NewDirectPair(logger *log.Logger, resolver Resolver) (*Client, *Server) {
	server := NewServer(logger, resolver)
	client := &Client{
		logger: logger,
		direct: server,
		Out:    &MessageBuffer{},
		In:     &MessageBuffer{},
	}
	return client, server
}

// flushDirect implements WaitUntilReady for a direct-mode Client: it hands
// the outgoing buffer to the paired Server, runs its dispatch loop
// synchronously, and hands the resulting response batch back.
func (c *Client) flushDirect() ([]Response, error) {
	n := len(c.pendingVerbs)
	c.Out.PrepareToWrite()
	c.direct.In.Append(c.Out.Bytes())
	c.Out.Reset()

	terminate := c.direct.ParseRequests()
	c.In.Append(c.direct.Out.Bytes())
	c.direct.Out.Reset()

	responses, err := c.decodeResponses(n)
	if err != nil {
		return responses, err
	}
	if terminate {
		c.direct = nil
	}
	return responses, nil
}

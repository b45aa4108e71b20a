package cody

import (
	"log"
	"time"
)

// Client is the compiler-side mirror of Server: it encodes requests into an
// outgoing MessageBuffer, and decodes a matching batch of responses from an
// incoming one. Like Server, a Client is not safe for concurrent use.
//
// Individual typed operations (Connect, ModuleRepo, ModuleExport, ...) may
// be batched: each just appends its request and a placeholder to the
// pending-response queue, deferring the actual flush (write + read +
// decode) until WaitUntilReady is called, or until an operation that must
// see its own response is invoked directly.
type Client struct {
	logger *log.Logger
	conn   Conn
	direct *Server // set by NewDirectPair; bypasses conn entirely

	Out *MessageBuffer
	In  *MessageBuffer

	pendingVerbs []string
}

// NewClient returns a Client that talks to conn.
func NewClient(logger *log.Logger, conn Conn) *Client {
	return &Client{
		logger: logger,
		conn:   conn,
		Out:    &MessageBuffer{},
		In:     &MessageBuffer{},
	}
}

func (c *Client) queue(verb string, args ...[]byte) {
	c.Out.BeginLine()
	c.Out.AppendWord([]byte(verb), false)
	for _, a := range args {
		c.Out.AppendWord(a, false)
	}
	c.pendingVerbs = append(c.pendingVerbs, verb)
}

// QueueConnect appends a HELLO request without flushing.
func (c *Client) QueueConnect(version int, agent, ident string) {
	c.Out.BeginLine()
	c.Out.AppendWord([]byte(VerbHello), false)
	c.Out.AppendInteger(int64(version))
	c.Out.AppendWord([]byte(agent), false)
	c.Out.AppendWord([]byte(ident), false)
	c.pendingVerbs = append(c.pendingVerbs, VerbHello)
}

// QueueModuleRepo appends a MODULE-REPO request without flushing.
func (c *Client) QueueModuleRepo() { c.queue(VerbModuleRepo) }

// QueueModuleExport appends a MODULE-EXPORT request without flushing.
func (c *Client) QueueModuleExport(module string) {
	c.queue(VerbModuleExport, []byte(module))
}

// QueueModuleImport appends a MODULE-IMPORT request without flushing.
func (c *Client) QueueModuleImport(module string) {
	c.queue(VerbModuleImport, []byte(module))
}

// QueueModuleCompiled appends a MODULE-COMPILED request without flushing.
func (c *Client) QueueModuleCompiled(module string) {
	c.queue(VerbModuleCompiled, []byte(module))
}

// QueueIncludeTranslate appends an INCLUDE-TRANSLATE request without
// flushing.
func (c *Client) QueueIncludeTranslate(include string) {
	c.queue(VerbIncludeTranslate, []byte(include))
}

// WaitUntilReady flushes every queued request (write, then read the
// matching response batch) and returns the decoded responses in request
// order. It blocks, retrying EAgain/EIntr internally; callers that drive
// their own poll loop should use Out.Write/In.Read/In.Lex directly instead.
func (c *Client) WaitUntilReady() ([]Response, error) {
	n := len(c.pendingVerbs)
	if n == 0 {
		return nil, nil
	}
	if c.direct != nil {
		return c.flushDirect()
	}

	c.Out.PrepareToWrite()
	if err := c.drainWrite(); err != nil {
		return nil, err
	}
	if err := c.fillRead(); err != nil {
		return nil, err
	}
	return c.decodeResponses(n)
}

// drainWrite loops Out.Write to completion, retrying retriable results.
func (c *Client) drainWrite() error {
	for {
		res, err := c.Out.Write(c.conn)
		if err != nil {
			return err
		}
		switch res {
		case ResultOk:
			return nil
		case ResultEIntr:
			continue
		default: // ResultEAgain
			time.Sleep(time.Millisecond)
		}
	}
}

// fillRead loops In.Read until a complete response batch has arrived.
func (c *Client) fillRead() error {
	for {
		res, err := c.In.Read(c.conn)
		if err != nil {
			return err
		}
		switch res {
		case ResultOk:
			return nil
		case ResultEOF:
			return ErrClosed
		case ResultEIntr:
			continue
		case ResultInvalidInput:
			return &ProtocolError{Code: "malformed_response"}
		default: // ResultEAgain
			time.Sleep(time.Millisecond)
		}
	}
}

func (c *Client) decodeResponses(n int) ([]Response, error) {
	responses := make([]Response, 0, n)
	var words []Word
	for len(responses) < n {
		res, _ := c.In.Lex(&words)
		if res == LexNoMessage {
			break
		}
		if res == LexInvalidInput {
			return responses, &ProtocolError{Code: "malformed_response"}
		}
		if len(words) == 0 {
			continue
		}
		responses = append(responses, Response{
			Verb: words[0].String(),
			Args: wordsToStrings(words[1:]),
		})
	}
	c.pendingVerbs = c.pendingVerbs[:0]
	c.In.Reset()
	return responses, nil
}

// --- synchronous typed operations: queue then immediately flush ---

// Connect performs a HELLO and returns its response.
func (c *Client) Connect(version int, agent, ident string) (Response, error) {
	c.QueueConnect(version, agent, ident)
	return c.one()
}

// ModuleRepo performs a MODULE-REPO and returns its response.
func (c *Client) ModuleRepo() (Response, error) {
	c.QueueModuleRepo()
	return c.one()
}

// ModuleExport performs a MODULE-EXPORT and returns its response.
func (c *Client) ModuleExport(module string) (Response, error) {
	c.QueueModuleExport(module)
	return c.one()
}

// ModuleImport performs a MODULE-IMPORT and returns its response.
func (c *Client) ModuleImport(module string) (Response, error) {
	c.QueueModuleImport(module)
	return c.one()
}

// ModuleCompiled performs a MODULE-COMPILED and returns its response.
func (c *Client) ModuleCompiled(module string) (Response, error) {
	c.QueueModuleCompiled(module)
	return c.one()
}

// IncludeTranslate performs an INCLUDE-TRANSLATE and returns its response.
func (c *Client) IncludeTranslate(include string) (Response, error) {
	c.QueueIncludeTranslate(include)
	return c.one()
}

func (c *Client) one() (Response, error) {
	responses, err := c.WaitUntilReady()
	if err != nil {
		return Response{}, err
	}
	if len(responses) == 0 {
		return Response{}, ErrClosed
	}
	r := responses[0]
	if r.IsError() {
		return r, &ProtocolError{Code: r.ErrorCode()}
	}
	return r, nil
}

// Package cody implements the client/server protocol a C++ compiler uses to
// talk to a module-map oracle: a line-oriented, quoting/escaping text framing
// (MessageBuffer), a server-side dispatcher bound to a pluggable Resolver,
// a default Resolver implementing the CMI naming rules, and a Client mirror
// for the compiler side.
package cody

import "errors"

// Result is the outcome of one MessageBuffer.Read or MessageBuffer.Write
// attempt against a transport. It distinguishes retriable suspensions
// (EAgain, EIntr) from terminal outcomes (Ok, EOF, InvalidInput, Errno),
// mirroring the small closed set of outcomes a nonblocking read()/write()
// syscall can produce.
type Result int

const (
	// ResultOk indicates a complete batch was read, or the outgoing buffer
	// was fully written.
	ResultOk Result = iota
	// ResultEAgain indicates the transport would block; the caller should
	// poll/select/epoll on the descriptor and retry.
	ResultEAgain
	// ResultEIntr indicates the underlying syscall was interrupted; callers
	// typically retry immediately.
	ResultEIntr
	// ResultEOF indicates a zero-byte read: the peer closed the transport.
	ResultEOF
	// ResultInvalidInput indicates malformed framing was detected.
	ResultInvalidInput
	// ResultErrno indicates a fatal, non-retriable I/O error.
	ResultErrno
)

func (r Result) String() string {
	switch r {
	case ResultOk:
		return "ok"
	case ResultEAgain:
		return "eagain"
	case ResultEIntr:
		return "eintr"
	case ResultEOF:
		return "eof"
	case ResultInvalidInput:
		return "invalid_input"
	case ResultErrno:
		return "errno"
	default:
		return "unknown"
	}
}

// LexResult is the outcome of one MessageBuffer.Lex call.
type LexResult int

const (
	// LexOk indicates words was populated with one decoded line.
	LexOk LexResult = iota
	// LexNoMessage indicates no further lines remain in the batch.
	LexNoMessage
	// LexInvalidInput indicates the line was malformed; words holds a
	// single element containing the raw offending line.
	LexInvalidInput
)

// ErrClosed is returned by a Client when the session has ended: the
// transport reached EOF, or a flushed batch came back with no response.
var ErrClosed = errors.New("cody: session closed")

// ProtocolError reports a protocol-level failure seen by a Client. For an
// ERROR response, Code is the short underscore-joined code the peer
// returned, with any trailing human text dropped; for a response batch that
// could not be decoded, Code is "malformed_response".
type ProtocolError struct {
	Code string
}

func (e *ProtocolError) Error() string {
	return "cody: " + e.Code
}

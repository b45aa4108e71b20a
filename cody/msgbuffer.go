package cody

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strconv"
	"syscall"
	"time"
)

// Conn is the byte-stream abstraction MessageBuffer.Read and
// MessageBuffer.Write operate over: something that can have a short
// read/write deadline imposed on it so a single nonblocking attempt can be
// emulated without the caller having to set the descriptor O_NONBLOCK out of
// band. Any net.Conn (such as *net.TCPConn or *net.UnixConn) and *os.File
// (pipes) satisfy it.
type Conn interface {
	io.Reader
	io.Writer
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// readChunk is the scratch size used per Read attempt. Module-mapper
// messages are short command lines; this comfortably holds a batch in one
// syscall in the common case without over-allocating.
const readChunk = 4096

// MessageBuffer is the framing codec described in the package doc: a
// growable byte buffer plus cursors for the encode (write) and decode
// (read/Lex) directions. A single instance is meant to be driven in one
// direction at a time; a Server or Client holds one for outgoing traffic
// and one for incoming traffic.
type MessageBuffer struct {
	buf         []byte
	atLineStart bool // true once BeginLine has run, before the first AppendWord of that line
	writeOff    int  // bytes of buf already flushed by Write
	cursor      int  // bytes of buf already consumed by Lex
}

// BeginLine terminates whatever line is currently open (with " ;\n", marking
// it as continued: more lines follow in this batch) and starts a new one.
// The very first call on an empty buffer starts the first line with nothing
// to terminate.
func (b *MessageBuffer) BeginLine() {
	if len(b.buf) > 0 {
		b.buf = append(b.buf, ' ', ';', '\n')
	}
	b.atLineStart = true
}

// AppendWord appends word to the line currently being built, quoting it if
// forceQuote is set, or the word is empty, or it contains any byte outside
// [-+_/%.A-Za-z0-9].
func (b *MessageBuffer) AppendWord(word []byte, forceQuote bool) {
	if !b.atLineStart {
		b.buf = append(b.buf, ' ')
	}
	b.atLineStart = false
	if needsQuote(word, forceQuote) {
		b.buf = appendQuoted(b.buf, word)
	} else {
		b.buf = append(b.buf, word...)
	}
}

// AppendInteger appends u in decimal, unquoted.
func (b *MessageBuffer) AppendInteger(u int64) {
	b.AppendWord([]byte(strconv.FormatInt(u, 10)), false)
}

// PrepareToWrite closes the outgoing batch by terminating the final
// (currently open) line with a bare newline -- no continuation marker --
// signaling that no further lines follow. It is a no-op on an empty buffer.
func (b *MessageBuffer) PrepareToWrite() {
	if len(b.buf) == 0 {
		return
	}
	b.buf = append(b.buf, '\n')
	b.atLineStart = false
}

// Reset discards all buffered content and rewinds every cursor. Used after
// a batch has been fully consumed or flushed.
func (b *MessageBuffer) Reset() {
	b.buf = b.buf[:0]
	b.atLineStart = false
	b.writeOff = 0
	b.cursor = 0
}

// Bytes returns the buffer's current content. Callers must not retain it
// across a subsequent mutating call.
func (b *MessageBuffer) Bytes() []byte { return b.buf }

// Append adds raw bytes directly to the buffer, as if they had arrived via
// Read. Used by the direct (in-process) transport to hand one endpoint's
// outgoing buffer to the other's incoming one without a kernel round trip.
func (b *MessageBuffer) Append(p []byte) {
	b.buf = append(b.buf, p...)
}

func isEINTR(err error) bool {
	return errors.Is(err, syscall.EINTR)
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

// Read performs one nonblocking read from conn and appends whatever arrived
// to the buffer. It returns ResultOk once the buffer ends at a non-continued
// newline (a complete batch has arrived), ResultEAgain if more input is
// needed, ResultInvalidInput if bytes were seen trailing a batch terminator
// within this single read, ResultEOF on a zero-byte read, or ResultEIntr /
// ResultErrno for interrupted or fatal transport errors. Per the failure
// policy, any error result other than EAgain/EIntr clears the buffer.
func (b *MessageBuffer) Read(conn Conn) (Result, error) {
	// A deadline already in the past fails the call before any I/O is
	// attempted, so allow a brief window; data already waiting returns at once.
	if err := conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return ResultErrno, err
	}
	var tmp [readChunk]byte
	n, rerr := conn.Read(tmp[:])
	if n > 0 {
		b.buf = append(b.buf, tmp[:n]...)
	}
	if rerr != nil {
		switch {
		case errors.Is(rerr, io.EOF):
			b.buf = b.buf[:0]
			return ResultEOF, nil
		case isEINTR(rerr):
			return ResultEIntr, nil
		case isTimeout(rerr):
			if n > 0 {
				break
			}
			return ResultEAgain, nil
		default:
			b.buf = b.buf[:0]
			return ResultErrno, rerr
		}
	}
	res, err := b.scanBatch()
	if res == ResultInvalidInput {
		b.buf = b.buf[:0]
	}
	return res, err
}

// scanBatch looks for a non-continued terminating newline in the buffer.
func (b *MessageBuffer) scanBatch() (Result, error) {
	pos := 0
	for pos < len(b.buf) {
		rel := bytes.IndexByte(b.buf[pos:], '\n')
		if rel < 0 {
			return ResultEAgain, nil
		}
		idx := pos + rel
		continued := idx >= 2 && b.buf[idx-1] == ';' && b.buf[idx-2] == ' '
		if continued {
			pos = idx + 1
			continue
		}
		if idx+1 != len(b.buf) {
			return ResultInvalidInput, nil
		}
		return ResultOk, nil
	}
	return ResultEAgain, nil
}

// Write performs one nonblocking write of the buffered, not-yet-flushed
// bytes to conn. On partial progress it advances the internal write offset
// and reports ResultEAgain. On full completion, or on a fatal error, the
// buffer is reset to empty.
func (b *MessageBuffer) Write(conn Conn) (Result, error) {
	if b.writeOff >= len(b.buf) {
		b.Reset()
		return ResultOk, nil
	}
	// As in Read: a past deadline would fail the write before any I/O.
	if err := conn.SetWriteDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return ResultErrno, err
	}
	n, werr := conn.Write(b.buf[b.writeOff:])
	if n > 0 {
		b.writeOff += n
	}
	if werr != nil {
		switch {
		case isEINTR(werr):
			return ResultEIntr, nil
		case isTimeout(werr):
			return ResultEAgain, nil
		default:
			b.Reset()
			return ResultErrno, werr
		}
	}
	if b.writeOff >= len(b.buf) {
		b.Reset()
		return ResultOk, nil
	}
	return ResultEAgain, nil
}

// Lex consumes one logical line (its trailing batch-continuation marker, if
// any, stripped) into *words. It returns LexNoMessage once the cursor has
// reached the end of the buffer. On LexInvalidInput, *words holds exactly
// one element: the raw text of the offending line, for diagnostics.
func (b *MessageBuffer) Lex(words *[]Word) (LexResult, error) {
	if b.cursor >= len(b.buf) {
		*words = nil
		return LexNoMessage, nil
	}
	rel := bytes.IndexByte(b.buf[b.cursor:], '\n')
	if rel < 0 {
		*words = nil
		return LexNoMessage, nil
	}
	idx := b.cursor + rel
	line := b.buf[b.cursor:idx]
	raw := append([]byte(nil), line...)
	b.cursor = idx + 1

	content := stripContinuation(line)
	ws, ok := tokenize(content)
	if !ok {
		*words = []Word{Word(raw)}
		return LexInvalidInput, nil
	}
	*words = ws
	return LexOk, nil
}

// IsAtEnd reports whether Lex's cursor has consumed the entire buffer.
func (b *MessageBuffer) IsAtEnd() bool {
	return b.cursor >= len(b.buf)
}

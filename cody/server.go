package cody

import (
	"log"
	"strconv"
	"strings"
)

// State is the Server's connection phase.
type State int

const (
	// Disconnected: only a HELLO request is valid.
	Disconnected State = iota
	// Connected: all requests except HELLO are valid.
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Server decodes one batch of framed requests at a time, dispatches each to
// a Resolver, and assembles the matching response batch, preserving 1:1
// ordering. It is not safe for concurrent use; one Server instance belongs
// to exactly one session, serialized by its caller -- one goroutine, fiber,
// or event-loop callback chain per connection.
type Server struct {
	logger   *log.Logger
	state    State
	resolver Resolver
	// errored records whether the most recently pushed response was an
	// ErrorResponse, so dispatchHello can tell a refused HELLO (state
	// must not change) from an accepted one.
	errored bool

	// In is the incoming MessageBuffer: fill it via Read, then call
	// ParseRequests to decode and dispatch everything it currently holds.
	In *MessageBuffer
	// Out is the outgoing MessageBuffer: ParseRequests appends responses
	// to it and closes it with PrepareToWrite; drain it via Write.
	Out *MessageBuffer
}

// NewServer returns a Server starting in the Disconnected state, dispatching
// to resolver once a HELLO succeeds.
func NewServer(logger *log.Logger, resolver Resolver) *Server {
	return &Server{
		logger:   logger,
		state:    Disconnected,
		resolver: resolver,
		In:       &MessageBuffer{},
		Out:      &MessageBuffer{},
	}
}

// State returns the Server's current connection phase.
func (s *Server) State() State { return s.state }

// Resolver returns the Resolver currently handling requests (after any
// pivot performed by a prior ConnectRequest).
func (s *Server) Resolver() Resolver { return s.resolver }

// logf logs through the Server's logger, if any, in the teacher's
// bracket-leveled convention.
func (s *Server) logf(format string, args ...interface{}) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}

// --- response helpers; resolvers call exactly one of these per request ---

// ConnectResponse pushes a "HELLO version ident" response, echoing the
// version the client requested.
func (s *Server) ConnectResponse(version int, ident string) {
	s.errored = false
	s.Out.BeginLine()
	s.Out.AppendWord([]byte(VerbHello), false)
	s.Out.AppendInteger(int64(version))
	s.Out.AppendWord([]byte(ident), false)
}

// ModuleRepoResponse pushes a "MODULE-REPO path" response.
func (s *Server) ModuleRepoResponse(path string) {
	s.errored = false
	s.Out.BeginLine()
	s.Out.AppendWord([]byte(VerbModuleRepo), false)
	s.Out.AppendWord([]byte(path), false)
}

// ModuleCMIResponse pushes a "MODULE-CMI path" response.
func (s *Server) ModuleCMIResponse(path string) {
	s.errored = false
	s.Out.BeginLine()
	s.Out.AppendWord([]byte(VerbModuleCMI), false)
	s.Out.AppendWord([]byte(path), false)
}

// IncludeTranslateResponse pushes an "INCLUDE-TEXT" response, meaning the
// include was not translated to a module. A non-empty path is attached as
// an optional extra argument; the common case, per spec, is to emit a bare
// INCLUDE-TEXT with no argument.
func (s *Server) IncludeTranslateResponse(path string) {
	s.errored = false
	s.Out.BeginLine()
	s.Out.AppendWord([]byte(VerbIncludeText), false)
	if path != "" {
		s.Out.AppendWord([]byte(path), false)
	}
}

// OKResponse pushes a bare "OK" response.
func (s *Server) OKResponse() {
	s.errored = false
	s.Out.BeginLine()
	s.Out.AppendWord([]byte(VerbOK), false)
}

// ErrorResponse pushes an "ERROR 'code detail...'" response. code and any
// detail words are joined into the single quoted argument the wire format
// requires; the argument is always quoted, even when its content would
// otherwise be emittable bare.
func (s *Server) ErrorResponse(code string, detail ...string) {
	s.errored = true
	s.Out.BeginLine()
	s.Out.AppendWord([]byte(VerbError), false)
	msg := code
	if len(detail) > 0 {
		msg = code + " " + strings.Join(detail, " ")
	}
	s.Out.AppendWord([]byte(msg), true)
}

// argCounts gives the required argument count for every request verb
// except HELLO, which is validated inline because its handling also gates
// the Disconnected/Connected transition.
var argCounts = map[string]int{
	VerbModuleRepo:       0,
	VerbModuleExport:     1,
	VerbModuleImport:     1,
	VerbModuleCompiled:   1,
	VerbIncludeTranslate: 1,
}

// ParseRequests decodes and dispatches every request line currently
// buffered in s.In, pushing one response per request onto s.Out in order,
// then closes s.Out with PrepareToWrite. It returns true if the session
// should be terminated (the resolver pivoted to nil on a HELLO).
func (s *Server) ParseRequests() bool {
	terminate := false
	var words []Word
	for {
		res, _ := s.In.Lex(&words)
		if res == LexNoMessage {
			break
		}
		if res == LexInvalidInput {
			raw := ""
			if len(words) == 1 {
				raw = words[0].String()
			}
			s.ErrorResponse("malformed_request", raw)
			continue
		}
		if len(words) == 0 {
			s.ErrorResponse("malformed_request")
			continue
		}
		req := Request{Verb: words[0].String(), Args: wordsToStrings(words[1:])}
		if !s.dispatch(req) {
			terminate = true
			break
		}
	}
	s.In.Reset()
	s.Out.PrepareToWrite()
	return terminate
}

// dispatch handles one decoded request line. It returns false only when the
// session must terminate (a HELLO's resolver pivot returned nil).
func (s *Server) dispatch(req Request) bool {
	if req.Verb == VerbHello {
		return s.dispatchHello(req)
	}
	if s.state == Disconnected {
		s.ErrorResponse("not_connected")
		return true
	}
	n, known := argCounts[req.Verb]
	if !known {
		s.ErrorResponse("unrecognized_request", req.Verb)
		return true
	}
	if len(req.Args) != n {
		s.ErrorResponse("malformed_request")
		return true
	}
	for _, a := range req.Args {
		if len(a) == 0 {
			s.ErrorResponse("malformed_request")
			return true
		}
	}
	switch req.Verb {
	case VerbModuleRepo:
		s.resolver.ModuleRepoRequest(s)
	case VerbModuleExport:
		s.resolver.ModuleExportRequest(s, req.Args[0])
	case VerbModuleImport:
		s.resolver.ModuleImportRequest(s, req.Args[0])
	case VerbModuleCompiled:
		s.resolver.ModuleCompiledRequest(s, req.Args[0])
	case VerbIncludeTranslate:
		s.resolver.IncludeTranslateRequest(s, req.Args[0])
	}
	return true
}

func (s *Server) dispatchHello(req Request) bool {
	if s.state == Connected {
		s.ErrorResponse("already_connected")
		return true
	}
	if len(req.Args) != 3 {
		s.ErrorResponse("malformed_request")
		return true
	}
	version, err := strconv.Atoi(req.Args[0])
	if err != nil {
		s.ErrorResponse("malformed_request")
		return true
	}
	agent, ident := req.Args[1], req.Args[2]
	next := s.resolver.ConnectRequest(s, version, agent, ident)
	if next == nil {
		s.logf("[INFO] resolver refused connection from %s/%s", agent, ident)
		return false
	}
	s.resolver = next
	// ConnectRequest may refuse the HELLO itself (e.g. a version
	// mismatch) while still returning a non-nil resolver to keep the
	// session open; an ErrorResponse must leave the state untouched
	// per the "state is preserved" rule, so only a successful ConnectResponse
	// advances Disconnected -> Connected.
	if !s.errored {
		s.state = Connected
	}
	return true
}

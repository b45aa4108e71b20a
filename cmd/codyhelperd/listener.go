package main

import (
	"context"
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marxin/libcody/cody"
)

// pollInterval is how long a session's read/write loop sleeps between
// retries of an EAgain result, since MessageBuffer.Read/Write never block.
const pollInterval = 5 * time.Millisecond

// Listener binds a single net.Listener and spawns one cody.Server session
// per accepted connection.
type Listener struct {
	net.Listener
	logger   *log.Logger
	resolver cody.Resolver
}

// NewListener binds cfg's protocol/address.
func NewListener(logger *log.Logger, cfg ListenerConfig, resolver cody.Resolver) (*Listener, error) {
	ln, err := net.Listen(cfg.Protocol, cfg.Address)
	if err != nil {
		return nil, err
	}
	return &Listener{Listener: ln, logger: logger, resolver: resolver}, nil
}

// Listen accepts connections until ctx is cancelled, spawning each session
// in its own goroutine tracked by wg, so shutdown can wait for in-flight
// sessions to finish; a SIGHUP reload cancels only ctx and does not wait
// for them.
//
// ctx governs the accept loop itself; sessionCtx governs the sessions it
// spawns, so cancelling ctx alone stops accepting new connections without
// terminating the ones already in progress.
func (l *Listener) Listen(ctx context.Context, sessionCtx context.Context, wg *sync.WaitGroup) {
	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				l.logger.Printf("[ERROR] accept on %s:%s: %v", l.Addr().Network(), l.Addr().String(), err)
				return
			}
		}
		id := uuid.New().String()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			serveConn(sessionCtx, l.logger, id, conn, l.resolver)
		}()
	}
}

// sessionLogger returns a logger prefixed with this session's correlation
// id, so every line a Server/Resolver emits for one compiler connection can
// be grepped out of a shared log.
func sessionLogger(base *log.Logger, id string) *log.Logger {
	return log.New(base.Writer(), base.Prefix()+"["+id+"] ", base.Flags())
}

// serveConn runs one cody.Server's decode/dispatch/encode loop over conn
// until the resolver terminates the session, the peer disconnects, the
// connection has been idle past defaultIdleTimeout, or ctx is cancelled.
func serveConn(ctx context.Context, base *log.Logger, id string, conn net.Conn, resolver cody.Resolver) {
	logger := sessionLogger(base, id)
	logger.Printf("[INFO] session started")
	s := cody.NewServer(logger, resolver)
	lastActivity := time.Now()

	for {
		select {
		case <-ctx.Done():
			logger.Printf("[INFO] session cancelled")
			return
		default:
		}

		res, err := s.In.Read(conn)
		if err != nil {
			logger.Printf("[ERROR] read: %v", err)
			return
		}
		switch res {
		case cody.ResultOk:
			lastActivity = time.Now()
		case cody.ResultEOF:
			logger.Printf("[INFO] peer closed connection")
			return
		case cody.ResultEIntr:
			continue
		case cody.ResultEAgain:
			if time.Since(lastActivity) > defaultIdleTimeout {
				logger.Printf("[INFO] closing idle session")
				return
			}
			time.Sleep(pollInterval)
			continue
		default:
			logger.Printf("[ERROR] malformed request framing")
			return
		}

		terminate := s.ParseRequests()
		if !drainResponses(logger, conn, s) {
			return
		}
		if terminate {
			logger.Printf("[INFO] session terminated by resolver")
			return
		}
	}
}

// drainResponses flushes s.Out to conn, reporting whether the write
// succeeded.
func drainResponses(logger *log.Logger, conn net.Conn, s *cody.Server) bool {
	for {
		res, err := s.Out.Write(conn)
		if err != nil {
			logger.Printf("[ERROR] write: %v", err)
			return false
		}
		if res == cody.ResultOk {
			return true
		}
		if res != cody.ResultEAgain {
			logger.Printf("[ERROR] write failed: %v", res)
			return false
		}
		time.Sleep(pollInterval)
	}
}

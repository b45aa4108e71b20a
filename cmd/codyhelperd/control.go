package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"syscall"

	"github.com/abligh/go-daemon"
)

// Control mediates the running of the main process.
type Control struct {
	quit chan struct{}
	wg   sync.WaitGroup
}

// RunConfig is effectively the main entry point of the program once any
// daemonizing has already happened: parse the config, start each listener,
// and restart them on SIGHUP without killing in-flight sessions.
func RunConfig(control *Control) {
	logger := log.New(os.Stderr, "codyhelperd:", log.LstdFlags)
	var logCloser io.Closer
	var sessionWaitGroup sync.WaitGroup
	ctx, cancelFunc := context.WithCancel(context.Background())
	defer func() {
		logger.Println("[INFO] Shutting down")
		cancelFunc()
		sessionWaitGroup.Wait()
		logger.Println("[INFO] Shutdown complete")
		if logCloser != nil {
			logCloser.Close()
		}
		control.wg.Done()
	}()

	intr := make(chan os.Signal, 1)
	term := make(chan os.Signal, 1)
	hup := make(chan os.Signal, 1)
	usr1 := make(chan os.Signal, 1)
	defer close(intr)
	defer close(term)
	defer close(hup)
	defer close(usr1)
	if !*foreground {
		signal.Notify(intr, os.Interrupt)
		signal.Notify(term, syscall.SIGTERM)
		signal.Notify(hup, syscall.SIGHUP)
	}

	signal.Notify(usr1, syscall.SIGUSR1)
	go func() {
		for range usr1 {
			logger.Println("[INFO] Run GC()")
			runtime.GC()
			debug.FreeOSMemory()
			logger.Println("[INFO] FreeOSMemory() done")
		}
	}()

	for {
		var wg sync.WaitGroup
		configCtx, configCancelFunc := context.WithCancel(ctx)

		c, err := ParseConfig(*configFile)
		if err != nil {
			logger.Printf("[ERROR] Cannot parse configuration file: %v", err)
			return
		}
		if nlogger, nlogCloser, lerr := c.GetLogger(); lerr != nil {
			logger.Printf("[ERROR] Could not load logger: %v", lerr)
		} else {
			if logCloser != nil {
				logCloser.Close()
			}
			logger = nlogger
			logCloser = nlogCloser
		}
		logger.Printf("[INFO] Loaded configuration")

		resolver := c.resolver()
		for _, lc := range c.Listeners {
			lc := lc
			wg.Add(1)
			go func() {
				defer wg.Done()
				ln, lerr := NewListener(logger, lc, resolver)
				if lerr != nil {
					logger.Printf("[ERROR] Could not create listener for %s:%s: %v", lc.Protocol, lc.Address, lerr)
					return
				}
				logger.Printf("[INFO] Starting listener %s:%s", lc.Protocol, lc.Address)
				ln.Listen(configCtx, ctx, &sessionWaitGroup)
				logger.Printf("[INFO] Stopping listener %s:%s", lc.Protocol, lc.Address)
			}()
		}

		select {
		case <-ctx.Done():
			logger.Println("[INFO] Interrupted")
			return
		case <-intr:
			logger.Println("[INFO] Interrupt signal received")
			return
		case <-term:
			logger.Println("[INFO] Terminate signal received")
			return
		case <-control.quit:
			logger.Println("[INFO] Programmatic quit received")
			return
		case <-hup:
			logger.Println("[INFO] Reload signal received; reloading configuration which will be effective for new connections")
			configCancelFunc()
			wg.Wait()
		}
	}
}

// Run parses flags, daemonizes unless -f was given, and runs RunConfig.
func Run(control *Control) {
	if control == nil {
		control = &Control{}
		control.wg.Add(1)
	}

	logger := log.New(os.Stderr, "codyhelperd:", log.LstdFlags)

	daemon.AddFlag(daemon.StringFlag(sendSignal, "stop"), syscall.SIGTERM)
	daemon.AddFlag(daemon.StringFlag(sendSignal, "reload"), syscall.SIGHUP)

	if daemon.WasReborn() {
		if val := os.Getenv(envConfFile); val != "" {
			*configFile = val
		}
		if val := os.Getenv(envPidFile); val != "" {
			*pidFile = val
		}
	}

	var err error
	if *configFile, err = filepath.Abs(*configFile); err != nil {
		logger.Fatalf("[CRIT] Error canonicalising config file path: %v", err)
	}
	if *pidFile, err = filepath.Abs(*pidFile); err != nil {
		logger.Fatalf("[CRIT] Error canonicalising pid file path: %v", err)
	}

	// Check the configuration parses before daemonizing, so a bad config
	// is visible on the invoking terminal rather than silently logged
	// nowhere.
	if _, err := ParseConfig(*configFile); err != nil {
		logger.Fatalf("[CRIT] Cannot parse configuration file: %v", err)
	}

	if *foreground {
		RunConfig(control)
		return
	}

	os.Setenv(envConfFile, *configFile)
	os.Setenv(envPidFile, *pidFile)

	d := &daemon.Context{
		PidFileName: *pidFile,
		PidFilePerm: 0644,
		Umask:       027,
	}

	if len(daemon.ActiveFlags()) > 0 {
		p, serr := d.Search()
		if serr != nil {
			logger.Fatalf("[CRIT] Unable to send signal to the daemon - not running")
		}
		if serr := p.Signal(syscall.Signal(0)); serr != nil {
			logger.Fatalf("[CRIT] Unable to send signal to the daemon - not running, perhaps PID file is stale")
		}
		daemon.SendCommands(p)
		return
	}

	if !daemon.WasReborn() {
		if p, serr := d.Search(); serr == nil {
			if serr := p.Signal(syscall.Signal(0)); serr == nil {
				logger.Fatalf("[CRIT] Daemon is already running (pid %d)", p.Pid)
			}
			logger.Printf("[INFO] Removing stale PID file %s", *pidFile)
			os.Remove(*pidFile)
		}
	}

	child, err := d.Reborn()
	if err != nil {
		logger.Fatalf("[CRIT] Daemonize: %v", err)
	}
	if child != nil {
		return
	}
	defer d.Release()

	RunConfig(control)
}

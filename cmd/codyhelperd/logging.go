package main

import (
	"fmt"
	"io"
	"log"
	"log/syslog"
	"os"
	"regexp"
	"strconv"
)

// LogConfig specifies configuration for logging.
type LogConfig struct {
	File           string // a file to log to
	FileMode       string // file mode
	SyslogFacility string // a syslog facility name - set to enable syslog
	Date           bool   // log the date - i.e. log.Ldate
	Time           bool   // log the time - i.e. log.Ltime
	Microseconds   bool   // log microseconds - i.e. log.Lmicroseconds
	UTC            bool   // log time in UTC - i.e. log.LUTC
	SourceFile     bool   // log source file - i.e. log.Lshortfile
}

// SyslogWriter is an io.WriteCloser that logs to syslog with a priority
// extracted from the bracketed level prefix of each line.
type SyslogWriter struct {
	w *syslog.Writer
}

var facilityMap = map[string]syslog.Priority{
	"kern":     syslog.LOG_KERN,
	"user":     syslog.LOG_USER,
	"mail":     syslog.LOG_MAIL,
	"daemon":   syslog.LOG_DAEMON,
	"auth":     syslog.LOG_AUTH,
	"syslog":   syslog.LOG_SYSLOG,
	"lpr":      syslog.LOG_LPR,
	"news":     syslog.LOG_NEWS,
	"uucp":     syslog.LOG_UUCP,
	"cron":     syslog.LOG_CRON,
	"authpriv": syslog.LOG_AUTHPRIV,
	"ftp":      syslog.LOG_FTP,
	"local0":   syslog.LOG_LOCAL0,
	"local1":   syslog.LOG_LOCAL1,
	"local2":   syslog.LOG_LOCAL2,
	"local3":   syslog.LOG_LOCAL3,
	"local4":   syslog.LOG_LOCAL4,
	"local5":   syslog.LOG_LOCAL5,
	"local6":   syslog.LOG_LOCAL6,
	"local7":   syslog.LOG_LOCAL7,
}

// NewSyslogWriter opens a syslog connection logging under facility.
func NewSyslogWriter(facility string) (*SyslogWriter, error) {
	f := syslog.LOG_DAEMON
	if ff, ok := facilityMap[facility]; ok {
		f = ff
	}
	w, err := syslog.New(f|syslog.LOG_INFO, "codyhelperd:")
	if err != nil {
		return nil, err
	}
	return &SyslogWriter{w: w}, nil
}

// Close closes the underlying syslog connection.
func (s *SyslogWriter) Close() error {
	return s.w.Close()
}

var deletePrefix = regexp.MustCompile("codyhelperd:")
var replaceLevel = regexp.MustCompile(`\[[A-Z]+\] `)

// Write strips the bracketed level prefix from p and routes it to the
// matching syslog priority.
func (s *SyslogWriter) Write(p []byte) (int, error) {
	p1 := deletePrefix.ReplaceAllString(string(p), "")
	level := ""
	tolog := replaceLevel.ReplaceAllStringFunc(p1, func(l string) string {
		level = l
		return ""
	})
	switch level {
	case "[DEBUG] ":
		s.w.Debug(tolog)
	case "[INFO] ":
		s.w.Info(tolog)
	case "[NOTICE] ":
		s.w.Notice(tolog)
	case "[WARNING] ", "[WARN] ":
		s.w.Warning(tolog)
	case "[ERROR] ", "[ERR] ":
		s.w.Err(tolog)
	case "[CRIT] ":
		s.w.Crit(tolog)
	case "[ALERT] ":
		s.w.Alert(tolog)
	case "[EMERG] ":
		s.w.Emerg(tolog)
	default:
		s.w.Notice(tolog)
	}
	return len(p), nil
}

// GetLogger builds the *log.Logger this configuration describes, along with
// the io.Closer (if any) that should be closed when the logger is replaced
// or the daemon shuts down.
func (c *Config) GetLogger() (*log.Logger, io.Closer, error) {
	logFlags := 0
	if c.Logging.Date {
		logFlags |= log.Ldate
	}
	if c.Logging.Time {
		logFlags |= log.Ltime
	}
	if c.Logging.Microseconds {
		logFlags |= log.Lmicroseconds
	}
	if c.Logging.UTC {
		logFlags |= log.LUTC
	}
	if c.Logging.SourceFile {
		logFlags |= log.Lshortfile
	}
	if c.Logging.File != "" {
		mode := os.FileMode(0644)
		if c.Logging.FileMode != "" {
			i, err := strconv.ParseInt(c.Logging.FileMode, 8, 32)
			if err != nil {
				return nil, nil, fmt.Errorf("cannot parse file logging mode: %v", err)
			}
			mode = os.FileMode(i)
		}
		file, err := os.OpenFile(c.Logging.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, mode)
		if err != nil {
			return nil, nil, err
		}
		return log.New(file, "codyhelperd:", logFlags), file, nil
	}
	if c.Logging.SyslogFacility != "" {
		s, err := NewSyslogWriter(c.Logging.SyslogFacility)
		if err != nil {
			return nil, nil, err
		}
		return log.New(s, "codyhelperd:", logFlags), s, nil
	}
	return log.New(os.Stderr, "codyhelperd:", logFlags), nil, nil
}

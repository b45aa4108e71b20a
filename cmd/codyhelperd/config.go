package main

import (
	"flag"
	"io/ioutil"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/marxin/libcody/cody"
)

/* Example configuration:

listeners:
- protocol: unix
  address: /var/run/codyhelperd.sock
- protocol: tcp
  address: 127.0.0.1:0
repository: cmi.cache
cmisuffix: cmi
logging:
  syslogfacility: local1
*/

// Location of the config file on disk; overridden by flags.
var configFile = flag.String("c", "/etc/codyhelperd.conf", "Path to YAML config file")
var pidFile = flag.String("p", "/var/run/codyhelperd.pid", "Path to PID file")
var sendSignal = flag.String("s", "", "Send signal to daemon (either \"stop\" or \"reload\")")
var foreground = flag.Bool("f", false, "Run in foreground (not as daemon)")

const (
	envConfFile = "_CODYHELPERD_CONFFILE"
	envPidFile  = "_CODYHELPERD_PIDFILE"

	// defaultIdleTimeout closes a session that has sent no request batch
	// for this long.
	defaultIdleTimeout = 5 * time.Minute
)

// Config holds the configuration that applies to the whole daemon: the
// listeners it should bind, the module repository a DefaultResolver serves
// out of, and logging.
type Config struct {
	Listeners  []ListenerConfig // array of listener configs
	Repository string           // module repository directory; defaults to cody.DefaultRepository
	CMISuffix  string           // CMI filename suffix; defaults to cody.DefaultCMISuffix
	Logging    LogConfig        // configuration for logging
}

// ListenerConfig holds the configuration for a single listening socket.
type ListenerConfig struct {
	Protocol string // protocol to listen on, in net.Listen form ("tcp", "unix", ...)
	Address  string // address to listen on
}

// ParseConfig parses the YAML configuration at confFile, filling in the
// daemon's defaults for any field left unset.
func ParseConfig(confFile string) (*Config, error) {
	buf, err := ioutil.ReadFile(confFile)
	if err != nil {
		return nil, err
	}
	c := &Config{}
	if err := yaml.Unmarshal(buf, c); err != nil {
		return nil, err
	}
	for i := range c.Listeners {
		if c.Listeners[i].Protocol == "" {
			c.Listeners[i].Protocol = "unix"
		}
	}
	if c.Repository == "" {
		c.Repository = cody.DefaultRepository
	}
	if c.CMISuffix == "" {
		c.CMISuffix = cody.DefaultCMISuffix
	}
	return c, nil
}

// resolver builds the DefaultResolver this configuration describes.
func (c *Config) resolver() *cody.DefaultResolver {
	return &cody.DefaultResolver{RepoDir: c.Repository, CMISuffix: c.CMISuffix}
}

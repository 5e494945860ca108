package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kstaniek/go-notecard-server/internal/hub"
	"github.com/kstaniek/go-notecard-server/internal/logging"
	"github.com/kstaniek/go-notecard-server/internal/notecard"
)

const envPrefix = "NOTECARD_SERVER_"

type appConfig struct {
	serialDev       string
	baud            int
	serialReadTO    time.Duration
	serialLock      bool
	listenAddr      string
	logFormat       string
	logLevel        string
	metricsAddr     string
	queueSize       int
	hubBuffer       int
	hubPolicy       string
	maxClients      int
	clientReadTO    time.Duration
	maxLine         int
	logMetricsEvery time.Duration
	mdnsEnable      bool
	mdnsName        string

	// driver
	responseTO    time.Duration
	txRetry       int
	chunkDelay    time.Duration
	segmentDelay  time.Duration
	strictFraming bool
}

func parseFlags() (*appConfig, bool) {
	return parseArgs(flag.CommandLine, os.Args[1:])
}

func parseArgs(fs *flag.FlagSet, args []string) (*appConfig, bool) {
	def := notecard.DefaultConfig()
	cfg := &appConfig{}
	fs.StringVar(&cfg.serialDev, "serial", "/dev/ttyUSB0", "Serial device path of the Notecard (AUX or main UART)")
	fs.IntVar(&cfg.baud, "baud", 115200, "Serial baud rate")
	fs.DurationVar(&cfg.serialReadTO, "serial-read-timeout", 50*time.Millisecond, "Serial read timeout")
	fs.BoolVar(&cfg.serialLock, "serial-lock", true, "Take an exclusive lock on the serial device")
	fs.StringVar(&cfg.listenAddr, "listen", ":20001", "TCP listen address")
	fs.StringVar(&cfg.logFormat, "log-format", "text", "Log format: text|json|console")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fs.StringVar(&cfg.metricsAddr, "metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	fs.IntVar(&cfg.queueSize, "queue-size", 64, "Pending transaction queue length shared by all clients")
	fs.IntVar(&cfg.hubBuffer, "hub-buffer", 16, "Per-client response buffer (lines)")
	fs.StringVar(&cfg.hubPolicy, "hub-policy", "drop", "Backpressure policy: drop|kick")
	fs.IntVar(&cfg.maxClients, "max-clients", 0, "Maximum simultaneous TCP clients (0 = unlimited)")
	fs.DurationVar(&cfg.clientReadTO, "client-read-timeout", 60*time.Second, "Per-connection read deadline")
	fs.IntVar(&cfg.maxLine, "max-line", 32*1024, "Maximum request line length in bytes")
	fs.DurationVar(&cfg.logMetricsEvery, "log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")
	fs.BoolVar(&cfg.mdnsEnable, "mdns-enable", false, "Enable mDNS/Avahi advertisement")
	fs.StringVar(&cfg.mdnsName, "mdns-name", "", "mDNS instance name (default notecard-server-<hostname>)")
	fs.DurationVar(&cfg.responseTO, "response-timeout", def.ResponseTimeout, "Bound on waiting for a Notecard response (0 = none)")
	fs.IntVar(&cfg.txRetry, "transaction-retry", def.TransactionRetry, "Resynchronization attempts before giving up")
	fs.DurationVar(&cfg.chunkDelay, "chunk-delay", def.ChunkDelay, "Reserved, unused: pause between chunks on chunk-paced links")
	fs.DurationVar(&cfg.segmentDelay, "segment-delay", def.SegmentDelay, "Quiet time after each request segment")
	fs.BoolVar(&cfg.strictFraming, "strict-framing", false, "Complete a response only when it ends with CRLF")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, false
	}

	// Track which flags were explicitly set to give them precedence over env.
	setFlags := map[string]struct{}{}
	fs.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// notecardConfig maps the driver flags onto notecard.Config.
func (c *appConfig) notecardConfig() notecard.Config {
	nc := notecard.DefaultConfig()
	nc.ResponseTimeout = c.responseTO
	nc.TransactionRetry = c.txRetry
	nc.ChunkDelay = c.chunkDelay
	nc.SegmentDelay = c.segmentDelay
	nc.StrictFraming = c.strictFraming
	return nc
}

// validate performs basic semantic validation of the parsed configuration.
// It does not attempt to open devices or listeners – only checks values/ranges.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if !logging.ValidFormat(c.logFormat) {
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	if _, ok := hub.ParsePolicy(c.hubPolicy); !ok {
		return fmt.Errorf("invalid hub-policy: %s", c.hubPolicy)
	}
	if c.serialDev == "" {
		return errors.New("serial must not be empty")
	}
	if c.hubBuffer <= 0 {
		return fmt.Errorf("hub-buffer must be > 0 (got %d)", c.hubBuffer)
	}
	if c.queueSize <= 0 {
		return fmt.Errorf("queue-size must be > 0 (got %d)", c.queueSize)
	}
	if c.baud <= 0 {
		return fmt.Errorf("baud must be > 0 (got %d)", c.baud)
	}
	if c.serialReadTO <= 0 {
		return fmt.Errorf("serial-read-timeout must be > 0")
	}
	if c.clientReadTO <= 0 {
		return fmt.Errorf("client-read-timeout must be > 0")
	}
	if c.maxClients < 0 {
		return fmt.Errorf("max-clients must be >= 0")
	}
	if c.maxLine <= 0 {
		return fmt.Errorf("max-line must be > 0 (got %d)", c.maxLine)
	}
	if c.txRetry < 1 {
		return fmt.Errorf("transaction-retry must be >= 1 (got %d)", c.txRetry)
	}
	if err := c.notecardConfig().Validate(); err != nil {
		return fmt.Errorf("driver config: %w", err)
	}
	return nil
}

// applyEnvOverrides maps NOTECARD_SERVER_* environment variables to config
// fields unless the corresponding flag was explicitly set (flag wins). Empty
// values are ignored; the first malformed value is reported.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	e := envApplier{set: set}
	e.strVar("serial", "SERIAL", &c.serialDev)
	e.intVar("baud", "BAUD", &c.baud, 1)
	e.durVar("serial-read-timeout", "SERIAL_READ_TIMEOUT", &c.serialReadTO)
	e.boolVar("serial-lock", "SERIAL_LOCK", &c.serialLock)
	e.strVar("listen", "LISTEN", &c.listenAddr)
	e.strVar("log-format", "LOG_FORMAT", &c.logFormat)
	e.strVar("log-level", "LOG_LEVEL", &c.logLevel)
	if _, ok := set["metrics-addr"]; !ok {
		// empty is meaningful here: it disables the endpoint
		if v, ok := os.LookupEnv(envPrefix + "METRICS"); ok {
			c.metricsAddr = strings.TrimSpace(v)
		}
	}
	e.intVar("queue-size", "QUEUE_SIZE", &c.queueSize, 1)
	e.intVar("hub-buffer", "HUB_BUFFER", &c.hubBuffer, 1)
	e.strVar("hub-policy", "HUB_POLICY", &c.hubPolicy)
	e.intVar("max-clients", "MAX_CLIENTS", &c.maxClients, 0)
	e.durVar("client-read-timeout", "CLIENT_READ_TIMEOUT", &c.clientReadTO)
	e.intVar("max-line", "MAX_LINE", &c.maxLine, 1)
	e.durVar("log-metrics-interval", "LOG_METRICS_INTERVAL", &c.logMetricsEvery)
	e.boolVar("mdns-enable", "MDNS_ENABLE", &c.mdnsEnable)
	e.strVar("mdns-name", "MDNS_NAME", &c.mdnsName)
	e.durVar("response-timeout", "RESPONSE_TIMEOUT", &c.responseTO)
	e.intVar("transaction-retry", "TRANSACTION_RETRY", &c.txRetry, 1)
	e.durVar("chunk-delay", "CHUNK_DELAY", &c.chunkDelay)
	e.durVar("segment-delay", "SEGMENT_DELAY", &c.segmentDelay)
	e.boolVar("strict-framing", "STRICT_FRAMING", &c.strictFraming)
	return e.firstErr
}

type envApplier struct {
	set      map[string]struct{}
	firstErr error
}

func (e *envApplier) lookup(flagName, key string) (string, bool) {
	if _, ok := e.set[flagName]; ok {
		return "", false
	}
	v, ok := os.LookupEnv(envPrefix + key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envApplier) fail(key string, err error) {
	if e.firstErr == nil {
		e.firstErr = fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
	}
}

func (e *envApplier) strVar(flagName, key string, dst *string) {
	if v, ok := e.lookup(flagName, key); ok {
		*dst = v
	}
}

func (e *envApplier) intVar(flagName, key string, dst *int, lo int) {
	v, ok := e.lookup(flagName, key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, err)
		return
	}
	if n < lo {
		e.fail(key, fmt.Errorf("must be >= %d", lo))
		return
	}
	*dst = n
}

func (e *envApplier) durVar(flagName, key string, dst *time.Duration) {
	v, ok := e.lookup(flagName, key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, err)
		return
	}
	if d < 0 {
		e.fail(key, errors.New("must be >= 0"))
		return
	}
	*dst = d
}

func (e *envApplier) boolVar(flagName, key string, dst *bool) {
	v, ok := e.lookup(flagName, key)
	if !ok {
		return
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	default:
		e.fail(key, fmt.Errorf("not a boolean: %q", v))
	}
}

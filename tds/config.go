package tds

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/ha1tch/tdsdriver/instance"
	"github.com/ha1tch/tdsdriver/tdslog"
	"github.com/ha1tch/tdsdriver/wire"
)

// Config holds the recognized options of spec.md §6, plus the ambient
// fields (Logger, TLSConfig, InstanceLookup) a complete driver needs
// around the core. Grounded on examples/goclient.Config's JSON/env/CLI
// layering pattern (this package has no loader of its own: cmd/tdsreplay
// fills a Config from a JSON file, then the environment, then flags,
// increasing precedence) and on
// pkg/log.Logger's category split, adapted to tdslog.
type Config struct {
	Server   string
	UserName string
	Password string

	Port         int    // mutually exclusive with InstanceName
	InstanceName string

	Database string
	AppName  string

	PacketSize int
	TDSVersion uint32

	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	CancelTimeout  time.Duration

	TextSize       int64
	IsolationLevel wire.IsolationLevel

	Encrypt                  bool
	CryptoCredentialsDetails string // opaque; informational only
	Ciphers                  string

	UseUTC         bool
	UseColumnNames bool

	RowCollectionOnRequestCompletion bool
	RowCollectionOnDone              bool

	Debug bool

	// Ambient collaborators. Zero values get sensible defaults in
	// withDefaults: tdslog.Default(), instance.NoLookup{}, and (when
	// Encrypt is set but TLSConfig is nil) &tls.Config{}.
	Logger         *tdslog.Logger
	TLSConfig      *tls.Config
	InstanceLookup instance.Resolver
}

// DefaultConfig returns a Config carrying spec.md §6's documented
// defaults.
func DefaultConfig() Config {
	return Config{
		Port:                     1433,
		PacketSize:               wire.DefaultPacketSize,
		TDSVersion:               wire.VerTDS74,
		ConnectTimeout:           15000 * time.Millisecond,
		RequestTimeout:           15000 * time.Millisecond,
		CancelTimeout:            5000 * time.Millisecond,
		TextSize:                 2147483647,
		IsolationLevel:           wire.IsolationReadCommitted,
		Encrypt:                  false,
		Ciphers:                  "RC4-MD5",
		UseUTC:                   true,
		UseColumnNames:           false,
		RowCollectionOnRequestCompletion: false,
		RowCollectionOnDone:              false,
	}
}

// withDefaults fills in zero ambient fields so the core never has to
// nil-check Logger/TLSConfig/InstanceLookup at every call site.
func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = tdslog.Default()
	}
	if c.InstanceLookup == nil {
		c.InstanceLookup = instance.NoLookup{}
	}
	if c.PacketSize == 0 {
		c.PacketSize = wire.DefaultPacketSize
	}
	if c.TDSVersion == 0 {
		c.TDSVersion = wire.VerTDS74
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 15000 * time.Millisecond
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 15000 * time.Millisecond
	}
	if c.CancelTimeout == 0 {
		c.CancelTimeout = 5000 * time.Millisecond
	}
	if c.TextSize == 0 {
		c.TextSize = 2147483647
	}
	if c.IsolationLevel == 0 {
		c.IsolationLevel = wire.IsolationReadCommitted
	}
	if c.Ciphers == "" {
		c.Ciphers = "RC4-MD5"
	}
	if c.Encrypt && c.TLSConfig == nil {
		c.TLSConfig = &tls.Config{}
	}
	return c
}

// validate enforces the boundary behaviors of spec.md §8: port/
// instanceName are mutually exclusive, and an explicit port must be in
// (0, 65536).
func (c Config) validate() error {
	if c.Port != 0 && c.InstanceName != "" {
		return fmt.Errorf("tds: port and instanceName are mutually exclusive")
	}
	if c.Port != 0 && (c.Port <= 0 || c.Port >= 65536) {
		return fmt.Errorf("tds: port %d out of range (0, 65536)", c.Port)
	}
	if c.InstanceName == "" && c.Port == 0 {
		return fmt.Errorf("tds: one of port or instanceName is required")
	}
	return nil
}

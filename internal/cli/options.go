// Package cli wires the command tree: a root command carrying the
// connection, target-selection, pacing, and output flags, plus one
// subcommand per account operation.
package cli

import (
	"fmt"
	"time"

	"github.com/creasty/defaults"
)

// Options is the full set of run options. Every field is settable via
// a flag or an ACCOUNTCTL_* environment variable.
type Options struct {
	// Connection
	Domain       string        `mapstructure:"domain"`
	Servers      []string      `mapstructure:"server"`
	BaseDN       string        `mapstructure:"base-dn"`
	BindDN       string        `mapstructure:"bind-dn"`
	BindPassword string        `mapstructure:"bind-password"`
	Timeout      time.Duration `mapstructure:"timeout" default:"30s"`
	PoolSize     int           `mapstructure:"pool-size" default:"10"`

	// Kerberos
	KerberosRealm  string `mapstructure:"kerberos-realm"`
	KerberosKeytab string `mapstructure:"kerberos-keytab"`
	KerberosCCache string `mapstructure:"kerberos-ccache"`
	KerberosConfig string `mapstructure:"kerberos-config"`
	KerberosSPN    string `mapstructure:"kerberos-spn"`

	// TLS
	CACertFile    string `mapstructure:"ca-cert-file"`
	TLSSkipVerify bool   `mapstructure:"tls-skip-verify"`
	NoTLS         bool   `mapstructure:"no-tls"`

	// Target selection
	TargetDNs         []string `mapstructure:"target-dn"`
	TargetDNFiles     []string `mapstructure:"target-dn-file"`
	TargetFilters     []string `mapstructure:"target-filter"`
	TargetFilterFiles []string `mapstructure:"target-filter-file"`
	TargetUserIDs     []string `mapstructure:"target-user-id"`
	TargetUserIDFiles []string `mapstructure:"target-user-id-file"`
	UserIDAttribute   string   `mapstructure:"user-id-attribute" default:"uid"`
	SimplePageSize    int      `mapstructure:"simple-page-size" default:"100"`

	// Concurrency
	NumThreads       int `mapstructure:"num-threads" default:"8"`
	NumSearchThreads int `mapstructure:"num-search-threads" default:"2"`

	// Rate control
	RatePerSecond          float64 `mapstructure:"rate-per-second"`
	VariableRateData       string  `mapstructure:"variable-rate-data"`
	GenerateSampleRateFile string  `mapstructure:"generate-sample-rate-file"`

	// Output
	OutputFile           string `mapstructure:"output-file"`
	RejectFile           string `mapstructure:"reject-file"`
	AppendToRejectFile   bool   `mapstructure:"append-to-reject-file"`
	SuppressEmptyResults bool   `mapstructure:"suppress-empty-result-operations"`

	// Logging
	LogLevel  string `mapstructure:"log-level" default:"info"`
	LogFormat string `mapstructure:"log-format" default:"console"`
}

// DefaultOptions returns an Options with every default applied.
func DefaultOptions() *Options {
	opts := &Options{}
	defaults.MustSet(opts)
	return opts
}

// HasTargetSource reports whether at least one target source is
// configured.
func (o *Options) HasTargetSource() bool {
	return len(o.TargetDNs) > 0 || len(o.TargetDNFiles) > 0 ||
		len(o.TargetFilters) > 0 || len(o.TargetFilterFiles) > 0 ||
		len(o.TargetUserIDs) > 0 || len(o.TargetUserIDFiles) > 0
}

// Validate checks option consistency. It runs before any stage
// starts; a validation failure aborts the run.
func (o *Options) Validate() error {
	if o.Domain == "" && len(o.Servers) == 0 {
		return fmt.Errorf("either --domain or --server is required")
	}

	if !o.HasTargetSource() {
		return fmt.Errorf("at least one target source is required " +
			"(--target-dn, --target-dn-file, --target-filter, --target-filter-file, " +
			"--target-user-id, or --target-user-id-file)")
	}

	if o.RatePerSecond < 0 {
		return fmt.Errorf("--rate-per-second must not be negative")
	}
	if o.RatePerSecond > 0 && o.VariableRateData != "" {
		return fmt.Errorf("--rate-per-second and --variable-rate-data are mutually exclusive")
	}

	if o.AppendToRejectFile && o.RejectFile == "" {
		return fmt.Errorf("--append-to-reject-file requires --reject-file")
	}

	if o.NumThreads <= 0 {
		return fmt.Errorf("--num-threads must be positive")
	}
	if o.NumSearchThreads <= 0 {
		return fmt.Errorf("--num-search-threads must be positive")
	}
	if o.PoolSize <= 0 {
		return fmt.Errorf("--pool-size must be positive")
	}
	if o.SimplePageSize <= 0 {
		return fmt.Errorf("--simple-page-size must be positive")
	}

	return nil
}

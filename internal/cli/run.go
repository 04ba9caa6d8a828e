package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isometry/accountctl/internal/ldap"
	"github.com/isometry/accountctl/internal/output"
	"github.com/isometry/accountctl/internal/pipeline"
	"github.com/isometry/accountctl/internal/pwpstate"
	"github.com/isometry/accountctl/internal/rate"
)

// execute runs one operation against every configured target. The
// returned error reflects only configuration/setup failure or
// cancellation; per-target failures are recorded and leave the run
// successful.
func execute(ctx context.Context, opts *Options, ops []pwpstate.Operation) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	logger, err := NewLogger(opts.LogLevel, opts.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger = logger.With(zap.String("run_id", uuid.NewString()))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := ldap.NewClient(connectionConfig(opts), logger)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer client.Close()

	// Verify the directory is reachable and the bind works before any
	// targets are read. A run that cannot connect is a setup failure,
	// not a stream of per-target rejects.
	if err := client.Ping(ctx); err != nil {
		if ldap.IsAuthenticationError(err) {
			return fmt.Errorf("directory bind rejected, check credentials: %w", err)
		}
		return fmt.Errorf("directory is unreachable: %w", err)
	}

	gate := rate.NewGate(opts.RatePerSecond)
	var profile *rate.Profile
	if opts.VariableRateData != "" {
		profile, err = rate.LoadProfile(opts.VariableRateData)
		if err != nil {
			return err
		}
	}

	out, closeOut, err := openOutput(opts.OutputFile)
	if err != nil {
		return err
	}
	defer closeOut()

	sink, err := output.NewSink(output.Config{
		Output:               out,
		RejectPath:           opts.RejectFile,
		AppendToReject:       opts.AppendToRejectFile,
		SuppressEmptyResults: opts.SuppressEmptyResults,
	}, logger)
	if err != nil {
		return err
	}

	p := pipeline.New(pipeline.Config{
		Sources: pipeline.Sources{
			DNs:         opts.TargetDNs,
			DNFiles:     opts.TargetDNFiles,
			Filters:     opts.TargetFilters,
			FilterFiles: opts.TargetFilterFiles,
			UserIDs:     opts.TargetUserIDs,
			UserIDFiles: opts.TargetUserIDFiles,
		},
		Operations:       ops,
		BaseDN:           opts.BaseDN,
		UserIDAttribute:  opts.UserIDAttribute,
		PageSize:         opts.SimplePageSize,
		ResolverWorkers:  opts.NumSearchThreads,
		OperationWorkers: opts.NumThreads,
	}, client, gate, sink, logger)

	start := time.Now()
	if profile != nil {
		go profile.Schedule(ctx, start, gate)
	}

	runErr := p.Run(ctx)

	attempted, succeeded, failed := sink.Counts()
	if err := sink.Close(); err != nil {
		logger.Warn("failed to flush output", zap.Error(err))
	}

	logger.Info("run complete",
		zap.Uint64("attempted", attempted),
		zap.Uint64("succeeded", succeeded),
		zap.Uint64("failed", failed),
		zap.Duration("elapsed", time.Since(start)))

	if runErr != nil {
		return fmt.Errorf("run cancelled before completion: %w", runErr)
	}
	return nil
}

// openOutput returns the primary record stream: stdout by default, or
// the named file.
func openOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// connectionConfig translates the options into the client
// configuration.
func connectionConfig(opts *Options) *ldap.ConnectionConfig {
	cfg := ldap.DefaultConfig()
	cfg.Domain = opts.Domain
	cfg.LDAPURLs = opts.Servers
	cfg.BaseDN = opts.BaseDN
	cfg.Timeout = opts.Timeout
	cfg.Username = opts.BindDN
	cfg.Password = opts.BindPassword
	cfg.KerberosRealm = opts.KerberosRealm
	cfg.KerberosKeytab = opts.KerberosKeytab
	cfg.KerberosCCache = opts.KerberosCCache
	cfg.KerberosConfig = opts.KerberosConfig
	cfg.KerberosSPN = opts.KerberosSPN
	cfg.TLSCACertFile = opts.CACertFile
	cfg.MaxConnections = opts.PoolSize

	if opts.NoTLS {
		cfg.UseTLS = false
		cfg.SkipTLS = true
	}
	if opts.TLSSkipVerify {
		cfg.TLSConfig.InsecureSkipVerify = true
	}

	return cfg
}

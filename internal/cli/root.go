package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/isometry/accountctl/internal/rate"
)

// envPrefix is the environment variable prefix: --base-dn becomes
// ACCOUNTCTL_BASE_DN.
const envPrefix = "ACCOUNTCTL"

// NewRootCommand builds the accountctl command tree. Flags can be
// supplied on the command line or through ACCOUNTCTL_* environment
// variables; flags win.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "accountctl",
		Short: "Batch password-policy and account-state administration for LDAP directories",
		Long: `accountctl applies password-policy-state operations against many directory
entries in one run. Targets may be named directly by DN, discovered through
search filters, or looked up by user ID; per-target failures are recorded
without aborting the run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := resolveOptions(v)
			if err != nil {
				return err
			}
			if opts.GenerateSampleRateFile != "" {
				return rate.WriteSampleFile(opts.GenerateSampleRateFile)
			}
			return fmt.Errorf("no operation specified; see 'accountctl --help' for the operation list")
		},
	}

	registerFlags(cmd.PersistentFlags())
	bindFlags(cmd.PersistentFlags(), v)

	for _, opCmd := range newOperationCommands(v) {
		cmd.AddCommand(opCmd)
	}

	return cmd
}

// registerFlags declares every run option with its default.
func registerFlags(flags *pflag.FlagSet) {
	def := DefaultOptions()

	flags.String("domain", def.Domain, "directory domain, resolved to servers via DNS SRV records")
	flags.StringSlice("server", def.Servers, "directory server URL (ldap:// or ldaps://); overrides --domain")
	flags.String("base-dn", def.BaseDN, "base DN for target searches")
	flags.String("bind-dn", def.BindDN, "bind identity (DN, UPN, or DOMAIN\\user)")
	flags.String("bind-password", def.BindPassword, "password for simple bind")
	flags.Duration("timeout", def.Timeout, "connection timeout")
	flags.Int("pool-size", def.PoolSize, "maximum pooled connections")

	flags.String("kerberos-realm", def.KerberosRealm, "Kerberos realm for GSSAPI bind")
	flags.String("kerberos-keytab", def.KerberosKeytab, "path to Kerberos keytab")
	flags.String("kerberos-ccache", def.KerberosCCache, "path to Kerberos credential cache")
	flags.String("kerberos-config", def.KerberosConfig, "path to krb5.conf")
	flags.String("kerberos-spn", def.KerberosSPN, "explicit service principal override")

	flags.String("ca-cert-file", def.CACertFile, "path to CA certificate bundle")
	flags.Bool("tls-skip-verify", def.TLSSkipVerify, "skip TLS certificate verification")
	flags.Bool("no-tls", def.NoTLS, "connect without TLS")

	flags.StringArray("target-dn", def.TargetDNs, "target entry DN (repeatable)")
	flags.StringArray("target-dn-file", def.TargetDNFiles, "file of target DNs, one per line (repeatable)")
	flags.StringArray("target-filter", def.TargetFilters, "search filter selecting target entries (repeatable)")
	flags.StringArray("target-filter-file", def.TargetFilterFiles, "file of search filters, one per line (repeatable)")
	flags.StringArray("target-user-id", def.TargetUserIDs, "target user ID (repeatable)")
	flags.StringArray("target-user-id-file", def.TargetUserIDFiles, "file of user IDs, one per line (repeatable)")
	flags.String("user-id-attribute", def.UserIDAttribute, "attribute matched against plain user IDs")
	flags.Int("simple-page-size", def.SimplePageSize, "page size for target searches")

	flags.Int("num-threads", def.NumThreads, "concurrent operation workers")
	flags.Int("num-search-threads", def.NumSearchThreads, "concurrent search-resolution workers")

	flags.Float64("rate-per-second", def.RatePerSecond, "constant operation rate limit (0 = unlimited)")
	flags.String("variable-rate-data", def.VariableRateData, "YAML schedule of (offset, rate) steps")
	flags.String("generate-sample-rate-file", def.GenerateSampleRateFile, "write a sample variable-rate file to this path and exit")

	flags.String("output-file", def.OutputFile, "write records to this file instead of stdout")
	flags.String("reject-file", def.RejectFile, "additionally write failure records to this file")
	flags.Bool("append-to-reject-file", def.AppendToRejectFile, "append to the reject file instead of overwriting")
	flags.Bool("suppress-empty-result-operations", def.SuppressEmptyResults, "omit records that carry no attribute values")

	flags.String("log-level", def.LogLevel, "log verbosity (debug, info, warn, error)")
	flags.String("log-format", def.LogFormat, "log encoding (console or json)")
}

// bindFlags binds every flag to its viper key so environment
// variables are picked up.
func bindFlags(flags *pflag.FlagSet, v *viper.Viper) {
	flags.VisitAll(func(flag *pflag.Flag) {
		if err := v.BindPFlag(flag.Name, flag); err != nil {
			panic("failed to bind flag " + flag.Name + ": " + err.Error())
		}
	})
}

// resolveOptions materializes the effective options from flags and
// environment.
func resolveOptions(v *viper.Viper) (*Options, error) {
	opts := DefaultOptions()
	if err := v.Unmarshal(opts); err != nil {
		return nil, fmt.Errorf("failed to resolve options: %w", err)
	}
	return opts, nil
}

package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/accountctl/internal/rate"
)

func newBoundViper(t *testing.T, args ...string) *viper.Viper {
	t.Helper()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	registerFlags(flags)
	bindFlags(flags, v)
	require.NoError(t, flags.Parse(args))

	return v
}

func TestResolveOptionsDefaults(t *testing.T) {
	opts, err := resolveOptions(newBoundViper(t))
	require.NoError(t, err)

	assert.Equal(t, "uid", opts.UserIDAttribute)
	assert.Equal(t, 8, opts.NumThreads)
	assert.Equal(t, "info", opts.LogLevel)
}

func TestResolveOptionsFromFlags(t *testing.T) {
	opts, err := resolveOptions(newBoundViper(t,
		"--domain", "example.com",
		"--base-dn", "dc=example,dc=com",
		"--target-dn", "uid=a,dc=example,dc=com",
		"--target-dn", "uid=b,dc=example,dc=com",
		"--rate-per-second", "250",
		"--num-threads", "16",
	))
	require.NoError(t, err)

	assert.Equal(t, "example.com", opts.Domain)
	assert.Equal(t, "dc=example,dc=com", opts.BaseDN)
	assert.Equal(t, []string{"uid=a,dc=example,dc=com", "uid=b,dc=example,dc=com"}, opts.TargetDNs)
	assert.Equal(t, float64(250), opts.RatePerSecond)
	assert.Equal(t, 16, opts.NumThreads)
	assert.NoError(t, opts.Validate())
}

func TestResolveOptionsFromEnvironment(t *testing.T) {
	t.Setenv("ACCOUNTCTL_BASE_DN", "dc=env,dc=example,dc=com")
	t.Setenv("ACCOUNTCTL_LOG_LEVEL", "debug")

	opts, err := resolveOptions(newBoundViper(t))
	require.NoError(t, err)

	assert.Equal(t, "dc=env,dc=example,dc=com", opts.BaseDN)
	assert.Equal(t, "debug", opts.LogLevel)
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("ACCOUNTCTL_BASE_DN", "dc=env,dc=example,dc=com")

	opts, err := resolveOptions(newBoundViper(t, "--base-dn", "dc=flag,dc=example,dc=com"))
	require.NoError(t, err)

	assert.Equal(t, "dc=flag,dc=example,dc=com", opts.BaseDN)
}

func TestRootCommandHasOperationSubcommands(t *testing.T) {
	root := NewRootCommand()

	var names []string
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Use)
	}

	assert.Contains(t, names, "get-all")
	assert.Contains(t, names, "get-account-is-usable")
	assert.Contains(t, names, "set-account-is-disabled")
	assert.Contains(t, names, "clear-auth-failure-times")
}

func TestGenerateSampleRateFileMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")

	root := NewRootCommand()
	root.SetArgs([]string{"--generate-sample-rate-file", path})
	require.NoError(t, root.Execute())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	// The emitted sample must parse back into a valid schedule.
	profile, err := rate.ParseProfile(data)
	require.NoError(t, err)
	assert.NotEmpty(t, profile.Steps)
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug", "json")
	require.NoError(t, err)
	require.NotNil(t, logger)

	logger, err = NewLogger("info", "console")
	require.NoError(t, err)
	require.NotNil(t, logger)

	_, err = NewLogger("shout", "console")
	assert.Error(t, err)

	_, err = NewLogger("info", "xml")
	assert.Error(t, err)
}

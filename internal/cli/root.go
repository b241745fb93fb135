package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/netprobe/internal/config"
	"github.com/netprobe/internal/logger"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// probeViper holds the root command's flags overlaid with NETPROBE_* env.
var probeViper = viper.New()

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "netprobe <URL|IP:PORT> <tcp|udp|http|https>",
	Short: "Multi-protocol network probe",
	Long: `netprobe sends a message or a file over TCP, fires a UDP datagram, or
issues an HTTP(S) GET, and prints whatever comes back. With --count it
repeats the exchange concurrently across a worker pool.

Examples:
  netprobe 127.0.0.1:9000 tcp --message hello
  netprobe 127.0.0.1:9000 tcp --file payload.bin --save reply.bin
  netprobe 10.0.0.5:514 udp -m "test event" -n 10
  netprobe example.com https

Other commands:
  netprobe run --config netprobe.yaml   Dispatch every request in a file
  netprobe echo                         Start a local echo target`,
	Args:    positionalArgs,
	PreRunE: bindProbeFlags,
	RunE:    runProbe,
	Version: versionString(),

	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &ArgumentError{Msg: "invalid flags", Err: err}
	})

	flags := rootCmd.Flags()
	flags.StringP("message", "m", "", "Message to send (tcp, udp)")
	flags.StringP("file", "f", "", "File whose contents are sent (tcp)")
	flags.UintP("count", "n", 1, "Number of concurrent repetitions")
	flags.StringP("save", "s", "", "Save the raw response bytes to this file")
	flags.Int("parallelism", config.DefaultParallelism(), "Number of worker goroutines")
	flags.Float64("rate", 0, "Maximum jobs started per second (0 = unlimited)")
	flags.Duration("timeout", 0, "Deadline for each exchange (0 = none)")
	flags.Bool("insecure", false, "Skip TLS certificate verification")
	flags.Bool("half-close", true, "Close the TCP write side after sending")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	flags.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	flags.Bool("summary", false, "Print a dispatch summary to stderr")
}

// SetVersion sets the version info
func SetVersion(v, bt string) {
	version = v
	buildTime = bt
	rootCmd.Version = versionString()
}

// SetGitCommit sets the commit the binary was built from
func SetGitCommit(c string) {
	gitCommit = c
	rootCmd.Version = versionString()
}

func versionString() string {
	return fmt.Sprintf("%s (built %s, commit %s)", version, buildTime, gitCommit)
}

// ArgumentError reports unusable command-line input. It is always detected
// before anything is sent.
type ArgumentError struct {
	Msg string
	Err error
}

func (e *ArgumentError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *ArgumentError) Unwrap() error {
	return e.Err
}

func positionalArgs(cmd *cobra.Command, args []string) error {
	if len(args) != 2 {
		return &ArgumentError{Msg: fmt.Sprintf("expected an address and a mode, got %d argument(s)", len(args))}
	}
	return nil
}

// loadEnv reads .env files and maps NETPROBE_* variables onto v.
func loadEnv(v *viper.Viper) {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v.SetEnvPrefix("netprobe")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

func bindProbeFlags(cmd *cobra.Command, args []string) error {
	loadEnv(probeViper)
	return probeViper.BindPFlags(cmd.Flags())
}

// probe is a single request from the command line plus the settings to
// run it with.
type probe struct {
	request config.Request
	config  *config.Config
	summary bool
}

// buildProbe turns positional args and flag/env values into a validated
// probe.
func buildProbe(v *viper.Viper, args []string) (*probe, error) {
	mode, err := config.ParseMode(args[1])
	if err != nil {
		return nil, &ArgumentError{Msg: "invalid mode", Err: err}
	}

	count, err := cast.ToUintE(v.Get("count"))
	if err != nil {
		return nil, &ArgumentError{Msg: "invalid --count", Err: err}
	}
	parallelism, err := cast.ToIntE(v.Get("parallelism"))
	if err != nil {
		return nil, &ArgumentError{Msg: "invalid --parallelism", Err: err}
	}
	rate, err := cast.ToFloat64E(v.Get("rate"))
	if err != nil {
		return nil, &ArgumentError{Msg: "invalid --rate", Err: err}
	}
	timeout, err := cast.ToDurationE(v.Get("timeout"))
	if err != nil {
		return nil, &ArgumentError{Msg: "invalid --timeout", Err: err}
	}

	cfg := config.DefaultConfig()
	cfg.Dispatch.Parallelism = parallelism
	cfg.Dispatch.Rate = rate
	cfg.Transport.Timeout = timeout
	cfg.Transport.TLSInsecure = v.GetBool("insecure")
	cfg.Transport.HalfClose = v.GetBool("half-close")
	cfg.Log.Level = v.GetString("log-level")
	if addr := v.GetString("metrics-addr"); addr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Address = addr
	}

	req := config.Request{
		Name:     "probe",
		Address:  args[0],
		Protocol: mode,
		Message:  v.GetString("message"),
		File:     v.GetString("file"),
		Save:     v.GetString("save"),
		Count:    count,
	}
	cfg.Requests = []config.Request{req}

	if err := config.Validate(cfg); err != nil {
		return nil, &ArgumentError{Msg: "invalid arguments", Err: err}
	}

	return &probe{request: req, config: cfg, summary: v.GetBool("summary")}, nil
}

func runProbe(cmd *cobra.Command, args []string) error {
	p, err := buildProbe(probeViper, args)
	if err != nil {
		return err
	}

	log := logger.New(cmd.ErrOrStderr(), p.config.Log.Level, p.config.Log.Colors)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return dispatchAll(ctx, p.config, p.config.Requests, dispatchOutput{
		stdout:  cmd.OutOrStdout(),
		stderr:  cmd.ErrOrStderr(),
		summary: p.summary,
	}, log)
}

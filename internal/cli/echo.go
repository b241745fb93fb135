package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/netprobe/internal/echo"
	"github.com/netprobe/internal/logger"
	"github.com/spf13/cobra"
)

var (
	echoTCPAddr  string
	echoUDPAddr  string
	echoHTTPAddr string
	echoUDPReply bool
	echoLogLevel string
)

var echoCmd = &cobra.Command{
	Use:   "echo",
	Short: "Start a local echo target",
	Long: `Start TCP, UDP and HTTP echo servers to probe locally. The TCP server
answers once the client closes its write side; the HTTP server serves
/echo, /status/{code}, /health and /api/stats. An empty address disables
that server.

Example:
  netprobe echo --tcp 127.0.0.1:9000 --udp "" --http 127.0.0.1:8080`,
	Args: cobra.NoArgs,
	RunE: runEcho,
}

func init() {
	echoCmd.Flags().StringVar(&echoTCPAddr, "tcp", "127.0.0.1:9000", "TCP listen address")
	echoCmd.Flags().StringVar(&echoUDPAddr, "udp", "127.0.0.1:9001", "UDP listen address")
	echoCmd.Flags().StringVar(&echoHTTPAddr, "http", "127.0.0.1:8080", "HTTP listen address")
	echoCmd.Flags().BoolVar(&echoUDPReply, "udp-reply", true, "Send each datagram back to its sender")
	echoCmd.Flags().StringVar(&echoLogLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.AddCommand(echoCmd)
}

func runEcho(cmd *cobra.Command, args []string) error {
	if !logger.ValidLevel(echoLogLevel) {
		return &ArgumentError{Msg: fmt.Sprintf("invalid --log-level %q", echoLogLevel)}
	}
	if echoTCPAddr == "" && echoUDPAddr == "" && echoHTTPAddr == "" {
		return &ArgumentError{Msg: "at least one of --tcp, --udp, --http is required"}
	}

	log := logger.New(cmd.ErrOrStderr(), echoLogLevel, true)

	var (
		tcp    *echo.TCPServer
		udp    *echo.UDPServer
		httpSv *echo.HTTPServer
		err    error
	)
	defer func() {
		if tcp != nil {
			tcp.Close()
			log.Info(fmt.Sprintf("[echo] tcp stats: %+v", tcp.Stats()))
		}
		if udp != nil {
			udp.Close()
			log.Info(fmt.Sprintf("[echo] udp stats: %+v", udp.Stats()))
		}
		if httpSv != nil {
			httpSv.Close()
			log.Info(fmt.Sprintf("[echo] http stats: %+v", httpSv.Stats()))
		}
	}()

	if echoTCPAddr != "" {
		if tcp, err = echo.ListenTCP(echoTCPAddr, nil, log); err != nil {
			return err
		}
	}
	if echoUDPAddr != "" {
		if udp, err = echo.ListenUDP(echoUDPAddr, echoUDPReply, log); err != nil {
			return err
		}
	}
	if echoHTTPAddr != "" {
		if httpSv, err = echo.ListenHTTP(echoHTTPAddr, log); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log.Info("[echo] shutting down")
	return nil
}

// Command anarcast runs one proxy worker: it fetches the fleet's member
// list from a membership server, builds the routing ring, then accepts
// client connections and services the insert/request sub-protocol on
// each (§4.D, §6).
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"anarcast/cmd/cli"
	"anarcast/core"
	"anarcast/pkg/config"
)

func main() {
	root := &cobra.Command{
		Use:   "anarcast <membership-host:port>",
		Short: "Content-addressed anonymous block-store proxy worker",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}
	root.PersistentFlags().String("env", "", "configuration overlay to merge (ANARCAST_ENV)")
	root.AddCommand(cli.RingCmd)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	env, _ := cmd.Flags().GetString("env")
	if env == "" {
		env = os.Getenv("ANARCAST_ENV")
	}
	cfg, err := config.Load(env)
	if err != nil {
		return err
	}

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logger := logrus.StandardLogger()
	logger.SetLevel(level)

	reg := prometheus.NewRegistry()
	metrics := core.NewMetrics(reg)
	go serveMetrics(cfg.Metrics.ListenAddr, reg, logger)

	ring := core.NewRing(logger)
	membership := core.NewMembershipClient(args[0], logger)
	shutdown, err := core.LoadRing(membership, ring)
	if err != nil {
		return err
	}
	if shutdown {
		logger.Info("anarcast: empty fleet at startup, exiting cleanly")
		return nil
	}

	engine := core.NewTransferEngine(ring, core.TransferEngineConfig{
		Concurrency:    cfg.Transfer.Concurrency,
		RequestRetries: cfg.Transfer.RequestRetries,
		Logger:         logger,
		Metrics:        metrics,
	})
	orch := core.NewOrchestrator(core.OrchestratorConfig{
		Graphs:  core.NewGraphTable(cfg.Graph.Max),
		Engine:  engine,
		Logger:  logger,
		Metrics: metrics,
	})

	return acceptLoop(cfg.Network.ListenAddr, orch, logger)
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warnf("metrics server stopped: %v", err)
	}
}

// acceptLoop accepts client connections and services each on its own
// goroutine (the Go counterpart of the source's detached thread per
// accepted client).
func acceptLoop(addr string, orch *core.Orchestrator, logger *logrus.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()
	logger.Infof("anarcast: listening on %s", addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go serveClient(conn, orch, logger)
	}
}

// serveClient reads the one-byte command (§6: 'i' or 'r') and dispatches
// to the orchestrator, closing the connection on completion or error.
func serveClient(conn net.Conn, orch *core.Orchestrator, logger *logrus.Logger) {
	defer conn.Close()

	var cmdBuf [1]byte
	if _, err := conn.Read(cmdBuf[:]); err != nil {
		logger.Warnf("client %s: read command: %v", conn.RemoteAddr(), err)
		return
	}

	ctx := context.Background()
	var err error
	switch cmdBuf[0] {
	case 'i':
		err = orch.Insert(ctx, conn, conn)
	case 'r':
		err = orch.Request(ctx, conn, conn)
	default:
		logger.Warnf("client %s: unknown command %q", conn.RemoteAddr(), cmdBuf[0])
		return
	}
	if err != nil {
		logger.Warnf("client %s: %v", conn.RemoteAddr(), err)
	}
}

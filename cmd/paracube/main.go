// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

// Command paracube runs one node of a distributed cube-and-conquer SAT
// solver (spec.md §§1-2). It parses a DIMACS formula, stands up the
// broker (C9) and its transport, optionally dials a set of peers, and
// either exits once its own formula's root task resolves or, in
// --daemon mode, keeps serving other nodes' offloaded work until
// killed.
//
// Grounded on cmd/gini/main.go's flag set and exit-code convention
// (10 SAT / 20 UNSAT / 1 usage / 2 I/O-protocol), restructured onto
// github.com/spf13/cobra the way tutu/internal/cli/root.go is, per
// SPEC_FULL.md's Configuration & CLI section.
package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/irifrance/paracube/broker"
	"github.com/irifrance/paracube/engine"
	"github.com/irifrance/paracube/offload"
	"github.com/irifrance/paracube/registry"
	"github.com/irifrance/paracube/runner"
	"github.com/irifrance/paracube/task"
)

var cli cliConfig

var configPath string

func init() {
	cli = defaultCLIConfig()

	rootCmd.Flags().StringVar(&configPath, "config", "", "optional TOML file of flag defaults")
	rootCmd.Flags().IntVar(&cli.Workers, "workers", cli.Workers, "worker goroutines (0 = runtime.NumCPU())")
	rootCmd.Flags().IntVar(&cli.TCPPort, "tcp-port", cli.TCPPort, "TCP port for the transport reactor (0 = OS-assigned)")
	rootCmd.Flags().IntVar(&cli.UDPPort, "udp-port", cli.UDPPort, "UDP port for remote announcements (0 = OS-assigned)")
	rootCmd.Flags().BoolVar(&cli.Daemon, "daemon", cli.Daemon, "keep serving after the local formula resolves")
	rootCmd.Flags().StringVar(&cli.Name, "name", cli.Name, "this node's display name")
	rootCmd.Flags().StringArrayVar(&cli.Connect, "connect", cli.Connect, "host:port of a peer to dial (repeatable)")
	rootCmd.Flags().IntVar(&cli.CubeDepth, "cube-depth", cli.CubeDepth, "maximum cube split depth")
	rootCmd.Flags().IntVar(&cli.InitialSplitTimeoutMS, "initial-split-timeout", cli.InitialSplitTimeoutMS, "lookahead budget in milliseconds before a split gives up")
	rootCmd.Flags().StringVar(&cli.LogLevel, "log-level", cli.LogLevel, "trace, debug, info, warn, or fatal")
	rootCmd.Flags().StringVar(&cli.AdminAddr, "admin-addr", cli.AdminAddr, "address to serve the read-only /status and /metrics HTTP routes (empty disables)")
}

var rootCmd = &cobra.Command{
	Use:           "paracube [file|-]",
	Short:         "Distributed cube-and-conquer SAT solver",
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "paracube:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if configPath != "" {
		fileCfg, err := loadCLIConfigFile(configPath)
		if err != nil {
			os.Exit(1)
		}
		mergeUnsetFlags(cmd, &fileCfg)
		cli = fileCfg
	}
	if err := validateLogLevel(cli.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, "paracube:", err)
		os.Exit(1)
	}

	inputPath := "-"
	if len(args) == 1 {
		inputPath = args[0]
	}
	src, err := readSource(inputPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "paracube:", err)
		os.Exit(2)
	}

	b := newBroker(cli)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	listenErr := make(chan error, 1)
	go func() { listenErr <- b.Listen(ctx) }()

	select {
	case err := <-listenErr:
		fmt.Fprintln(os.Stderr, "paracube:", err)
		os.Exit(2)
	case <-b.Ready():
	}

	for _, addr := range cli.Connect {
		if err := b.Dial(ctx, addr); err != nil {
			log.Printf("paracube: connect %s: %s", addr, err)
		}
	}

	if cli.AdminAddr != "" {
		srv := &http.Server{Addr: cli.AdminAddr, Handler: b.HTTPHandler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("paracube: admin server: %s", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	done, err := b.IngestFormula(localID(), src)
	if err != nil {
		fmt.Fprintln(os.Stderr, "paracube:", err)
		os.Exit(2)
	}

	select {
	case result := <-done:
		reportResult(result)
		if cli.Daemon {
			<-ctx.Done()
			b.Shutdown()
			os.Exit(0)
		}
		b.Shutdown()
		exitForResult(result)
	case <-ctx.Done():
		b.Shutdown()
		os.Exit(0)
	}
	return nil
}

// mergeUnsetFlags lets a flag explicitly passed on the command line win
// over the config file, and the config file win over the built-in
// default, matching tutu's serve.go override-if-nonzero convention.
func mergeUnsetFlags(cmd *cobra.Command, fileCfg *cliConfig) {
	if cmd.Flags().Changed("workers") {
		fileCfg.Workers = cli.Workers
	}
	if cmd.Flags().Changed("tcp-port") {
		fileCfg.TCPPort = cli.TCPPort
	}
	if cmd.Flags().Changed("udp-port") {
		fileCfg.UDPPort = cli.UDPPort
	}
	if cmd.Flags().Changed("daemon") {
		fileCfg.Daemon = cli.Daemon
	}
	if cmd.Flags().Changed("name") {
		fileCfg.Name = cli.Name
	}
	if cmd.Flags().Changed("connect") {
		fileCfg.Connect = cli.Connect
	}
	if cmd.Flags().Changed("cube-depth") {
		fileCfg.CubeDepth = cli.CubeDepth
	}
	if cmd.Flags().Changed("initial-split-timeout") {
		fileCfg.InitialSplitTimeoutMS = cli.InitialSplitTimeoutMS
	}
	if cmd.Flags().Changed("log-level") {
		fileCfg.LogLevel = cli.LogLevel
	}
	if cmd.Flags().Changed("admin-addr") {
		fileCfg.AdminAddr = cli.AdminAddr
	}
}

func newBroker(c cliConfig) *broker.Broker {
	cfg := broker.Config{
		LocalID: localID(),
		Name:    c.Name,
		Host:    localHost(),
		TCPAddr: net.JoinHostPort("0.0.0.0", strconv.Itoa(c.TCPPort)),
		UDPAddr: net.JoinHostPort("0.0.0.0", strconv.Itoa(c.UDPPort)),
		Daemon:  c.Daemon,

		Task: task.Config{
			Workers: c.Workers,
			Backlog: task.DefaultConfig.Backlog,
		},
		Runner: runner.Config{
			Workers:      c.Workers,
			MinDepth:     runner.DefaultConfig.MinDepth,
			MaxDepth:     c.CubeDepth,
			SplitTimeout: time.Duration(c.InitialSplitTimeoutMS) * time.Millisecond,
		},
		Registry: registry.DefaultConfig,
		Offload:  offload.DefaultConfig,
	}

	b := broker.New(cfg, engine.GiniFactory{})
	b.Trace(c.LogLevel == "trace" || c.LogLevel == "debug")
	return b
}

// localIDCache/localIDSet cache the randomly generated node identity so
// repeated calls (broker.Config, IngestFormula) agree within one process.
var localIDCache uint64
var localIDSet bool

func localID() uint64 {
	if localIDSet {
		return localIDCache
	}
	id := uuid.New()
	localIDCache = binary.LittleEndian.Uint64(id[:8])
	if localIDCache == 0 {
		localIDCache = 1 // 0 is reserved as "no peer" on the wire (transport/conn.go)
	}
	localIDSet = true
	return localIDCache
}

func localHost() string {
	h, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return h
}

func readSource(p string) (engine.Source, error) {
	if p == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return engine.Source{}, err
		}
		return engine.Source{Data: data}, nil
	}
	if _, err := os.Stat(p); err != nil {
		return engine.Source{}, err
	}
	return engine.Source{Path: p}, nil
}

func reportResult(r task.Result) {
	switch r {
	case task.ResultSAT:
		fmt.Println("s SATISFIABLE")
	case task.ResultUNSAT:
		fmt.Println("s UNSATISFIABLE")
	default:
		fmt.Println("s UNKNOWN")
	}
}

func exitForResult(r task.Result) {
	switch r {
	case task.ResultSAT:
		os.Exit(10)
	case task.ResultUNSAT:
		os.Exit(20)
	default:
		os.Exit(2)
	}
}

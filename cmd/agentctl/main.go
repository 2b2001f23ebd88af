package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"meshhub/internal/client"
	"meshhub/internal/config"
	"meshhub/internal/jsonrpc"
	"meshhub/internal/utils"
)

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		usage()
		return 1
	}
	switch os.Args[1] {
	case "run":
		return runClient(os.Args[2:])
	case "status":
		return runStatus(os.Args[2:])
	case "agents":
		return runAgents(os.Args[2:])
	case "help", "-h", "--help":
		usage()
		return 0
	default:
		color.Red("unknown command: %s", os.Args[1])
		usage()
		return 1
	}
}

func usage() {
	cyan := color.New(color.FgCyan)
	cyan.Println("agentctl <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run      start the client runtime (connection + keepalive + dispatch loop)")
	fmt.Println("  status   query the hub's admin socket for uptime/session counts")
	fmt.Println("  agents   list agents currently registered with the hub")
	fmt.Println()
	fmt.Println("Environment (used by run):")
	fmt.Println("  HUB_URL                    hub base URL")
	fmt.Println("  AGENT_ID                   this agent's id (required)")
	fmt.Println("  KEEPALIVE_MODE             off|active (default off)")
	fmt.Println("  KEEPALIVE_INTERVAL_MS      default 3000")
	fmt.Println("  WAIT_TIMEOUT_MS            default 20000")
	fmt.Println("  RECONNECT_MAX_BACKOFF_MS   default 16000")
}

func runClient(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	verbose := fs.Bool("verbose", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg := config.LoadRuntimeConfigFromEnv()
	if cfg.AgentId == "" {
		color.Red("AGENT_ID is required")
		return 1
	}

	level := "info"
	if *verbose {
		level = "debug"
	}
	logger := utils.NewLogger(level)

	conn := client.NewConnection(cfg, logger)
	keepalive := client.NewKeepalive(cfg, conn, logger)
	dispatch := client.NewDispatch(cfg, conn, client.NoOpBrain{}, logger)

	ctx, cancel := contextWithSignals()
	defer cancel()

	go conn.Run(ctx)
	go keepalive.Run(ctx)
	go dispatch.Run(ctx)

	color.Green("agentctl running as %s against %s", cfg.AgentId, cfg.HubURL)
	<-ctx.Done()
	logger.Infof("shutting down")
	return 0
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	socketPath := fs.String("socket", "/tmp/meshhub.sock", "hub admin unix socket path")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	resp, err := sendRPCUnix(*socketPath, jsonrpc.Request{JSONRPC: "2.0", Method: "hub/status", Params: nil, ID: "1"})
	if err != nil {
		color.Red("hub not responding: %v", err)
		return 1
	}
	printResponse(resp)
	return 0
}

func runAgents(args []string) int {
	fs := flag.NewFlagSet("agents", flag.ContinueOnError)
	socketPath := fs.String("socket", "/tmp/meshhub.sock", "hub admin unix socket path")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	resp, err := sendRPCUnix(*socketPath, jsonrpc.Request{JSONRPC: "2.0", Method: "hub/agents/list", Params: nil, ID: "1"})
	if err != nil {
		color.Red("hub not responding: %v", err)
		return 1
	}
	printResponse(resp)
	return 0
}

func sendRPCUnix(socketPath string, req jsonrpc.Request) (jsonrpc.Response, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return jsonrpc.Response{}, err
	}
	defer conn.Close()
	data, err := json.Marshal(req)
	if err != nil {
		return jsonrpc.Response{}, err
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return jsonrpc.Response{}, err
	}
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return jsonrpc.Response{}, err
	}
	var resp jsonrpc.Response
	if err := json.Unmarshal(bytes.TrimSpace(line), &resp); err != nil {
		return jsonrpc.Response{}, err
	}
	return resp, nil
}

func printResponse(resp jsonrpc.Response) {
	if resp.Error != nil {
		color.Red("error %d: %s", resp.Error.Code, resp.Error.Message)
		return
	}
	data, _ := json.MarshalIndent(resp.Result, "", "  ")
	fmt.Println(string(data))
}

func contextWithSignals() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}

package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"

	"meshhub/internal/config"
	"meshhub/internal/hub"
	"meshhub/internal/jsonrpc"
	"meshhub/internal/utils"
)

// UnixTransport is a narrow, read-only admin/debug control channel,
// separate from the agent-facing HTTP+SSE Tool Surface: it exposes only
// hub/status and hub/agents/list, newline-delimited JSON-RPC over a unix
// socket, for local operator tooling (cmd/agentctl's status/agents
// subcommands).
type UnixTransport struct {
	cfg    config.HubConfig
	server *hub.Server
	logger *utils.Logger
	ln     net.Listener
}

func NewUnixTransport(cfg config.HubConfig, server *hub.Server, logger *utils.Logger) *UnixTransport {
	return &UnixTransport{cfg: cfg, server: server, logger: logger}
}

func (t *UnixTransport) Start(ctx context.Context) error {
	_ = os.Remove(t.cfg.Socket.Path)
	ln, err := net.Listen("unix", t.cfg.Socket.Path)
	if err != nil {
		return err
	}
	t.ln = ln

	go func() {
		<-ctx.Done()
		_ = ln.Close()
		_ = os.Remove(t.cfg.Socket.Path)
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				t.logger.Warnf("admin socket accept error: %v", err)
				continue
			}
		}
		go t.handleConn(ctx, conn)
	}
}

func (t *UnixTransport) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var req jsonrpc.Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		resp := t.dispatch(req)
		data, _ := json.Marshal(resp)
		conn.Write(append(data, '\n'))
	}
}

func (t *UnixTransport) dispatch(req jsonrpc.Request) jsonrpc.Response {
	switch req.Method {
	case "hub/status":
		return jsonrpc.Response{JSONRPC: "2.0", Result: t.server.Status(), ID: req.ID}
	case "hub/agents/list":
		return jsonrpc.Response{JSONRPC: "2.0", Result: t.server.Registry().ListAgents(true), ID: req.ID}
	default:
		return jsonrpc.Response{JSONRPC: "2.0", Error: &jsonrpc.RPCError{Code: jsonrpc.ErrMethodNotFound, Message: "method not found"}, ID: req.ID}
	}
}

package tui

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"meshhub/internal/jsonrpc"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("160"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	rowStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	dropStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

type statusData struct {
	Uptime       int `json:"uptimeSeconds"`
	SessionCount int `json:"sessionCount"`
	ThreadCount  int `json:"threadCount"`
}

type agentRow struct {
	AgentId            string `json:"agentId"`
	Description        string `json:"description"`
	MentionBufferDepth int    `json:"mentionBufferDepth"`
	MentionsDropped    int    `json:"mentionsDropped"`
	Departed           bool   `json:"departed"`
}

type tickMsg time.Time

type statusMsg struct{ data statusData }
type agentsMsg struct{ rows []agentRow }
type errMsg struct{ err error }

// Model is a small, read-only live monitor of a Hub's admin socket: it
// polls hub/status and hub/agents/list on a tick and renders connected
// agents, thread counts, and per-agent mention-buffer depth/drop counters.
type Model struct {
	socketPath string
	spinner    spinner.Model
	status     statusData
	agents     []agentRow
	err        error
	loading    bool
	width      int
}

func NewModel(socketPath string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return Model{socketPath: socketPath, spinner: s, loading: true}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, refreshCmd(m.socketPath), tickCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tickMsg:
		return m, tea.Batch(refreshCmd(m.socketPath), tickCmd())
	case statusMsg:
		m.status = msg.data
		m.loading = false
		m.err = nil
	case agentsMsg:
		m.agents = msg.rows
		m.loading = false
		m.err = nil
	case errMsg:
		m.err = msg.err
		m.loading = false
	default:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("meshhub monitor"))
	b.WriteString("  ")
	b.WriteString(dimStyle.Render(fmt.Sprintf("sessions=%d threads=%d uptime=%ds", m.status.SessionCount, m.status.ThreadCount, m.status.Uptime)))
	if m.loading {
		b.WriteString("  " + m.spinner.View())
	}
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errStyle.Render("error: "+m.err.Error()) + "\n")
	}

	rows := append([]agentRow(nil), m.agents...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].AgentId < rows[j].AgentId })
	for _, a := range rows {
		status := "connected"
		if a.Departed {
			status = "departed"
		}
		line := fmt.Sprintf("%-20s %-10s buffer=%-4d", a.AgentId, status, a.MentionBufferDepth)
		if a.MentionsDropped > 0 {
			line += " " + dropStyle.Render(fmt.Sprintf("dropped=%d", a.MentionsDropped))
		}
		b.WriteString(rowStyle.Render(line) + "\n")
	}
	if len(rows) == 0 && !m.loading {
		b.WriteString(dimStyle.Render("no agents registered") + "\n")
	}

	b.WriteString("\n" + footerStyle.Render("q to quit"))
	return b.String()
}

func tickCmd() tea.Cmd {
	return tea.Tick(3*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func refreshCmd(socketPath string) tea.Cmd {
	return tea.Batch(fetchStatusCmd(socketPath), fetchAgentsCmd(socketPath))
}

func fetchStatusCmd(socketPath string) tea.Cmd {
	return func() tea.Msg {
		status, err := fetchStatus(socketPath)
		if err != nil {
			return errMsg{err}
		}
		return statusMsg{status}
	}
}

func fetchAgentsCmd(socketPath string) tea.Cmd {
	return func() tea.Msg {
		agents, err := fetchAgents(socketPath)
		if err != nil {
			return errMsg{err}
		}
		return agentsMsg{agents}
	}
}

func fetchStatus(socketPath string) (statusData, error) {
	resp, err := sendRPCUnix(socketPath, jsonrpc.Request{JSONRPC: "2.0", Method: "hub/status", ID: "1"})
	if err != nil {
		return statusData{}, err
	}
	if resp.Error != nil {
		return statusData{}, fmt.Errorf("%s", resp.Error.Message)
	}
	var data statusData
	if err := decodeResult(resp.Result, &data); err != nil {
		return statusData{}, err
	}
	return data, nil
}

func fetchAgents(socketPath string) ([]agentRow, error) {
	resp, err := sendRPCUnix(socketPath, jsonrpc.Request{JSONRPC: "2.0", Method: "hub/agents/list", ID: "1"})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%s", resp.Error.Message)
	}
	var rows []agentRow
	if err := decodeResult(resp.Result, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func decodeResult(result any, out any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
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

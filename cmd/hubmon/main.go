package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"meshhub/internal/tui"
)

func main() {
	socketPath := flag.String("socket", "/tmp/meshhub.sock", "hub admin unix socket path")
	flag.Parse()

	p := tea.NewProgram(tui.NewModel(*socketPath))
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "hubmon:", err)
		os.Exit(1)
	}
}

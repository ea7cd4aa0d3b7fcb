package components

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fd1az/poolsync/pkg/ui/theme"
)

// ConnectionStatus represents a connection's status.
type ConnectionStatus struct {
	Name       string
	Connected  bool
	Latency    time.Duration
	LastUpdate time.Time
}

// StatusComponent renders connection status.
type StatusComponent struct {
	connections map[string]ConnectionStatus
}

// NewStatusComponent creates a new status component.
func NewStatusComponent() *StatusComponent {
	return &StatusComponent{connections: make(map[string]ConnectionStatus)}
}

// Update updates a connection's status.
func (s *StatusComponent) Update(status ConnectionStatus) {
	s.connections[status.Name] = status
}

// Connected reports whether the named connection is up.
func (s *StatusComponent) Connected(name string) bool {
	return s.connections[name].Connected
}

// View renders the status line.
func (s *StatusComponent) View() string {
	if len(s.connections) == 0 {
		return theme.Faint.Render("No connections")
	}

	names := make([]string, 0, len(s.connections))
	for name := range s.connections {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		conn := s.connections[name]
		if !conn.Connected {
			parts = append(parts, theme.Down.Render("○ "+name+" (disconnected)"))
			continue
		}
		label := "● " + name
		if conn.Latency > 0 {
			label += fmt.Sprintf(" (%dms)", conn.Latency.Milliseconds())
		}
		parts = append(parts, theme.Up.Render(label))
	}
	return strings.Join(parts, "  ")
}

package status

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/john/gmodrelay/internal/message"
)

// Store holds the most recent status snapshot pushed by the game server.
// Writes replace the snapshot wholesale, last write wins.
type Store struct {
	mu       sync.RWMutex
	snapshot message.ServerStatus
	set      bool
}

// NewStore creates an empty status store.
func NewStore() *Store {
	return &Store{}
}

// Set replaces the current snapshot.
func (s *Store) Set(snapshot message.ServerStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snapshot
	s.set = true
}

// Get returns the current snapshot and whether one has been pushed yet.
func (s *Store) Get() (message.ServerStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot, s.set
}

// Format renders a snapshot as the text block shown by the /status command.
func Format(st message.ServerStatus) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### %s\n", st.Hostname)
	fmt.Fprintf(&b, "**%s - %s**\n\n", st.Gamemode, st.Map)
	fmt.Fprintf(&b, "%d/%d players\n", len(st.Players), st.MaxPlayers)
	b.WriteString("```\n")

	players := make([]message.PlayerStatus, len(st.Players))
	copy(players, st.Players)
	sort.Slice(players, func(i, j int) bool { return players[i].Score < players[j].Score })

	for _, p := range players {
		prefix := ""
		if p.Bot {
			prefix = "[BOT] "
		}
		fmt.Fprintf(&b, "%s<%s> %s - %d Score - %s\n", prefix, p.Usergroup, p.Name, p.Score, formatPlayTime(p.Time))
	}
	if len(players) == 0 {
		b.WriteString("No one is currently playing\n")
	}

	b.WriteString("```\n")
	fmt.Fprintf(&b, "***%s***", st.HostAddress)
	return b.String()
}

func formatPlayTime(seconds int) string {
	h := seconds / 3600
	m := (seconds / 60) % 60
	s := seconds % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

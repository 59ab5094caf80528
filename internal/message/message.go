package message

// Event represents a single chat message relayed through the bridge,
// from either the Discord side or the game side.
type Event struct {
	Username string `json:"username"`            // Author's display name
	Content  string `json:"content"`             // Chat message content
	MediaURL string `json:"media_url,omitempty"` // Attachment or sticker URL, if any
}

// WirePair returns the two-element form the game server consumes:
// [username, content], with the media URL appended on a new line when present.
func (e Event) WirePair() [2]string {
	content := e.Content
	if e.MediaURL != "" {
		content = content + "\n" + e.MediaURL
	}
	return [2]string{e.Username, content}
}

// PlayerStatus describes one connected player in a status snapshot.
type PlayerStatus struct {
	Name      string `json:"name"`
	Usergroup string `json:"usergroup"`
	Score     int    `json:"score"`
	Time      int    `json:"time"` // Seconds played this session
	Bot       bool   `json:"bot"`
}

// ServerStatus is the snapshot the game server pushes to /status.
type ServerStatus struct {
	Hostname    string         `json:"hostname"`
	HostAddress string         `json:"hostaddress"`
	Gamemode    string         `json:"gamemode"`
	Map         string         `json:"map"`
	Players     []PlayerStatus `json:"players"`
	MaxPlayers  int            `json:"maxplayers"`
	Meta        []any          `json:"meta,omitempty"`
}

package transport

import "context"

// BlockKind identifies a rich-content block inside a Message.
type BlockKind string

const (
	BlockSection BlockKind = "section"
	BlockDivider BlockKind = "divider"
)

// Block is a platform-neutral rich-content block. Section blocks carry
// mrkdwn text; divider blocks carry nothing.
type Block struct {
	Kind     BlockKind
	Markdown string
}

// Message is an outgoing chat message. Text is always set: it is the whole
// message when Blocks is empty and the notification fallback otherwise.
type Message struct {
	Channel string
	Text    string
	Blocks  []Block
}

// Structured reports whether the message carries rich-content blocks.
func (m Message) Structured() bool { return len(m.Blocks) > 0 }

// Messenger posts messages to the chat platform.
type Messenger interface {
	PostMessage(ctx context.Context, msg Message) error
}

// Profile is a directory user profile.
type Profile struct {
	UserID      string
	DisplayName string
	Fields      map[string]string
}

// Field returns the value of a custom profile field ("" when absent).
func (p *Profile) Field(key string) string {
	if p == nil || p.Fields == nil {
		return ""
	}
	return p.Fields[key]
}

// Member is one roster entry as returned by the directory listing.
type Member struct {
	ID      string
	Name    string
	IsBot   bool
	Deleted bool
}

// MemberPage is one page of a directory listing. An empty NextCursor means
// the listing is complete.
type MemberPage struct {
	Members    []Member
	NextCursor string
}

// Directory is the workspace user directory.
type Directory interface {
	UserProfile(ctx context.Context, userID string) (*Profile, error)
	ListUsers(ctx context.Context, cursor string, limit int) (MemberPage, error)
}

// Command is an inbound slash command.
type Command struct {
	Name      string
	UserID    string
	ChannelID string
	Text      string
}

// CommandHandler answers a slash command. The returned text is sent back to
// the caller as an ephemeral response ("" sends nothing).
type CommandHandler func(ctx context.Context, cmd Command) string

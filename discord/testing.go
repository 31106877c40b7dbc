package discord

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Call is one recorded platform call made against a FakeClient.
type Call struct {
	Op        string
	GuildID   string
	UserID    string
	ChannelID string
	MessageID string
	Content   string
	Reason    string
	Until     *time.Time
}

// FakeClient is an in-memory Client for tests. Intentionally exported so
// other packages' tests can drive the engine without a live session.
type FakeClient struct {
	mu      sync.Mutex
	Guilds  map[string]*Guild
	Members map[string]*Member
	// Fail maps an op name ("kick", "timeout", "ban", "dm", ...) to the error
	// every call of that op should return.
	Fail   map[string]error
	Calls  []Call
	nextID int
}

var _ Client = (*FakeClient)(nil)

func NewFakeClient() *FakeClient {
	return &FakeClient{
		Guilds:  make(map[string]*Guild),
		Members: make(map[string]*Member),
		Fail:    make(map[string]error),
	}
}

// AddMember registers a member for FetchMember lookups.
func (c *FakeClient) AddMember(guildID string, m *Member) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Members[guildID+"/"+m.UserID] = m
}

// AddGuild registers a guild for FetchGuild lookups.
func (c *FakeClient) AddGuild(g *Guild) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Guilds[g.ID] = g
}

// CallsOf returns recorded calls for one op.
func (c *FakeClient) CallsOf(op string) []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Call
	for _, call := range c.Calls {
		if call.Op == op {
			out = append(out, call)
		}
	}
	return out
}

func (c *FakeClient) record(call Call) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, call)
	return c.Fail[call.Op]
}

func (c *FakeClient) FetchGuild(ctx context.Context, guildID string) (*Guild, error) {
	if err := c.record(Call{Op: "fetchGuild", GuildID: guildID}); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.Guilds[guildID]
	if !ok {
		return nil, &APIError{Code: CodeUnknownGuild, Message: "Unknown Guild"}
	}
	return g, nil
}

func (c *FakeClient) FetchMember(ctx context.Context, guildID, userID string) (*Member, error) {
	if err := c.record(Call{Op: "fetchMember", GuildID: guildID, UserID: userID}); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.Members[guildID+"/"+userID]
	if !ok {
		return nil, &APIError{Code: CodeUnknownMember, Message: "Unknown Member"}
	}
	return m, nil
}

func (c *FakeClient) Timeout(ctx context.Context, guildID, userID string, until *time.Time, reason string) error {
	return c.record(Call{Op: "timeout", GuildID: guildID, UserID: userID, Until: until, Reason: reason})
}

func (c *FakeClient) Kick(ctx context.Context, guildID, userID, reason string) error {
	return c.record(Call{Op: "kick", GuildID: guildID, UserID: userID, Reason: reason})
}

func (c *FakeClient) Ban(ctx context.Context, guildID, userID, reason string, deleteMessageSeconds int) error {
	return c.record(Call{Op: "ban", GuildID: guildID, UserID: userID, Reason: reason})
}

func (c *FakeClient) Unban(ctx context.Context, guildID, userID string) error {
	return c.record(Call{Op: "unban", GuildID: guildID, UserID: userID})
}

func (c *FakeClient) SendEmbed(ctx context.Context, channelID string, embed Embed) (string, error) {
	if err := c.record(Call{Op: "sendEmbed", ChannelID: channelID, Content: embed.Description}); err != nil {
		return "", err
	}
	return c.messageID(), nil
}

func (c *FakeClient) EditEmbed(ctx context.Context, channelID, messageID string, embed Embed) error {
	return c.record(Call{Op: "editEmbed", ChannelID: channelID, MessageID: messageID, Content: embed.Description})
}

func (c *FakeClient) SendDM(ctx context.Context, userID, content string) error {
	return c.record(Call{Op: "dm", UserID: userID, Content: content})
}

func (c *FakeClient) messageID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	return fmt.Sprintf("msg-%d", c.nextID)
}

package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warden-project/warden/automod/cases"
	"github.com/warden-project/warden/automod/counterstore"
	"github.com/warden-project/warden/discord"
	"github.com/warden-project/warden/models"
	"github.com/warden-project/warden/settings"
)

// StaticSettings is a settings.Source backed by a plain map, for tests.
type StaticSettings map[string]*settings.Snapshot

var _ settings.Source = (StaticSettings)(nil)

func (s StaticSettings) GetGuildSettings(ctx context.Context, guildID string) (*settings.Snapshot, error) {
	snap, ok := s[guildID]
	if !ok {
		return nil, nil
	}
	snap.GuildID = guildID
	return snap, nil
}

// RecordingCases is a CaseRecorder that just collects inputs.
type RecordingCases struct {
	mu     sync.Mutex
	Inputs []cases.Input
}

var _ CaseRecorder = (*RecordingCases)(nil)

func (r *RecordingCases) Create(ctx context.Context, input cases.Input) (*models.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Inputs = append(r.Inputs, input)
	return &models.Case{
		UUID:      uuid.NewString(),
		GuildID:   input.GuildID,
		CaseType:  string(input.Type),
		TargetID:  input.TargetID,
		CreatorID: input.CreatorID,
		Reason:    input.Reason,
		CreatedAt: time.Now(),
	}, nil
}

// OfType returns recorded inputs of one case type.
func (r *RecordingCases) OfType(t cases.Type) []cases.Input {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []cases.Input
	for _, in := range r.Inputs {
		if in.Type == t {
			out = append(out, in)
		}
	}
	return out
}

// RecordingTempBans collects scheduled unbans.
type RecordingTempBans struct {
	Scheduled []models.TempBan
}

var _ TempBanScheduler = (*RecordingTempBans)(nil)

func (r *RecordingTempBans) Schedule(ctx context.Context, guildID, userID string, expiresAt time.Time) error {
	r.Scheduled = append(r.Scheduled, models.TempBan{GuildID: guildID, UserID: userID, ExpiresAt: expiresAt})
	return nil
}

// Fixture bundles an engine with fake collaborators. Intentionally exported
// so other packages' tests can drive dispatch without a live platform.
type Fixture struct {
	Engine   *Engine
	Settings StaticSettings
	Counters *counterstore.MemStore
	Client   *discord.FakeClient
	Cases    *RecordingCases
	TempBans *RecordingTempBans
}

func EngineTestFixture() *Fixture {
	f := &Fixture{
		Settings: StaticSettings{},
		Counters: counterstore.NewMemStore(),
		Client:   discord.NewFakeClient(),
		Cases:    &RecordingCases{},
		TempBans: &RecordingTempBans{},
	}
	f.Engine = &Engine{
		Logger:   slog.Default(),
		Settings: f.Settings,
		Counters: f.Counters,
		Cases:    f.Cases,
		Client:   f.Client,
		TempBans: f.TempBans,
	}
	f.Engine.ListenCounterChanges(f.Counters)
	return f
}

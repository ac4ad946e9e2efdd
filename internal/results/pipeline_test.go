package results

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/rolecheck/api/schemas"
)

// recordingSink collects records in memory.
type recordingSink struct {
	mu      sync.Mutex
	records []schemas.Record
	failFor string
}

func (s *recordingSink) Save(_ context.Context, rec schemas.Record) error {
	if rec.Username == s.failFor {
		return errors.New("sheet quota exceeded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func fixedClock(t *testing.T) time.Time {
	t.Helper()
	ts := time.Date(2025, 10, 26, 10, 0, 0, 0, time.UTC)
	prev := nowFunc
	nowFunc = func() time.Time { return ts }
	t.Cleanup(func() { nowFunc = prev })
	return ts
}

func target(username, serverURL string) schemas.CheckTarget {
	return schemas.CheckTarget{ServerURL: serverURL, Username: username}
}

func TestNewRoleResult(t *testing.T) {
	ts := fixedClock(t)

	res := NewRoleResult(target("alice", "https://discord.com/channels/1/2"), []string{"Admin", "Mod", "Admin"}, nil)
	assert.Equal(t, "alice", res.Username)
	assert.Equal(t, "https://discord.com/channels/1/2", res.ServerURL)
	assert.True(t, res.Found)
	assert.Equal(t, []string{"Admin", "Mod"}, res.Roles)
	assert.Equal(t, ts, res.Timestamp)
	assert.Empty(t, res.Error)

	miss := NewRoleResult(target("bob", ""), nil, errors.New("user not found"))
	assert.False(t, miss.Found)
	assert.Equal(t, "user not found", miss.Error)
}

func TestToRecord(t *testing.T) {
	ts := fixedClock(t)
	res := NewRoleResult(target("alice", "https://discord.com/channels/1/2"), []string{"Admin", "Mod"}, nil)

	rec := ToRecord(res, "SN-7", map[string]schemas.SaveProfile{"alice": {Username: "Alice"}})
	assert.Equal(t, "Alice", rec.Username)
	assert.Equal(t, "SN-7", rec.SerialNumber)
	assert.Equal(t, "Admin, Mod", rec.Roles)

	row := rec.Row()
	require.Len(t, row, 6)
	assert.Equal(t, []any{"Alice", "SN-7", true, "Admin, Mod", ts.Format(schemas.TimestampLayout), ""}, row)

	empty := ToRecord(NewRoleResult(target("bob", ""), nil, nil), "SN-7", nil)
	assert.Equal(t, NoRoles, empty.Roles)
	assert.False(t, empty.Found)
}

func TestPipelinePersist(t *testing.T) {
	fixedClock(t)
	core, logs := observer.New(zapcore.InfoLevel)
	sink := &recordingSink{failFor: "carol"}
	p := NewPipeline(sink, zap.New(core))

	stats := p.Persist(context.Background(), "SN-1", []schemas.RoleResult{
		NewRoleResult(target("alice", ""), []string{"Admin"}, nil),
		NewRoleResult(target("carol", ""), nil, nil),
		NewRoleResult(target("  ", ""), nil, nil),
		NewRoleResult(target("bob", ""), nil, nil),
	}, nil)

	assert.Equal(t, PersistStats{Saved: 2, Failed: 1, Skipped: 1}, stats)
	require.Len(t, sink.records, 2)
	assert.Equal(t, "alice", sink.records[0].Username)
	assert.Equal(t, "bob", sink.records[1].Username)
	assert.Equal(t, 1, logs.FilterMessage("Failed to save result").Len())
}

func TestMultiSink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{failFor: "x"}
	m := MultiSink{a, nil, b}

	require.NoError(t, m.Save(context.Background(), schemas.Record{Username: "ok"}))
	assert.Len(t, a.records, 1)
	assert.Len(t, b.records, 1)

	err := m.Save(context.Background(), schemas.Record{Username: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota")
	assert.Len(t, a.records, 2, "a failing sink must not prevent the others from writing")
}

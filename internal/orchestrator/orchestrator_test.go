package orchestrator

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/rolecheck/api/schemas"
	"github.com/xkilldash9x/rolecheck/internal/checkerr"
	"github.com/xkilldash9x/rolecheck/internal/config"
	"github.com/xkilldash9x/rolecheck/internal/humanoid"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	server1 = "https://discord.com/channels/1/10"
	server2 = "https://discord.com/channels/2/20"
)

// -- Fakes --

type fakeChecker struct {
	factory *fakeFactory
	serial  string

	mu     sync.Mutex
	server string
	calls  []string
	closed int
}

func (c *fakeChecker) NavigateToServer(ctx context.Context, serverURL string) error {
	c.mu.Lock()
	c.server = serverURL
	c.mu.Unlock()
	if c.factory.hold > 0 {
		time.Sleep(c.factory.hold)
	}
	return c.factory.navErr
}

func (c *fakeChecker) GetUserRoles(ctx context.Context, username string) ([]string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, username)
	server := c.server
	c.mu.Unlock()
	if server == c.factory.panicServer {
		panic("scraper exploded")
	}
	if err, ok := c.factory.errs[username]; ok {
		return nil, err
	}
	return c.factory.roles[username], nil
}

func (c *fakeChecker) Close() {
	c.mu.Lock()
	c.closed++
	c.mu.Unlock()
	c.factory.release(c.serial)
}

func (c *fakeChecker) checked() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

type fakeFactory struct {
	roles       map[string][]string
	errs        map[string]error
	panicServer string
	navErr      error
	openErr     error
	hold        time.Duration

	mu           sync.Mutex
	checkers     []*fakeChecker
	active       int
	maxActive    int
	perSerial    map[string]int
	maxPerSerial int
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		roles: map[string][]string{
			"Alice": {"Admin", "Mod", "Admin"},
			"Bob":   {},
		},
		errs:      map[string]error{},
		perSerial: map[string]int{},
	}
}

func (f *fakeFactory) Open(_ context.Context, p schemas.Profile) (Checker, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &fakeChecker{factory: f, serial: p.SerialNumber}
	f.checkers = append(f.checkers, c)
	f.active++
	f.maxActive = max(f.maxActive, f.active)
	f.perSerial[p.SerialNumber]++
	f.maxPerSerial = max(f.maxPerSerial, f.perSerial[p.SerialNumber])
	return c, nil
}

func (f *fakeFactory) release(serial string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active--
	f.perSerial[serial]--
}

func (f *fakeFactory) opened() []*fakeChecker {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeChecker(nil), f.checkers...)
}

type fakeSource struct {
	servers   []string
	usernames []string
	profiles  []schemas.Profile
	save      map[string]schemas.SaveProfile
	saveErr   error
}

func (s *fakeSource) ServerLinks(context.Context) ([]string, error) { return s.servers, nil }
func (s *fakeSource) Usernames(context.Context) ([]string, error)   { return s.usernames, nil }
func (s *fakeSource) Profiles(context.Context) ([]schemas.Profile, error) {
	return s.profiles, nil
}
func (s *fakeSource) CheckProfiles(context.Context) (map[string]schemas.SaveProfile, error) {
	return s.save, s.saveErr
}

type memorySink struct {
	mu   sync.Mutex
	recs []schemas.Record
	err  error
}

func (m *memorySink) Save(_ context.Context, rec schemas.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memorySink) records() []schemas.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]schemas.Record(nil), m.recs...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ServerURL != out[j].ServerURL {
			return out[i].ServerURL < out[j].ServerURL
		}
		return out[i].Username < out[j].Username
	})
	return out
}

type memoryArchive struct {
	mu      sync.Mutex
	batches [][]schemas.Record
}

func (a *memoryArchive) SaveBatch(_ context.Context, recs []schemas.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.batches = append(a.batches, recs)
	return nil
}

// -- Helpers --

func profile(serial string) schemas.Profile {
	return schemas.Profile{SerialNumber: serial, Email: serial + "@example.com", Password: "pw"}
}

func testConfig(parallel bool, workers int) *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Threading.Enabled = parallel
	cfg.Threading.MaxWorkers = workers
	cfg.Threading.MaxTasksPerProfile = 1
	return cfg
}

func newTestOrchestrator(t *testing.T, cfg *config.Config, src Source, f Factory, sink *memorySink, opts ...Option) *Orchestrator {
	t.Helper()
	opts = append(opts, WithEngine(humanoid.NewTestEngine(1)))
	o, err := New(cfg, zaptest.NewLogger(t), src, f, sink, opts...)
	require.NoError(t, err)
	return o
}

// -- Tests --

func TestNewRejectsNilDependencies(t *testing.T) {
	_, err := New(config.NewDefaultConfig(), zap.NewNop(), nil, newFakeFactory(), &memorySink{})
	assert.Error(t, err)
}

func TestCheckServer(t *testing.T) {
	ctx := context.Background()
	p := profile("101")

	t.Run("collects roles per user", func(t *testing.T) {
		f := newFakeFactory()
		o := newTestOrchestrator(t, testConfig(false, 1), &fakeSource{}, f, &memorySink{})
		c, _ := f.Open(ctx, p)

		res := o.CheckServer(ctx, c, p, " "+server1+" ", []string{"Alice", "  ", "Bob"})
		require.Len(t, res, 2)
		assert.Equal(t, "Alice", res[0].Username)
		assert.Equal(t, []string{"Admin", "Mod"}, res[0].Roles)
		assert.True(t, res[0].Found)
		assert.Equal(t, server1, res[0].ServerURL)
		assert.Equal(t, "Bob", res[1].Username)
		assert.False(t, res[1].Found)
		assert.Empty(t, res[1].Error)
	})

	t.Run("fatal error aborts the remaining users", func(t *testing.T) {
		f := newFakeFactory()
		f.errs["Bob"] = checkerr.Browser(errors.New("websocket connection closed"), "session", "evaluate failed")
		o := newTestOrchestrator(t, testConfig(false, 1), &fakeSource{}, f, &memorySink{})
		c, _ := f.Open(ctx, p)

		res := o.CheckServer(ctx, c, p, server1, []string{"Alice", "Bob", "Carol", "Dave"})
		require.Len(t, res, 4)
		assert.True(t, res[0].Found)
		assert.Contains(t, res[1].Error, "connection closed")
		for _, r := range res[2:] {
			assert.Contains(t, r.Error, "aborted: browser connection lost")
			assert.False(t, r.Found)
		}
		assert.Equal(t, []string{"Alice", "Bob"}, c.(*fakeChecker).checked())
	})

	t.Run("other errors only fail that user", func(t *testing.T) {
		f := newFakeFactory()
		f.errs["Alice"] = errors.New("member list did not render")
		o := newTestOrchestrator(t, testConfig(false, 1), &fakeSource{}, f, &memorySink{})
		c, _ := f.Open(ctx, p)

		res := o.CheckServer(ctx, c, p, server1, []string{"Alice", "Bob"})
		require.Len(t, res, 2)
		assert.Equal(t, "member list did not render", res[0].Error)
		assert.Empty(t, res[1].Error)
		assert.Equal(t, []string{"Alice", "Bob"}, c.(*fakeChecker).checked())
	})

	t.Run("invalid server URL fails every user without navigating", func(t *testing.T) {
		f := newFakeFactory()
		f.navErr = errors.New("must not navigate")
		o := newTestOrchestrator(t, testConfig(false, 1), &fakeSource{}, f, &memorySink{})
		c, _ := f.Open(ctx, p)

		res := o.CheckServer(ctx, c, p, "https://example.com/channels/1", []string{"Alice", "Bob"})
		require.Len(t, res, 2)
		for _, r := range res {
			assert.Contains(t, r.Error, "not a Discord link")
		}
		assert.Empty(t, c.(*fakeChecker).checked())
	})

	t.Run("navigation failure fails every user", func(t *testing.T) {
		f := newFakeFactory()
		f.navErr = checkerr.New(checkerr.KindBrowser, "discord.navigate", "page did not load")
		o := newTestOrchestrator(t, testConfig(false, 1), &fakeSource{}, f, &memorySink{})
		c, _ := f.Open(ctx, p)

		res := o.CheckServer(ctx, c, p, server1, []string{"Alice", "Bob"})
		require.Len(t, res, 2)
		for _, r := range res {
			assert.Contains(t, r.Error, "page did not load")
		}
	})

	t.Run("cancelled context fails the unchecked users", func(t *testing.T) {
		f := newFakeFactory()
		o := newTestOrchestrator(t, testConfig(false, 1), &fakeSource{}, f, &memorySink{})
		c, _ := f.Open(ctx, p)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		res := o.CheckServer(cctx, c, p, server1, []string{"Alice", "Bob"})
		require.Len(t, res, 2)
		for _, r := range res {
			assert.Contains(t, r.Error, "context canceled")
		}
	})
}

func TestRunSerial(t *testing.T) {
	t.Run("end to end", func(t *testing.T) {
		f := newFakeFactory()
		sink := &memorySink{}
		archive := &memoryArchive{}
		src := &fakeSource{
			servers:   []string{server1},
			usernames: []string{"Alice", "Bob"},
			profiles:  []schemas.Profile{profile("101"), profile("102")},
			save:      map[string]schemas.SaveProfile{"Alice": {Username: "Alice", SerialNumber: "555"}},
		}
		o := newTestOrchestrator(t, testConfig(false, 2), src, f, sink, WithArchive(archive))

		sum, err := o.Run(context.Background())
		require.NoError(t, err)

		recs := sink.records()
		require.Len(t, recs, 2)
		assert.Equal(t, "Alice", recs[0].Username)
		assert.Equal(t, "101", recs[0].SerialNumber, "records carry the checking profile's serial")
		assert.True(t, recs[0].Found)
		assert.Equal(t, "Admin, Mod", recs[0].Roles)
		assert.Equal(t, "Bob", recs[1].Username)
		assert.False(t, recs[1].Found)
		assert.Equal(t, "No roles", recs[1].Roles)

		assert.Equal(t, ModeSerial, sum.Mode)
		assert.Equal(t, 2, sum.Checked)
		assert.Equal(t, 1, sum.Found)
		assert.Equal(t, 2, sum.Saved)
		assert.Equal(t, 0, sum.Failed)

		checkers := f.opened()
		require.Len(t, checkers, 1)
		assert.Equal(t, "101", checkers[0].serial)
		assert.Equal(t, 1, checkers[0].closed)

		require.Len(t, archive.batches, 1)
		assert.Len(t, archive.batches[0], 2)
	})

	t.Run("authorization failure writes error rows", func(t *testing.T) {
		f := newFakeFactory()
		f.openErr = checkerr.New(checkerr.KindAuthorization, "discord.Login", "login could not be verified")
		sink := &memorySink{}
		src := &fakeSource{
			servers:   []string{server1, server2},
			usernames: []string{"Alice", "Bob"},
			profiles:  []schemas.Profile{profile("101")},
		}
		o := newTestOrchestrator(t, testConfig(false, 1), src, f, sink)

		sum, err := o.Run(context.Background())
		require.Error(t, err)
		assert.True(t, checkerr.Is(err, checkerr.KindAuthorization))

		recs := sink.records()
		require.Len(t, recs, 4)
		for _, r := range recs {
			assert.False(t, r.Found)
			assert.Contains(t, r.Error, "login could not be verified")
		}
		assert.Equal(t, 4, sum.Failed)
	})

	t.Run("nothing to check", func(t *testing.T) {
		f := newFakeFactory()
		o := newTestOrchestrator(t, testConfig(false, 1), &fakeSource{servers: []string{server1}}, f, &memorySink{})

		sum, err := o.Run(context.Background())
		require.NoError(t, err)
		assert.Zero(t, sum.Checked)
		assert.Empty(t, f.opened())
	})

	t.Run("save failures are counted, not fatal", func(t *testing.T) {
		f := newFakeFactory()
		sink := &memorySink{err: errors.New("quota exceeded")}
		src := &fakeSource{servers: []string{server1}, usernames: []string{"Alice"}, profiles: []schemas.Profile{profile("101")}}
		o := newTestOrchestrator(t, testConfig(false, 1), src, f, sink)

		sum, err := o.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, sum.SaveFailed)
		assert.Equal(t, 0, sum.Saved)
	})
}

func TestRunParallel(t *testing.T) {
	t.Run("workers are bounded by the number of profiles", func(t *testing.T) {
		f := newFakeFactory()
		f.hold = 20 * time.Millisecond
		sink := &memorySink{}
		src := &fakeSource{
			servers:   []string{server1, server2, server1 + "1", server2 + "2", server1 + "3", " "},
			usernames: []string{"Alice", "Bob"},
			profiles:  []schemas.Profile{profile("101"), profile("102")},
		}
		o := newTestOrchestrator(t, testConfig(true, 5), src, f, sink)

		sum, err := o.Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, ModeParallel, sum.Mode)
		require.Len(t, sum.Outcomes, 5)
		for _, oc := range sum.Outcomes {
			assert.True(t, oc.Success, oc.Error)
			assert.Equal(t, 2, oc.Checked)
		}
		assert.LessOrEqual(t, f.maxActive, 2)
		assert.Equal(t, 1, f.maxPerSerial)

		checkers := f.opened()
		require.Len(t, checkers, 5)
		for _, c := range checkers {
			assert.Equal(t, 1, c.closed)
		}
		assert.Len(t, sink.records(), 10)
	})

	t.Run("round robin assignment", func(t *testing.T) {
		f := newFakeFactory()
		src := &fakeSource{
			servers:   []string{server1, server2, server1 + "1"},
			usernames: []string{"Alice"},
			profiles:  []schemas.Profile{profile("101"), profile("102")},
		}
		o := newTestOrchestrator(t, testConfig(true, 2), src, f, &memorySink{})

		sum, err := o.Run(context.Background())
		require.NoError(t, err)
		require.Len(t, sum.Outcomes, 3)
		assert.Equal(t, "101", sum.Outcomes[0].Serial)
		assert.Equal(t, "102", sum.Outcomes[1].Serial)
		assert.Equal(t, "101", sum.Outcomes[2].Serial)
	})

	t.Run("a panicking task is closed once and does not stop the others", func(t *testing.T) {
		f := newFakeFactory()
		f.panicServer = server2
		src := &fakeSource{
			servers:   []string{server1, server2},
			usernames: []string{"Alice"},
			profiles:  []schemas.Profile{profile("101"), profile("102")},
		}
		o := newTestOrchestrator(t, testConfig(true, 2), src, f, &memorySink{})

		sum, err := o.Run(context.Background())
		require.NoError(t, err)
		require.Len(t, sum.Outcomes, 2)
		assert.True(t, sum.Outcomes[0].Success)
		assert.False(t, sum.Outcomes[1].Success)
		assert.Contains(t, sum.Outcomes[1].Error, "panic: scraper exploded")
		assert.Equal(t, "OrchestrationError", sum.Outcomes[1].ErrorKind)
		for _, c := range f.opened() {
			assert.Equal(t, 1, c.closed)
		}
	})

	t.Run("open failures are reported per task", func(t *testing.T) {
		f := newFakeFactory()
		f.openErr = checkerr.New(checkerr.KindExternalService, "adspower.OpenSession", "AdsPower error -1: profile busy")
		src := &fakeSource{
			servers:   []string{server1, server2},
			usernames: []string{"Alice", "Bob"},
			profiles:  []schemas.Profile{profile("101")},
		}
		sink := &memorySink{}
		o := newTestOrchestrator(t, testConfig(true, 3), src, f, sink)

		sum, err := o.Run(context.Background())
		require.NoError(t, err)
		require.Len(t, sum.Outcomes, 2)
		for _, oc := range sum.Outcomes {
			assert.False(t, oc.Success)
			assert.Equal(t, "ExternalServiceError", oc.ErrorKind)
		}

		recs := sink.records()
		require.Len(t, recs, 4)
		want := [][2]string{{server1, "Alice"}, {server1, "Bob"}, {server2, "Alice"}, {server2, "Bob"}}
		for i, rec := range recs {
			assert.Equal(t, want[i][0], rec.ServerURL)
			assert.Equal(t, want[i][1], rec.Username)
			assert.False(t, rec.Found)
			assert.Equal(t, "No roles", rec.Roles)
			assert.Contains(t, rec.Error, "profile busy")
		}
		assert.Equal(t, 4, sum.Failed)
		assert.Equal(t, 4, sum.Saved)
	})

	t.Run("cancelled tasks still write error rows", func(t *testing.T) {
		f := newFakeFactory()
		src := &fakeSource{
			servers:   []string{server1, server2},
			usernames: []string{"Alice"},
			profiles:  []schemas.Profile{profile("101"), profile("102")},
		}
		sink := &memorySink{}
		o := newTestOrchestrator(t, testConfig(true, 2), src, f, sink)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := o.Run(ctx)
		require.NoError(t, err)
		recs := sink.records()
		require.Len(t, recs, 2)
		for _, rec := range recs {
			assert.NotEmpty(t, rec.Error)
		}
	})

	t.Run("falls back to serial without valid profiles", func(t *testing.T) {
		f := newFakeFactory()
		src := &fakeSource{servers: []string{server1}, usernames: []string{"Alice"}}
		o := newTestOrchestrator(t, testConfig(true, 3), src, f, &memorySink{})

		sum, err := o.Run(context.Background())
		require.Error(t, err)
		assert.True(t, checkerr.Is(err, checkerr.KindConfiguration))
		assert.Equal(t, ModeSerial, sum.Mode)
	})
}

func TestRunParallelCancelled(t *testing.T) {
	f := newFakeFactory()
	f.hold = 10 * time.Millisecond
	src := &fakeSource{
		servers:   []string{server1, server2},
		usernames: []string{"Alice", "Bob"},
		profiles:  []schemas.Profile{profile("101"), profile("102")},
	}
	o := newTestOrchestrator(t, testConfig(true, 2), src, f, &memorySink{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := o.Run(ctx)
	require.NoError(t, err)
	for _, oc := range sum.Outcomes {
		assert.False(t, oc.Success)
		assert.True(t, strings.Contains(oc.Error, "context canceled"), oc.Error)
	}
}

package scripts

import (
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/rolecheck/internal/browser/browsertest"
)

func TestBuilders(t *testing.T) {
	t.Run("collect roles fills zero options with defaults", func(t *testing.T) {
		script := CollectRoles(CollectOptions{MaxSteps: 7})
		assert.True(t, strings.HasPrefix(script, "(async (opts) =>"))
		assert.True(t, strings.HasSuffix(script, `)({"maxSteps":7,"maxRoleNameLength":50,"stepDelayMs":150,"waitTimeoutMs":10000})`))
	})

	t.Run("check scripts take an empty options object", func(t *testing.T) {
		assert.True(t, strings.HasSuffix(AuthCheck(), ")({})"))
		assert.True(t, strings.HasSuffix(ChannelAccess(), ")({})"))
		assert.Contains(t, AuthCheck(), `a[href="/channels/@me"]`)
		assert.Contains(t, ChannelAccess(), "text-sm/medium")
	})
}

// member is one row of the fixture member list.
type member struct {
	name    string
	account string
	roles   []string
}

// fixturePage renders a minimal member list in the shape the client uses: a name tag for the
// logged-in user, a virtualized member list that only renders rows near the viewport, and a
// popout that lists the clicked member's roles.
func fixturePage(displayName, accountName string, members []member) string {
	return renderFixture(displayName, accountName, members, true)
}

// closedFixturePage is fixturePage with the member list collapsed: no rows exist until the
// Member List toggle is clicked. window.memberListOpen and window.memberListToggles record
// what the script did with the toggle.
func closedFixturePage(displayName, accountName string, members []member) string {
	return renderFixture(displayName, accountName, members, false)
}

func renderFixture(displayName, accountName string, members []member, open bool) string {
	data, _ := json.MarshalToString(jsMembers(members))
	return fmt.Sprintf(`<!doctype html>
<html><head><style>
  #members { height: 300px; overflow-y: auto; }
  #spacer { position: relative; }
  .member { position: absolute; height: 40px; left: 0; right: 0; }
</style></head>
<body>
<div class="nameTag__37e49">
  <div data-text-variant="text-md/medium">%s</div>
  <div class="panelSubtextContainer__37e49">%s</div>
</div>
<div role="button" id="toggle" aria-label="Member List"></div>
<div id="members"><div id="spacer"></div></div>
<div id="popout"></div>
<script>
  const members = %s;
  window.memberListOpen = %t;
  window.memberListToggles = 0;
  const list = document.getElementById('members');
  const spacer = document.getElementById('spacer');

  const render = () => {
    if (!window.memberListOpen) {
      spacer.innerHTML = '';
      spacer.style.height = '0px';
      return;
    }
    spacer.style.height = (members.length * 40) + 'px';
    const first = Math.max(0, Math.floor(list.scrollTop / 40) - 3);
    const last = Math.min(members.length, first + 14);
    spacer.innerHTML = '';
    for (let i = first; i < last; i++) {
      const m = members[i];
      const row = document.createElement('div');
      row.className = 'member';
      row.style.top = (i * 40) + 'px';
      row.setAttribute('role', 'listitem');
      row.setAttribute('data-list-item-id', 'members-' + i);
      row.dataset.index = i;
      const avatar = document.createElement('div');
      avatar.className = 'wrapper__44b0c';
      avatar.setAttribute('role', 'img');
      avatar.setAttribute('aria-label', m.account + ', Online');
      const name = document.createElement('span');
      name.className = 'username__5d473';
      name.textContent = m.name;
      row.append(avatar, name);
      spacer.appendChild(row);
    }
  };
  list.addEventListener('scroll', render);
  document.getElementById('toggle').addEventListener('click', () => {
    window.memberListToggles++;
    window.memberListOpen = !window.memberListOpen;
    render();
  });
  render();

  document.addEventListener('click', (e) => {
    const row = e.target.closest('[data-index]');
    if (!row) return;
    const pop = document.getElementById('popout');
    pop.innerHTML = '';
    members[Number(row.dataset.index)].roles.forEach((r, i) => {
      const el = document.createElement('div');
      el.setAttribute('role', 'listitem');
      el.setAttribute('data-list-item-id', 'roles-' + i);
      el.setAttribute('aria-label', r);
      pop.appendChild(el);
    });
  });
</script>
</body></html>`, html.EscapeString(displayName), html.EscapeString(accountName), data, open)
}

type jsMember struct {
	Name    string   `json:"name"`
	Account string   `json:"account"`
	Roles   []string `json:"roles"`
}

func jsMembers(members []member) []jsMember {
	out := make([]jsMember, len(members))
	for i, m := range members {
		out[i] = jsMember{Name: m.name, Account: m.account, Roles: m.roles}
	}
	return out
}

func fillers(n int) []member {
	out := make([]member, n)
	for i := range out {
		out[i] = member{name: fmt.Sprintf("user%02d", i), account: fmt.Sprintf("acc%02d", i), roles: []string{"Member"}}
	}
	return out
}

// listState is the fixture's member-list toggle bookkeeping after a run.
type listState struct {
	Open    bool `json:"open"`
	Toggles int  `json:"toggles"`
	Rows    int  `json:"rows"`
}

const listStateJS = `({
  open: window.memberListOpen,
  toggles: window.memberListToggles,
  rows: document.querySelectorAll('[data-list-item-id^="members-"]').length,
})`

func evalCollect(t *testing.T, page string, opts CollectOptions) string {
	t.Helper()
	out, _ := evalCollectWithState(t, page, opts)
	return out
}

// evalCollectWithState runs the collector and then reads the fixture's list state.
func evalCollectWithState(t *testing.T, page string, opts CollectOptions) (string, listState) {
	t.Helper()
	ctx := browsertest.NewContext(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}))
	t.Cleanup(server.Close)

	var (
		out   string
		state listState
	)
	err := chromedp.Run(ctx,
		chromedp.Navigate(server.URL),
		chromedp.Evaluate(CollectRoles(opts), &out, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
		chromedp.Evaluate(listStateJS, &state),
	)
	require.NoError(t, err)
	return out, state
}

func fastOptions() CollectOptions {
	return CollectOptions{MaxSteps: 400, MaxRoleNameLength: 50, StepDelayMs: 40, WaitTimeoutMs: 2000}
}

func TestCollectRolesFindsUserAfterScrolling(t *testing.T) {
	members := append(fillers(40), member{name: "Alice", account: "alice", roles: []string{"Admin", "Mod", "Admin"}})
	got := evalCollect(t, fixturePage("Alice", "alice", members), fastOptions())
	assert.Equal(t, "Admin|Mod", got)
}

func TestCollectRolesDisambiguatesByAccountName(t *testing.T) {
	members := []member{{name: "Alice", account: "impostor", roles: []string{"Wrong"}}}
	members = append(members, fillers(30)...)
	members = append(members, member{name: "Alice", account: "alice", roles: []string{"Admin"}})

	got := evalCollect(t, fixturePage("Alice", "alice", members), fastOptions())
	assert.Equal(t, "Admin", got)
}

func TestCollectRolesDropsOverlongNames(t *testing.T) {
	fifty := strings.Repeat("a", 50)
	fiftyOne := strings.Repeat("b", 51)
	members := append([]member{{name: "Alice", account: "alice", roles: []string{fifty, fiftyOne, "Mod"}}}, fillers(20)...)

	got := evalCollect(t, fixturePage("Alice", "alice", members), fastOptions())
	assert.Equal(t, fifty+"|Mod", got)
}

func TestCollectRolesNotFound(t *testing.T) {
	t.Run("exhausts the list", func(t *testing.T) {
		got := evalCollect(t, fixturePage("Carol", "carol", fillers(20)), fastOptions())
		assert.Equal(t, "", got)
	})

	t.Run("stops at the step bound", func(t *testing.T) {
		opts := fastOptions()
		opts.MaxSteps = 3
		members := append(fillers(200), member{name: "Alice", account: "alice", roles: []string{"Admin"}})

		start := time.Now()
		got := evalCollect(t, fixturePage("Alice", "alice", members), opts)
		assert.Equal(t, "", got)
		assert.Less(t, time.Since(start), 30*time.Second)
	})

	t.Run("no name tag", func(t *testing.T) {
		page := `<html><body><div role="listitem" data-list-item-id="members-0"></div></body></html>`
		assert.Equal(t, "", evalCollect(t, page, fastOptions()))
	})
}

func TestCollectRolesRestoresCollapsedMemberList(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		members := append(fillers(30), member{name: "Alice", account: "alice", roles: []string{"Admin"}})
		got, state := evalCollectWithState(t, closedFixturePage("Alice", "alice", members), fastOptions())
		assert.Equal(t, "Admin", got)
		assert.Equal(t, listState{Open: false, Toggles: 2, Rows: 0}, state)
	})

	t.Run("not found", func(t *testing.T) {
		got, state := evalCollectWithState(t, closedFixturePage("Carol", "carol", fillers(30)), fastOptions())
		assert.Equal(t, "", got)
		assert.Equal(t, listState{Open: false, Toggles: 2, Rows: 0}, state)
	})

	t.Run("rows never appear", func(t *testing.T) {
		got, state := evalCollectWithState(t, closedFixturePage("Alice", "alice", nil), fastOptions())
		assert.Equal(t, "", got)
		assert.Equal(t, listState{Open: false, Toggles: 2, Rows: 0}, state)
	})

	t.Run("list too short to scroll", func(t *testing.T) {
		members := []member{{name: "Bob", account: "bob", roles: []string{"Member"}}}
		got, state := evalCollectWithState(t, closedFixturePage("Alice", "alice", members), fastOptions())
		assert.Equal(t, "", got)
		assert.Equal(t, listState{Open: false, Toggles: 2, Rows: 0}, state)
	})
}

func TestCollectRolesLeavesOpenMemberListOpen(t *testing.T) {
	members := append(fillers(30), member{name: "Alice", account: "alice", roles: []string{"Admin"}})
	got, state := evalCollectWithState(t, fixturePage("Alice", "alice", members), fastOptions())
	assert.Equal(t, "Admin", got)
	assert.True(t, state.Open)
	assert.Zero(t, state.Toggles)
}

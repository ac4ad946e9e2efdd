package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/rolecheck/api/schemas"
	"github.com/xkilldash9x/rolecheck/internal/humanoid"
	"github.com/xkilldash9x/rolecheck/internal/results"
)

// snapshot parses the current body markup for matching on the host side.
func (c *Controller) snapshot(ctx context.Context) (*goquery.Document, error) {
	markup, err := c.page.OuterHTML(ctx, "body")
	if err != nil {
		return nil, err
	}
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page snapshot: %w", err)
	}
	return goquery.NewDocumentFromNode(root), nil
}

// searchMatch locates a search result as a selector plus the index of the match
// among the page's querySelectorAll results for that selector.
type searchMatch struct {
	Selector string
	Index    int
	Text     string
}

// matchSearchResult returns the first candidate whose lowercased text contains
// the normalized username, bare or '@'-prefixed. Selectors are scoped to body so
// indexes agree between the snapshot and the live page.
func matchSearchResult(doc *goquery.Document, normalized string) (searchMatch, bool) {
	if normalized == "" {
		return searchMatch{}, false
	}
	for _, sel := range searchResultSelectors {
		scoped := "body " + sel
		var (
			match searchMatch
			found bool
		)
		doc.Find(scoped).EachWithBreak(func(i int, s *goquery.Selection) bool {
			text := strings.ToLower(s.Text())
			if strings.Contains(text, normalized) || strings.Contains(text, "@"+normalized) {
				match = searchMatch{Selector: scoped, Index: i, Text: strings.TrimSpace(s.Text())}
				found = true
				return false
			}
			return true
		})
		if found {
			return match, true
		}
	}
	return searchMatch{}, false
}

// SearchUser opens the quick switcher, types username and clicks the first
// matching result, which opens the member's profile. It reports false when no
// result matches. Errors are returned only when ctx is done or the browser is
// gone. The switcher is closed with Escape on every path.
func (c *Controller) SearchUser(ctx context.Context, username string) (found bool, err error) {
	username = strings.TrimSpace(username)
	if username == "" {
		c.logger.Warn("Empty username, skipping search.")
		return false, nil
	}
	log := c.logger.With(zap.String("username", username))

	defer func() {
		c.pressEscape(ctx)
		if found {
			c.setState(StateProfileOpen)
		} else {
			c.setState(StateOnServer)
		}
	}()

	// soft reports a leaf failure as "not found" unless it ends the session.
	soft := func(what string, err error) (bool, error) {
		if c.fatal(ctx, err) {
			return false, err
		}
		log.Warn(what, zap.Error(err))
		return false, nil
	}

	if err := c.waitForLoad(ctx, c.cfg.PageLoadTimeout); err != nil {
		return false, err
	}
	if err := c.engine.Wait(ctx, humanoid.BeforeAction); err != nil {
		return false, err
	}

	if err := c.page.PressKey(ctx, "k", schemas.ModCtrl); err != nil {
		return soft("Failed to open search.", err)
	}
	c.setState(StateSearchOpen)
	if err := c.engine.Wait(ctx, humanoid.AfterAction); err != nil {
		return false, err
	}

	inputSel, err := c.page.FindFirstVisible(ctx, searchInputSelectors, c.cfg.ElementWaitTimeout)
	if err != nil {
		return soft("Search field not found.", err)
	}
	if err := c.typeInto(ctx, inputSel, username, humanoid.DefaultTypeOptions()); err != nil {
		return soft("Failed to type search query.", err)
	}
	if err := c.engine.RandomDelay(ctx, time.Second, 2*time.Second); err != nil {
		return false, err
	}

	doc, err := c.snapshot(ctx)
	if err != nil {
		return soft("Failed to read search results.", err)
	}
	match, ok := matchSearchResult(doc, results.NormalizeUsername(username))
	if !ok {
		log.Warn("User not found in search results.")
		return false, nil
	}

	log.Info("User found, opening profile.", zap.String("selector", match.Selector), zap.Int("index", match.Index))
	if err := c.page.ClickNth(ctx, match.Selector, match.Index); err != nil {
		return soft("Failed to open user profile.", err)
	}
	if err := c.engine.RandomDelay(ctx, time.Second, 2*time.Second); err != nil {
		return false, err
	}
	return true, nil
}

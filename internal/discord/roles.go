package discord

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/rolecheck/internal/discord/scripts"
	"github.com/xkilldash9x/rolecheck/internal/results"
)

func (c *Controller) collectOptions() scripts.CollectOptions {
	opts := scripts.DefaultCollectOptions()
	if c.cfg.MaxScrollSteps > 0 {
		opts.MaxSteps = c.cfg.MaxScrollSteps
	}
	if c.cfg.MaxRoleNameLength > 0 {
		opts.MaxRoleNameLength = c.cfg.MaxRoleNameLength
	}
	return opts
}

// GetUserRoles opens username's profile through search and reads their roles from
// the member list. A user that cannot be found has no roles. An error is returned
// only when ctx is done or the browser connection is gone.
func (c *Controller) GetUserRoles(ctx context.Context, username string) ([]string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return []string{}, nil
	}
	log := c.logger.With(zap.String("username", username))
	defer func() {
		if c.State() > StateOnServer {
			c.setState(StateOnServer)
		}
	}()

	if err := c.waitForLoad(ctx, c.cfg.PageLoadTimeout); err != nil {
		return nil, err
	}
	found, err := c.SearchUser(ctx, username)
	if err != nil {
		return nil, err
	}
	if !found {
		log.Warn("User not found on server.")
		return []string{}, nil
	}

	if err := c.engine.RandomDelay(ctx, time.Second, 2*time.Second); err != nil {
		return nil, err
	}
	if err := c.waitForLoad(ctx, c.cfg.PageLoadTimeout); err != nil {
		return nil, err
	}

	var raw string
	if err := c.page.Evaluate(ctx, scripts.CollectRoles(c.collectOptions()), &raw); err != nil {
		if c.fatal(ctx, err) {
			return nil, err
		}
		log.Error("Role collection script failed.", zap.Error(err))
		c.pressEscape(ctx)
		return []string{}, nil
	}

	roles := results.ParseRoles(raw)
	if len(roles) > 0 {
		log.Info("Roles collected.", zap.Int("count", len(roles)), zap.String("roles", results.FormatRolesForSave(roles)))
	} else {
		log.Warn("No roles found for user.")
	}
	return roles, nil
}

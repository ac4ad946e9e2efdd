package orchestrator

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/rolecheck/api/schemas"
	"github.com/xkilldash9x/rolecheck/internal/checkerr"
	"github.com/xkilldash9x/rolecheck/internal/humanoid"
	"github.com/xkilldash9x/rolecheck/internal/results"
	"github.com/xkilldash9x/rolecheck/internal/validation"
)

// errAborted marks users that were never checked because the browser died first.
var errAborted = checkerr.New(checkerr.KindBrowser, "orchestrator.CheckServer", "aborted: browser connection lost")

// CheckServer checks every non-blank username on one server with checker. It
// always returns one result per non-blank username, in input order.
func (o *Orchestrator) CheckServer(ctx context.Context, checker Checker, profile schemas.Profile, serverURL string, usernames []string) []schemas.RoleResult {
	log := o.logger.With(zap.String("server_url", serverURL), zap.String("serial_number", profile.SerialNumber))

	url, err := validation.ServerURL(serverURL)
	if err != nil {
		log.Error("Skipping server with an invalid URL.", zap.Error(err))
		return failAll(serverURL, usernames, err)
	}
	if err := checker.NavigateToServer(ctx, url); err != nil {
		log.Error("Failed to open server.", zap.Error(err))
		return failAll(url, usernames, err)
	}
	if err := o.engine.Wait(ctx, humanoid.BetweenChecks); err != nil {
		return failAll(url, usernames, err)
	}

	names := nonBlank(usernames)
	res := make([]schemas.RoleResult, 0, len(names))
	for i, username := range names {
		if err := ctx.Err(); err != nil {
			return append(res, failAll(url, names[i:], err)...)
		}

		target := schemas.CheckTarget{ServerURL: url, Username: username}
		log.Info("Checking roles.", zap.String("username", username))
		roles, err := checker.GetUserRoles(ctx, username)
		if err != nil {
			res = append(res, results.NewRoleResult(target, nil, err))
			if ctx.Err() != nil || checkerr.IsConnectionFatal(err) {
				log.Error("Browser lost, abandoning the remaining users.", zap.String("username", username), zap.Error(err))
				return append(res, failAll(url, names[i+1:], errAborted)...)
			}
			log.Warn("Role check failed.", zap.String("username", username), zap.Error(err))
		} else {
			r := results.NewRoleResult(target, roles, nil)
			res = append(res, r)
			log.Info("Roles checked.",
				zap.String("username", username),
				zap.Int("count", len(r.Roles)),
				zap.String("roles", results.FormatRolesForSave(r.Roles)))
		}

		if i < len(names)-1 {
			if err := o.engine.Wait(ctx, humanoid.BetweenChecks); err != nil {
				return append(res, failAll(url, names[i+1:], err)...)
			}
		}
	}
	return res
}

// failAll gives every non-blank username an empty result carrying err.
func failAll(serverURL string, usernames []string, err error) []schemas.RoleResult {
	names := nonBlank(usernames)
	out := make([]schemas.RoleResult, 0, len(names))
	for _, u := range names {
		out = append(out, results.NewRoleResult(schemas.CheckTarget{ServerURL: serverURL, Username: u}, nil, err))
	}
	return out
}

func nonBlank(usernames []string) []string {
	out := make([]string, 0, len(usernames))
	for _, u := range usernames {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

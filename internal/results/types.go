// File: internal/results/types.go
package results

import (
	"time"

	"github.com/xkilldash9x/rolecheck/api/schemas"
)

// nowFunc is swapped in tests for deterministic timestamps.
var nowFunc = time.Now

// NewRoleResult builds the immutable result for one checked target.
func NewRoleResult(target schemas.CheckTarget, roles []string, err error) schemas.RoleResult {
	cleaned := cleanRoles(roles)
	res := schemas.RoleResult{
		Username:  target.Username,
		ServerURL: target.ServerURL,
		Roles:     cleaned,
		Found:     len(cleaned) > 0,
		Timestamp: nowFunc(),
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// ToRecord converts a result into a persisted row for the checking profile.
// The username is taken from the save profile when one matches.
func ToRecord(res schemas.RoleResult, checkerSerial string, save map[string]schemas.SaveProfile) schemas.Record {
	username := res.Username
	if sp, ok := save[username]; ok && sp.Username != "" {
		username = sp.Username
	}
	return schemas.Record{
		Username:     username,
		SerialNumber: checkerSerial,
		ServerURL:    res.ServerURL,
		Found:        res.Found,
		Roles:        FormatRolesForSave(res.Roles),
		CheckedAt:    res.Timestamp,
		Error:        res.Error,
	}
}

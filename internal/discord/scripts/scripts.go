// Package scripts holds the in-page programs the controller evaluates against the
// Discord web client. Each program is an async function taking one options object;
// the builders here wrap it into a self-invoking expression.
package scripts

import (
	_ "embed"
	"fmt"

	json "github.com/json-iterator/go"
)

var (
	//go:embed auth_check.js
	authCheckJS string
	//go:embed channel_access.js
	channelAccessJS string
	//go:embed collect_roles.js
	collectRolesJS string
)

// CollectOptions bounds the member-list scroll search and role collection.
type CollectOptions struct {
	MaxSteps          int `json:"maxSteps"`
	MaxRoleNameLength int `json:"maxRoleNameLength"`
	StepDelayMs       int `json:"stepDelayMs"`
	WaitTimeoutMs     int `json:"waitTimeoutMs"`
}

// DefaultCollectOptions matches the pacing of the live client.
func DefaultCollectOptions() CollectOptions {
	return CollectOptions{
		MaxSteps:          400,
		MaxRoleNameLength: 50,
		StepDelayMs:       150,
		WaitTimeoutMs:     10000,
	}
}

// AuthCheck evaluates to a boolean: true when the page shows a logged-in client.
func AuthCheck() string {
	return wrap(authCheckJS, struct{}{})
}

// ChannelAccess evaluates to the server's access banner text, or null.
func ChannelAccess() string {
	return wrap(channelAccessJS, struct{}{})
}

// CollectRoles evaluates to the '|'-joined role names of the logged-in user as
// shown in the server's member list, or '' when the user cannot be found.
func CollectRoles(opts CollectOptions) string {
	def := DefaultCollectOptions()
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = def.MaxSteps
	}
	if opts.MaxRoleNameLength <= 0 {
		opts.MaxRoleNameLength = def.MaxRoleNameLength
	}
	if opts.StepDelayMs <= 0 {
		opts.StepDelayMs = def.StepDelayMs
	}
	if opts.WaitTimeoutMs <= 0 {
		opts.WaitTimeoutMs = def.WaitTimeoutMs
	}
	return wrap(collectRolesJS, opts)
}

func wrap(fn string, opts any) string {
	arg, err := json.Marshal(opts)
	if err != nil {
		arg = []byte("{}")
	}
	return fmt.Sprintf("(%s)(%s)", fn, arg)
}

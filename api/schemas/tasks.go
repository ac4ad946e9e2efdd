package schemas

import (
	"time"

	"github.com/google/uuid"
)

// -- Input Schemas --

// Profile identifies a remote browser instance plus the Discord credentials used on it.
// It is loaded from one spreadsheet row and never modified during a run.
type Profile struct {
	SerialNumber string `json:"serial_number" validate:"required"`
	Email        string `json:"email" validate:"required"`
	Password     string `json:"password" validate:"required"`
	// Username is the expected account name of the logged-in user, checked after authorization.
	Username string `json:"username,omitempty"`
}

// SaveProfile is the metadata used to key a persisted record for a checked username.
type SaveProfile struct {
	Username     string `json:"username"`
	SerialNumber string `json:"serial_number,omitempty"`
}

// CheckTarget is a (server, username) pair to verify.
type CheckTarget struct {
	ServerURL string `json:"server_url"`
	Username  string `json:"username"`
}

// -- Task Schemas --

// WorkerTask is one unit of parallel work: one profile checking every username on one server.
type WorkerTask struct {
	ID           uuid.UUID              `json:"id"`
	Profile      Profile                `json:"profile"`
	ServerURL    string                 `json:"server_url"`
	Usernames    []string               `json:"usernames"`
	SaveProfiles map[string]SaveProfile `json:"save_profiles,omitempty"`
}

// NewWorkerTask copies its inputs so the task never shares mutable state with its creator.
func NewWorkerTask(p Profile, serverURL string, usernames []string, save map[string]SaveProfile) WorkerTask {
	names := make([]string, len(usernames))
	copy(names, usernames)
	saved := make(map[string]SaveProfile, len(save))
	for k, v := range save {
		saved[k] = v
	}
	return WorkerTask{
		ID:           uuid.New(),
		Profile:      p,
		ServerURL:    serverURL,
		Usernames:    names,
		SaveProfiles: saved,
	}
}

// TaskOutcome reports how a single WorkerTask ended.
type TaskOutcome struct {
	TaskID    uuid.UUID     `json:"task_id"`
	ServerURL string        `json:"server_url"`
	Serial    string        `json:"serial_number"`
	Success   bool          `json:"success"`
	Checked   int           `json:"checked"`
	Error     string        `json:"error,omitempty"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Duration  time.Duration `json:"duration"`
}

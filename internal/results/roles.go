// File: internal/results/roles.go
package results

import "strings"

const (
	// RolesSeparator delimits role names on the wire between the page script and the host.
	RolesSeparator = "|"
	// DisplaySeparator joins role names in persisted rows.
	DisplaySeparator = ", "
	// NoRoles is written in place of an empty role list.
	NoRoles = "No roles"
	// MaxRoleNameLength bounds a role name; longer strings are treated as scraping noise.
	MaxRoleNameLength = 50
)

// NormalizeUsername lowercases, strips every '@', and trims surrounding whitespace.
func NormalizeUsername(username string) string {
	s := strings.ToLower(username)
	s = strings.ReplaceAll(s, "@", "")
	return strings.TrimSpace(s)
}

// cleanRoles trims, filters, and deduplicates role names while preserving first-seen order.
func cleanRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	seen := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" || len([]rune(r)) > MaxRoleNameLength {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// JoinRoles encodes roles the same way the in-page collector does.
func JoinRoles(roles []string) string {
	return strings.Join(cleanRoles(roles), RolesSeparator)
}

// ParseRoles decodes a pipe-delimited role string returned by the in-page collector.
func ParseRoles(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	return cleanRoles(strings.Split(raw, RolesSeparator))
}

// FormatRolesForSave renders roles for a result row.
func FormatRolesForSave(roles []string) string {
	if len(roles) == 0 {
		return NoRoles
	}
	return strings.Join(roles, DisplaySeparator)
}

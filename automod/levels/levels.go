// Package levels computes effective permission levels from the per-guild
// level table (snowflake id, user or role, mapped to an integer tier).
package levels

// Table maps a user or role snowflake to an assigned permission level.
type Table map[string]int

// Resolve returns the effective level for a principal: the maximum of the
// user's own assignment and the highest assignment on any held role. Missing
// entries count as zero, so an unassigned principal resolves to level 0.
//
// Callers that could not fetch the member (user left the guild) pass an empty
// role list and get the raw user-level entry.
func Resolve(table Table, userID string, roleIDs []string) int {
	level := table[userID]
	for _, rid := range roleIDs {
		if l := table[rid]; l > level {
			level = l
		}
	}
	return level
}

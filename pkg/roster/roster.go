// Package roster turns raw presence entries into the participant list every
// client agrees on.
package roster

import (
	"sort"
	"time"
)

type Member struct {
	Id       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joined_at"`
}

// Dedupe collapses multiple connections of one user into a single member,
// keeping the earliest join. The result is sorted by id.
func Dedupe(entries []Member) []Member {
	byID := make(map[string]Member, len(entries))
	for _, e := range entries {
		if e.Id == "" {
			continue
		}
		cur, ok := byID[e.Id]
		if !ok || e.JoinedAt.Before(cur.JoinedAt) {
			byID[e.Id] = e
		}
	}

	out := make([]Member, 0, len(byID))
	for _, m := range byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out
}

// ElectLeader picks the lexically smallest user id. Every client holding the
// same roster snapshot elects the same leader.
func ElectLeader(members []Member) (string, bool) {
	leader := ""
	for _, m := range members {
		if m.Id == "" {
			continue
		}
		if leader == "" || m.Id < leader {
			leader = m.Id
		}
	}
	return leader, leader != ""
}

package labels

import (
	"sort"

	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

// Merge combines the provider's labels with the persisted rows. The
// provider decides which labels exist and what they are called; local rows
// contribute the sync preference and last sync time. Labels missing from
// the provider are dropped from the result. New labels start not syncing.
func Merge(userId string, provider []types.ProviderLabel, local []types.LabelSyncState) []types.LabelSyncState {
	byId := make(map[string]types.LabelSyncState, len(local))
	for _, row := range local {
		byId[row.LabelId] = row
	}

	seen := make(map[string]bool, len(provider))
	merged := make([]types.LabelSyncState, 0, len(provider))
	for _, l := range provider {
		if seen[l.Id] {
			continue
		}
		seen[l.Id] = true

		state, ok := byId[l.Id]
		if !ok {
			state = types.LabelSyncState{UserId: userId, LabelId: l.Id}
		}
		state.LabelName = l.Name
		state.LabelType = l.Type
		merged = append(merged, state)
	}

	Sort(merged)
	return merged
}

// Sort orders labels system first, then by name
func Sort(states []types.LabelSyncState) {
	sort.SliceStable(states, func(i, j int) bool {
		if states[i].LabelType != states[j].LabelType {
			return states[i].LabelType < states[j].LabelType
		}
		return states[i].LabelName < states[j].LabelName
	})
}

// UserLabelIds returns the ids of user-created labels
func UserLabelIds(states []types.LabelSyncState) []string {
	var ids []string
	for _, s := range states {
		if s.LabelType == types.LabelTypeUser {
			ids = append(ids, s.LabelId)
		}
	}
	return ids
}

package grouping

import (
	"sort"

	"golang.org/x/exp/slices"

	"github.com/G-Research/taskboard/internal/taskboard/lifecycle"
	"github.com/G-Research/taskboard/internal/taskboard/model"
)

// Group partitions arrival-ordered records by entity id and builds one task
// group per entity. It is a pure function: records are copied before
// sorting, groups are rebuilt from scratch on every call, and identical
// inputs produce identical outputs.
//
// Records within a group are sorted ascending by timestamp with a stable
// sort, so arrival order breaks ties. Groups are ordered by natural
// comparison of the task name (task_2 before task_10) and then by retry id,
// keeping retries of the same task adjacent.
func Group(records []*model.EventRecord) []*model.TaskGroup {
	partitions := map[string][]*model.EventRecord{}
	entityIds := []string{}
	for _, record := range records {
		if _, seen := partitions[record.EntityId]; !seen {
			entityIds = append(entityIds, record.EntityId)
		}
		partitions[record.EntityId] = append(partitions[record.EntityId], record)
	}

	groups := make([]*model.TaskGroup, 0, len(entityIds))
	for _, entityId := range entityIds {
		partition := partitions[entityId]
		sorted := slices.Clone(partition)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		})
		groups = append(groups, &model.TaskGroup{
			Id:      entityId,
			Name:    sorted[0].TaskName,
			RetryId: sorted[0].RetryId,
			Records: sorted,
			Derived: lifecycle.Derive(sorted),
		})
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Name != groups[j].Name {
			return naturalLess(groups[i].Name, groups[j].Name)
		}
		return groups[i].RetryId < groups[j].RetryId
	})
	return groups
}

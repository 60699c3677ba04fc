package dispatch

import (
	"slices"

	"github.com/kelindar/bitmap"
)

// stage is one rank of the execution plan. Its systems have pairwise
// compatible access sets and run together between barriers, so the stage
// also carries the union of its members' sets.
type stage struct {
	members []int
	reads   bitmap.Bitmap
	writes  bitmap.Bitmap
}

// buildPlan folds registered systems into stages, first fit in registration
// order: each system joins the earliest stage it does not conflict with, or
// opens a new one. The result depends only on registration order.
func buildPlan(systems []registered) []stage {
	plan := make([]stage, 0, len(systems))
next:
	for i, reg := range systems {
		for s := range plan {
			if conflicts(reg.acc, &plan[s]) {
				continue
			}
			plan[s].members = append(plan[s].members, i)
			plan[s].reads.Or(reg.acc.reads)
			plan[s].writes.Or(reg.acc.writes)
			continue next
		}
		st := stage{members: []int{i}}
		st.reads.Or(reg.acc.reads)
		st.writes.Or(reg.acc.writes)
		plan = append(plan, st)
	}
	return plan
}

// conflicts reports whether the access set cannot share the stage: a writer
// on either side of a shared slot.
func conflicts(a *Access, st *stage) bool {
	return overlaps(a.writes, st.reads) ||
		overlaps(a.writes, st.writes) ||
		overlaps(st.writes, a.reads)
}

// overlaps reports whether two slot sets intersect.
func overlaps(a, b bitmap.Bitmap) bool {
	var ids []uint32
	a.Range(func(x uint32) {
		ids = append(ids, x)
	})
	return slices.ContainsFunc(ids, b.Contains)
}

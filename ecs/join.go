package ecs

// Join calls fn for every entity present in all of the given views.
// It iterates the smallest view and probes the others, so cost follows the
// rarest kind. Views must come from the same world.
func Join(fn func(Entity), views ...Masked) {
	if len(views) == 0 {
		return
	}
	smallest := 0
	for i := 1; i < len(views); i++ {
		if views[i].count() < views[smallest].count() {
			smallest = i
		}
	}
	alloc := views[smallest].owner()
	views[smallest].rangeIndex(func(idx uint32) {
		for i, v := range views {
			if i == smallest {
				continue
			}
			if !v.containsIndex(idx) {
				return
			}
		}
		fn(NewEntity(idx, alloc.generation(idx)))
	})
}

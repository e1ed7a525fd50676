package progress

import "math"

// CourseProgressState is derived from the per-module record map and never
// persisted. Recomputed whenever the map changes.
type CourseProgressState struct {
	CompletedModules map[int]struct{}
	ProgressPercent  int
}

// Completed reports whether the module at index i is in the completed set.
func (s CourseProgressState) Completed(i int) bool {
	_, ok := s.CompletedModules[i]
	return ok
}

// DeriveState applies the kind-aware completion threshold to every module and
// rolls the result up into a whole-course percent.
func DeriveState(modules []ModuleDescriptor, records map[int]ProgressRecord) CourseProgressState {
	st := CourseProgressState{CompletedModules: make(map[int]struct{})}
	for i, m := range modules {
		rec, ok := records[i]
		if !ok {
			continue
		}
		if Complete(m.Kind, rec.Percent) {
			st.CompletedModules[i] = struct{}{}
		}
	}
	if len(modules) > 0 {
		st.ProgressPercent = int(math.Round(100 * float64(len(st.CompletedModules)) / float64(len(modules))))
	}
	return st
}

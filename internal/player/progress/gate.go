package progress

// CanAccess decides whether a module may be entered. Module 0 is always
// accessible; any later module requires its immediate predecessor to be
// complete. Only the predecessor is consulted: stray indices further ahead
// in the set (reordered courses, corrupt data) never unlock anything extra.
func CanAccess(moduleIndex int, completed map[int]struct{}) bool {
	if moduleIndex == 0 {
		return true
	}
	if moduleIndex < 0 {
		return false
	}
	_, ok := completed[moduleIndex-1]
	return ok
}

package progress

import "context"

// LocalStore is the synchronous key-value cache used for instant resume.
// Implementations must be cheap: tracker local writes happen on every whole
// second of playback.
type LocalStore interface {
	Get(ctx context.Context, userID, courseID string, moduleIndex int) (CachedRecord, bool, error)
	Put(ctx context.Context, userID, courseID string, moduleIndex int, rec CachedRecord) error
}

// RemoteReader fetches the durable progress records for one (user, course).
// Missing modules are simply absent from the returned map.
type RemoteReader interface {
	ListProgress(ctx context.Context, userID, courseID string) (map[int]ProgressRecord, error)
}

// Sample is one progress write emitted by the tracker towards the remote
// store. Fire-and-forget from the player's perspective.
type Sample struct {
	UserID              string
	CourseID            string
	ModuleIndex         int
	Kind                ModuleKind
	Percent             int
	WatchTimeSeconds    float64
	LastPositionSeconds float64
}

package services

import "restorepick/internal/domain"

type RestoreProgress struct {
	Kind       domain.RestoreKind
	Current    string
	Processed  int
	Completed  bool
	ErrMessage string
}

type ProgressProvider interface {
	Progress() <-chan RestoreProgress
}

type Invalidator interface {
	Invalidate(rewindID, path string)
}

func progressNonBlocking(ch chan<- RestoreProgress, msg RestoreProgress) {
	if ch == nil {
		return
	}
	select {
	case ch <- msg:
	default:
	}
}

// DestinationRequirer is implemented by restorers that write to a local
// destination rather than back into the site.
type DestinationRequirer interface {
	RequiresDestination() bool
}

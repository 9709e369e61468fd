package events

import (
	"time"
)

// CollectionProgress is the payload for collectionProgress and
// recoveryProgress events.
type CollectionProgress struct {
	Collection   string `json:"collection"`
	WrittenSoFar int64  `json:"writtenSoFar"`
	OfTotal      int64  `json:"ofTotal"`
	Phase        string `json:"phase"`
}

// CollectionCompleted is the payload for collectionCompleted and
// collectionRecovered events.
type CollectionCompleted struct {
	Collection   string    `json:"collection"`
	WrittenCount int64     `json:"writtenCount"`
	Incremental  bool      `json:"incremental"`
	Timestamp    time.Time `json:"timestamp"`
}

// RunStarted is the payload for runStarted events.
type RunStarted struct {
	Mode      string    `json:"mode"`
	Direction string    `json:"direction"`
	Timestamp time.Time `json:"timestamp"`
}

// SchemaChange is the payload for schemaChange events. NewKeys lists only
// the dotted paths first observed in the latest sample.
type SchemaChange struct {
	Collection string   `json:"collection"`
	NewKeys    []string `json:"newKeys"`
	TotalKeys  int      `json:"totalKeys"`
}

// AutoRunTriggered is the payload for autoRunTriggered events.
type AutoRunTriggered struct {
	Timestamp    time.Time `json:"timestamp"`
	IntervalHint string    `json:"intervalHint"`
}

// AuthProgress is the payload for authProgress events. Phase is "export"
// or "import".
type AuthProgress struct {
	Phase     string `json:"phase"`
	UserCount int    `json:"userCount"`
	OfTotal   int    `json:"ofTotal"`
}

// AuthCompleted is the payload for authCompleted events.
type AuthCompleted struct {
	TotalUsers             int64     `json:"totalUsers"`
	SyncedUsers            int64     `json:"syncedUsers"`
	CustomClaimsPropagated int64     `json:"customClaimsPropagated"`
	Errors                 int64     `json:"errors"`
	Timestamp              time.Time `json:"timestamp"`
}

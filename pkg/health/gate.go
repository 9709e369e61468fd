package health

import (
	"github.com/cuemby/mirror/pkg/types"
)

// Decision is the gating verdict derived from a health snapshot. Status
// is the run outcome to report when a phase is gated; AuthStatus covers
// the auth phase separately since document replication can proceed while
// auth is gated.
type Decision struct {
	ReplicateDB   bool
	ReplicateAuth bool
	Status        types.RunStatus
	AuthStatus    types.RunStatus
	Reason        string
}

// Decide applies the gating policy to a snapshot.
//
// An unreachable primary DB pauses everything: nothing can be read. An
// unreachable standby DB is an error: the source is fine but the target
// cannot be written. With both databases up, a missing primary auth
// pauses only the auth phase, and a missing standby auth fails it.
func Decide(s types.HealthSnapshot) Decision {
	switch {
	case !s.PrimaryDB:
		return Decision{
			Status:     types.StatusPaused,
			AuthStatus: types.StatusPaused,
			Reason:     "primary database unreachable",
		}
	case !s.StandbyDB:
		return Decision{
			Status:     types.StatusError,
			AuthStatus: types.StatusError,
			Reason:     "standby database unreachable",
		}
	case !s.PrimaryAuth:
		return Decision{
			ReplicateDB: true,
			Status:      types.StatusCompleted,
			AuthStatus:  types.StatusPaused,
			Reason:      "primary auth unreachable, auth phase paused",
		}
	case !s.StandbyAuth:
		return Decision{
			ReplicateDB: true,
			Status:      types.StatusError,
			AuthStatus:  types.StatusError,
			Reason:      "standby auth unreachable, auth phase failed",
		}
	default:
		return Decision{
			ReplicateDB:   true,
			ReplicateAuth: true,
			Status:        types.StatusCompleted,
			AuthStatus:    types.StatusCompleted,
		}
	}
}

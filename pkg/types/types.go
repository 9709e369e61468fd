package types

import (
	"time"
)

// Side identifies one of the two replicated deployments.
type Side string

const (
	SidePrimary Side = "primary"
	SideStandby Side = "standby"
)

// Direction identifies which way documents flow for a watermark.
type Direction string

const (
	DirectionForward Direction = "forward"
	DirectionRecover Direction = "recover"
)

// Mode selects between incremental and full replication passes.
type Mode string

const (
	ModeIncremental Mode = "incremental"
	ModeFull        Mode = "full"
)

// RunStatus represents the state of the engine or of a single run.
type RunStatus string

const (
	StatusIdle       RunStatus = "idle"
	StatusRunning    RunStatus = "running"
	StatusRecovering RunStatus = "recovering"
	StatusPaused     RunStatus = "paused"
	StatusError      RunStatus = "error"
	StatusCompleted  RunStatus = "completed"
)

// Document is a single record in a collection. Data carries the arbitrary
// nested payload; UpdatedAt is the normalized timestamp extracted from the
// payload, empty when the document has neither updatedAt nor createdAt.
type Document struct {
	ID        string                 `json:"id"`
	Data      map[string]interface{} `json:"data"`
	UpdatedAt string                 `json:"updatedAt,omitempty"`
}

// HealthSnapshot is the atomically published result of one probe round.
type HealthSnapshot struct {
	PrimaryDB   bool      `json:"primaryDb"`
	StandbyDB   bool      `json:"standbyDb"`
	PrimaryAuth bool      `json:"primaryAuth"`
	StandbyAuth bool      `json:"standbyAuth"`
	Timestamp   time.Time `json:"timestamp"`
}

// AllHealthy reports whether every probed endpoint answered.
func (s HealthSnapshot) AllHealthy() bool {
	return s.PrimaryDB && s.StandbyDB && s.PrimaryAuth && s.StandbyAuth
}

// AuthCounters is the auth-directory slice of the cumulative run counters.
type AuthCounters struct {
	TotalUsers             int64     `json:"totalUsers"`
	SyncedUsers            int64     `json:"syncedUsers"`
	CustomClaimsPropagated int64     `json:"customClaimsPropagated"`
	AuthErrors             int64     `json:"authErrors"`
	LastAuthRunAt          time.Time `json:"lastAuthRunAt"`
}

// RunCounters are the cumulative counters persisted to the stats file.
// All counts are monotonic non-decreasing; only ResetStats zeroes them.
type RunCounters struct {
	TotalDocumentsWritten int64        `json:"totalDocumentsWritten"`
	DuplicatesSkipped     int64        `json:"duplicatesSkipped"`
	Errors                int64        `json:"errors"`
	IncrementalRunCount   int64        `json:"incrementalRunCount"`
	LastRunAt             time.Time    `json:"lastRunAt"`
	LastFullRunAt         time.Time    `json:"lastFullRunAt"`
	Auth                  AuthCounters `json:"auth"`
}

// CollectionWatermarks holds the two per-direction watermarks for one
// collection. Values are normalized timestamps; empty means "never".
type CollectionWatermarks struct {
	Forward string `json:"forward,omitempty"`
	Recover string `json:"recover,omitempty"`
}

// User is an authentication-directory record. Password hash material is
// opaque to the engine and passes through unchanged. Creation and last
// sign-in times are epoch milliseconds, matching the directory backend.
type User struct {
	UID           string                 `json:"uid"`
	Email         string                 `json:"email,omitempty"`
	EmailVerified bool                   `json:"emailVerified"`
	DisplayName   string                 `json:"displayName,omitempty"`
	PhotoURL      string                 `json:"photoUrl,omitempty"`
	PhoneNumber   string                 `json:"phoneNumber,omitempty"`
	Disabled      bool                   `json:"disabled"`
	CreatedAtMs   int64                  `json:"createdAtMs"`
	LastSignInMs  int64                  `json:"lastSignInMs"`
	CustomClaims  map[string]interface{} `json:"customClaims,omitempty"`
	PasswordHash  []byte                 `json:"-"`
	PasswordSalt  []byte                 `json:"-"`
	ProviderData  []ProviderInfo         `json:"providerData,omitempty"`
}

// ProviderInfo describes one identity provider linked to a user.
type ProviderInfo struct {
	ProviderID  string `json:"providerId"`
	UID         string `json:"uid"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	PhotoURL    string `json:"photoUrl,omitempty"`
}

// HashParams carries the source directory's password-hash configuration so
// imported users keep working credentials. Key and salt separator are the
// raw bytes, not base64.
type HashParams struct {
	Algorithm     string
	Key           []byte
	SaltSeparator []byte
	Rounds        int
	MemoryCost    int
}

// ImportError describes one rejected record inside a bulk user import.
type ImportError struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// ImportResult summarizes one bulk user import call.
type ImportResult struct {
	SuccessCount int           `json:"successCount"`
	FailureCount int           `json:"failureCount"`
	Errors       []ImportError `json:"errors,omitempty"`
}

// CollectionReport is the per-collection half of an integrity report.
type CollectionReport struct {
	PrimaryCount     int      `json:"primaryCount"`
	StandbyCount     int      `json:"standbyCount"`
	MissingInStandby []string `json:"missingInStandby"`
	MissingInPrimary []string `json:"missingInPrimary"`
}

// AuthReport compares user UID sets between the two auth directories.
type AuthReport struct {
	PrimaryCount     int      `json:"primaryCount"`
	StandbyCount     int      `json:"standbyCount"`
	MissingInStandby []string `json:"missingInStandby"`
	MissingInPrimary []string `json:"missingInPrimary"`
}

// IntegrityReport is the one-shot result of a reconcile pass. The engine
// emits it and discards it; it never heals either side.
type IntegrityReport struct {
	Collections map[string]CollectionReport `json:"collections"`
	Auth        *AuthReport                 `json:"auth,omitempty"`
	GeneratedAt time.Time                   `json:"generatedAt"`
}

// RunReport summarizes a single forward or recovery run.
type RunReport struct {
	Status      RunStatus `json:"status"`
	Mode        Mode      `json:"mode"`
	Direction   Direction `json:"direction"`
	Collections int       `json:"collections"`
	Written     int64     `json:"written"`
	Skipped     int64     `json:"skipped"`
	Errors      int64     `json:"errors"`
	Reason      string    `json:"reason,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	Duration    string    `json:"duration"`
}

package gateway

import (
	"context"

	"github.com/cuemby/mirror/pkg/types"
)

const (
	// MaxBatchWrite is the largest batch a single BatchWrite accepts,
	// a safe margin below the backend's 500-operation limit.
	MaxBatchWrite = 450

	// UserPageSize is the page size for auth-directory exports.
	UserPageSize = 1000
)

// DB is the capability surface over one side's document database.
// Implementations classify failures into the package's error taxonomy and
// retry transient ones internally.
type DB interface {
	// ListCollections lists all top-level collection names.
	ListCollections(ctx context.Context) ([]string, error)

	// ScanSince streams documents to fn. When since is non-empty only
	// documents with updatedAt strictly greater than since are returned,
	// filtered server-side. Order is arbitrary. A non-nil error from fn
	// aborts the scan and is returned unchanged.
	ScanSince(ctx context.Context, collection, since string, fn func(types.Document) error) error

	// Sample returns up to limit documents from the collection, order
	// arbitrary. Used for schema sampling.
	Sample(ctx context.Context, collection string, limit int) ([]types.Document, error)

	// MultiGet fetches documents by ID. Absent IDs are simply missing
	// from the result map.
	MultiGet(ctx context.Context, collection string, ids []string) (map[string]types.Document, error)

	// BatchWrite merge-writes up to MaxBatchWrite documents atomically.
	// Existing fields not present in the payload are preserved. Larger
	// batches are rejected with ErrInvalid; the caller must split.
	BatchWrite(ctx context.Context, collection string, docs []types.Document) error

	// ListIDs returns the full document ID set of a collection.
	ListIDs(ctx context.Context, collection string) ([]string, error)

	// Probe succeeds iff a trivial read completes within the deadline.
	Probe(ctx context.Context) error
}

// Directory is the capability surface over one side's authentication
// directory.
type Directory interface {
	// ListUsers returns one page of up to UserPageSize users and the
	// token for the next page; an empty token means the listing is done.
	ListUsers(ctx context.Context, pageToken string) ([]types.User, string, error)

	// ImportUsers bulk-upserts users by UID, preserving password hashes
	// under the given hash parameters. Individual rejections are
	// reported in the result, not as an error.
	ImportUsers(ctx context.Context, users []types.User, hash types.HashParams) (types.ImportResult, error)

	// SetCustomClaims replaces a user's custom-claims map.
	SetCustomClaims(ctx context.Context, uid string, claims map[string]interface{}) error

	// GetUser fetches one user by UID, ErrNotFound when absent.
	GetUser(ctx context.Context, uid string) (*types.User, error)

	// Probe succeeds iff listing one user completes within the deadline.
	Probe(ctx context.Context) error
}

// Gateways owns the four backend handles for the process lifetime and is
// passed to every component that talks to a backend.
type Gateways struct {
	PrimaryDB   DB
	StandbyDB   DB
	PrimaryAuth Directory
	StandbyAuth Directory
}

// DB returns the database handle for a side.
func (g *Gateways) DB(side types.Side) DB {
	if side == types.SideStandby {
		return g.StandbyDB
	}
	return g.PrimaryDB
}

// Auth returns the auth-directory handle for a side.
func (g *Gateways) Auth(side types.Side) Directory {
	if side == types.SideStandby {
		return g.StandbyAuth
	}
	return g.PrimaryAuth
}

package gateway

import (
	"context"
	"encoding/base64"
	"fmt"

	"firebase.google.com/go/v4/auth"
	"firebase.google.com/go/v4/auth/hash"
	"github.com/cuemby/mirror/pkg/log"
	"github.com/cuemby/mirror/pkg/types"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
)

// FirebaseDirectory implements Directory over a Firebase Auth client.
type FirebaseDirectory struct {
	client  *auth.Client
	side    types.Side
	retries int
	logger  zerolog.Logger
}

// NewFirebaseDirectory wraps a Firebase Auth client handle.
func NewFirebaseDirectory(client *auth.Client, side types.Side, retries int) *FirebaseDirectory {
	return &FirebaseDirectory{
		client:  client,
		side:    side,
		retries: retries,
		logger:  log.WithComponent("gateway").With().Str("side", string(side)).Logger(),
	}
}

func (d *FirebaseDirectory) ListUsers(ctx context.Context, pageToken string) ([]types.User, string, error) {
	ctx, cancel := context.WithTimeout(ctx, ReadDeadline)
	defer cancel()

	var (
		users []types.User
		next  string
	)
	err := withRetry(ctx, d.retries, func() error {
		it := d.client.Users(ctx, "")
		pager := iterator.NewPager(it, UserPageSize, pageToken)

		var exported []*auth.ExportedUserRecord
		token, err := pager.NextPage(&exported)
		if err != nil {
			return classify("list users", err)
		}
		users = users[:0]
		for _, rec := range exported {
			users = append(users, exportedToUser(rec))
		}
		next = token
		return nil
	})
	return users, next, err
}

func (d *FirebaseDirectory) ImportUsers(ctx context.Context, users []types.User, params types.HashParams) (types.ImportResult, error) {
	if len(users) == 0 {
		return types.ImportResult{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, ImportDeadline)
	defer cancel()

	records := make([]*auth.UserToImport, 0, len(users))
	hashed := false
	for _, u := range users {
		records = append(records, userToImport(u))
		if len(u.PasswordHash) > 0 {
			hashed = true
		}
	}

	var opts []auth.UserImportOption
	if hashed {
		h, err := hashScheme(params)
		if err != nil {
			return types.ImportResult{}, err
		}
		opts = append(opts, auth.WithHash(h))
	}

	var result types.ImportResult
	err := withRetry(ctx, d.retries, func() error {
		res, err := d.client.ImportUsers(ctx, records, opts...)
		if err != nil {
			return classify("import users", err)
		}
		result = types.ImportResult{
			SuccessCount: res.SuccessCount,
			FailureCount: res.FailureCount,
		}
		result.Errors = result.Errors[:0]
		for _, e := range res.Errors {
			result.Errors = append(result.Errors, types.ImportError{Index: e.Index, Reason: e.Reason})
		}
		return nil
	})
	return result, err
}

func (d *FirebaseDirectory) SetCustomClaims(ctx context.Context, uid string, claims map[string]interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, WriteDeadline)
	defer cancel()

	return withRetry(ctx, d.retries, func() error {
		if err := d.client.SetCustomUserClaims(ctx, uid, claims); err != nil {
			return classify(fmt.Sprintf("set claims %s", uid), err)
		}
		return nil
	})
}

func (d *FirebaseDirectory) GetUser(ctx context.Context, uid string) (*types.User, error) {
	ctx, cancel := context.WithTimeout(ctx, ReadDeadline)
	defer cancel()

	var user *types.User
	err := withRetry(ctx, d.retries, func() error {
		rec, err := d.client.GetUser(ctx, uid)
		if err != nil {
			return classify(fmt.Sprintf("get user %s", uid), err)
		}
		u := recordToUser(rec)
		user = &u
		return nil
	})
	return user, err
}

// Probe lists a single user; success within the deadline means healthy.
func (d *FirebaseDirectory) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, ProbeDeadline)
	defer cancel()

	it := d.client.Users(ctx, "")
	if _, err := it.Next(); err != nil && err != iterator.Done {
		return classify("probe", err)
	}
	return nil
}

// hashScheme maps the configured algorithm onto the backend's scheme.
func hashScheme(params types.HashParams) (auth.UserImportHash, error) {
	switch params.Algorithm {
	case "SCRYPT", "scrypt", "":
		return hash.Scrypt{
			Key:           params.Key,
			SaltSeparator: params.SaltSeparator,
			Rounds:        params.Rounds,
			MemoryCost:    params.MemoryCost,
		}, nil
	case "STANDARD_SCRYPT", "standard_scrypt":
		return hash.StandardScrypt{
			MemoryCost:       params.MemoryCost,
			Parallelization:  1,
			BlockSize:        8,
			DerivedKeyLength: 32,
		}, nil
	case "BCRYPT", "bcrypt":
		return hash.Bcrypt{}, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q: %w", params.Algorithm, ErrInvalid)
	}
}

func exportedToUser(rec *auth.ExportedUserRecord) types.User {
	u := recordToUser(rec.UserRecord)
	u.PasswordHash = decodeBase64(rec.PasswordHash)
	u.PasswordSalt = decodeBase64(rec.PasswordSalt)
	return u
}

func recordToUser(rec *auth.UserRecord) types.User {
	u := types.User{
		UID:           rec.UID,
		Email:         rec.Email,
		EmailVerified: rec.EmailVerified,
		DisplayName:   rec.DisplayName,
		PhotoURL:      rec.PhotoURL,
		PhoneNumber:   rec.PhoneNumber,
		Disabled:      rec.Disabled,
		CustomClaims:  rec.CustomClaims,
	}
	if rec.UserMetadata != nil {
		u.CreatedAtMs = rec.UserMetadata.CreationTimestamp
		u.LastSignInMs = rec.UserMetadata.LastLogInTimestamp
	}
	for _, p := range rec.ProviderUserInfo {
		u.ProviderData = append(u.ProviderData, types.ProviderInfo{
			ProviderID:  p.ProviderID,
			UID:         p.UID,
			Email:       p.Email,
			DisplayName: p.DisplayName,
			PhotoURL:    p.PhotoURL,
		})
	}
	return u
}

func userToImport(u types.User) *auth.UserToImport {
	rec := (&auth.UserToImport{}).
		UID(u.UID).
		EmailVerified(u.EmailVerified).
		Disabled(u.Disabled)

	if u.Email != "" {
		rec = rec.Email(u.Email)
	}
	if u.DisplayName != "" {
		rec = rec.DisplayName(u.DisplayName)
	}
	if u.PhotoURL != "" {
		rec = rec.PhotoURL(u.PhotoURL)
	}
	if u.PhoneNumber != "" {
		rec = rec.PhoneNumber(u.PhoneNumber)
	}
	if u.CreatedAtMs != 0 || u.LastSignInMs != 0 {
		rec = rec.Metadata(&auth.UserMetadata{
			CreationTimestamp:  u.CreatedAtMs,
			LastLogInTimestamp: u.LastSignInMs,
		})
	}
	if len(u.CustomClaims) > 0 {
		rec = rec.CustomClaims(u.CustomClaims)
	}
	if len(u.PasswordHash) > 0 {
		rec = rec.PasswordHash(u.PasswordHash)
	}
	if len(u.PasswordSalt) > 0 {
		rec = rec.PasswordSalt(u.PasswordSalt)
	}
	if len(u.ProviderData) > 0 {
		providers := make([]*auth.UserProvider, 0, len(u.ProviderData))
		for _, p := range u.ProviderData {
			providers = append(providers, &auth.UserProvider{
				UID:         p.UID,
				ProviderID:  p.ProviderID,
				Email:       p.Email,
				DisplayName: p.DisplayName,
				PhotoURL:    p.PhotoURL,
			})
		}
		rec = rec.ProviderData(providers)
	}
	return rec
}

// The export API base64-encodes hash material; the exact alphabet varies,
// so fall back across the common ones before giving up.
func decodeBase64(s string) []byte {
	if s == "" {
		return nil
	}
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(s); err == nil {
			return b
		}
	}
	return []byte(s)
}

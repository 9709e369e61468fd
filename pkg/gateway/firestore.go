package gateway

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/cuemby/mirror/pkg/log"
	"github.com/cuemby/mirror/pkg/types"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
)

// FirestoreDB implements DB over a Firestore client.
type FirestoreDB struct {
	client  *firestore.Client
	side    types.Side
	retries int
	logger  zerolog.Logger
}

// NewFirestoreDB wraps a Firestore client handle.
func NewFirestoreDB(client *firestore.Client, side types.Side, retries int) *FirestoreDB {
	return &FirestoreDB{
		client:  client,
		side:    side,
		retries: retries,
		logger:  log.WithComponent("gateway").With().Str("side", string(side)).Logger(),
	}
}

// Close releases the underlying client.
func (f *FirestoreDB) Close() error {
	return f.client.Close()
}

func (f *FirestoreDB) ListCollections(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, ReadDeadline)
	defer cancel()

	var names []string
	err := withRetry(ctx, f.retries, func() error {
		names = names[:0]
		it := f.client.Collections(ctx)
		for {
			col, err := it.Next()
			if err == iterator.Done {
				return nil
			}
			if err != nil {
				return classify("list collections", err)
			}
			names = append(names, col.ID)
		}
	})
	return names, err
}

func (f *FirestoreDB) ScanSince(ctx context.Context, collection, since string, fn func(types.Document) error) error {
	ctx, cancel := context.WithTimeout(ctx, ReadDeadline)
	defer cancel()

	q := f.client.Collection(collection).Query
	if since != "" {
		q = q.Where("updatedAt", ">", since)
	}

	it := q.Documents(ctx)
	defer it.Stop()
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return classify(fmt.Sprintf("scan %s", collection), err)
		}
		data := snap.Data()
		doc := types.Document{
			ID:        snap.Ref.ID,
			Data:      data,
			UpdatedAt: types.DocTimestamp(data),
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
}

func (f *FirestoreDB) Sample(ctx context.Context, collection string, limit int) ([]types.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, ReadDeadline)
	defer cancel()

	var docs []types.Document
	err := withRetry(ctx, f.retries, func() error {
		snaps, err := f.client.Collection(collection).Limit(limit).Documents(ctx).GetAll()
		if err != nil {
			return classify(fmt.Sprintf("sample %s", collection), err)
		}
		docs = docs[:0]
		for _, snap := range snaps {
			data := snap.Data()
			docs = append(docs, types.Document{
				ID:        snap.Ref.ID,
				Data:      data,
				UpdatedAt: types.DocTimestamp(data),
			})
		}
		return nil
	})
	return docs, err
}

func (f *FirestoreDB) MultiGet(ctx context.Context, collection string, ids []string) (map[string]types.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, ReadDeadline)
	defer cancel()

	refs := make([]*firestore.DocumentRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, f.client.Collection(collection).Doc(id))
	}

	result := make(map[string]types.Document, len(ids))
	err := withRetry(ctx, f.retries, func() error {
		snaps, err := f.client.GetAll(ctx, refs)
		if err != nil {
			return classify(fmt.Sprintf("multi-get %s", collection), err)
		}
		clear(result)
		for _, snap := range snaps {
			if !snap.Exists() {
				continue
			}
			data := snap.Data()
			result[snap.Ref.ID] = types.Document{
				ID:        snap.Ref.ID,
				Data:      data,
				UpdatedAt: types.DocTimestamp(data),
			}
		}
		return nil
	})
	return result, err
}

func (f *FirestoreDB) BatchWrite(ctx context.Context, collection string, docs []types.Document) error {
	if len(docs) > MaxBatchWrite {
		return fmt.Errorf("batch of %d exceeds limit of %d: %w", len(docs), MaxBatchWrite, ErrInvalid)
	}
	if len(docs) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, WriteDeadline)
	defer cancel()

	return withRetry(ctx, f.retries, func() error {
		batch := f.client.Batch()
		for _, doc := range docs {
			ref := f.client.Collection(collection).Doc(doc.ID)
			batch.Set(ref, doc.Data, firestore.MergeAll)
		}
		if _, err := batch.Commit(ctx); err != nil {
			return classify(fmt.Sprintf("batch write %s", collection), err)
		}
		f.logger.Debug().Str("collection", collection).Int("ops", len(docs)).Msg("batch committed")
		return nil
	})
}

func (f *FirestoreDB) ListIDs(ctx context.Context, collection string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, ReadDeadline)
	defer cancel()

	var ids []string
	err := withRetry(ctx, f.retries, func() error {
		ids = ids[:0]
		it := f.client.Collection(collection).DocumentRefs(ctx)
		for {
			ref, err := it.Next()
			if err == iterator.Done {
				return nil
			}
			if err != nil {
				return classify(fmt.Sprintf("list ids %s", collection), err)
			}
			ids = append(ids, ref.ID)
		}
	})
	return ids, err
}

// Probe reads a single collection handle; probes do not retry, the health
// monitor is the retry loop.
func (f *FirestoreDB) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, ProbeDeadline)
	defer cancel()

	it := f.client.Collections(ctx)
	if _, err := it.Next(); err != nil && err != iterator.Done {
		return classify("probe", err)
	}
	return nil
}

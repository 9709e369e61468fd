package schema

import (
	"context"
	"sort"
	"sync"

	"github.com/cuemby/mirror/pkg/events"
	"github.com/cuemby/mirror/pkg/gateway"
	"github.com/cuemby/mirror/pkg/log"
	"github.com/rs/zerolog"
)

// DefaultSampleSize is how many documents Refresh samples per collection.
const DefaultSampleSize = 5

// Tracker maintains the set of dotted field paths observed per
// collection. Sets grow monotonically within the process; only Reset
// shrinks them. The tracker is observability only, the replicator never
// enforces schema.
type Tracker struct {
	mu         sync.Mutex
	sets       map[string]map[string]struct{}
	broker     *events.Broker
	sampleSize int
	logger     zerolog.Logger
}

// NewTracker creates a tracker publishing schema changes on the broker.
func NewTracker(broker *events.Broker) *Tracker {
	return &Tracker{
		sets:       make(map[string]map[string]struct{}),
		broker:     broker,
		sampleSize: DefaultSampleSize,
		logger:     log.WithComponent("schema"),
	}
}

// Refresh samples the collection and folds newly observed key paths into
// its schema set. Additions produce a schemaChange event; removals are
// ignored. Returns the newly observed paths.
func (t *Tracker) Refresh(ctx context.Context, db gateway.DB, collection string) ([]string, error) {
	docs, err := db.Sample(ctx, collection, t.sampleSize)
	if err != nil {
		return nil, err
	}

	observed := make(map[string]struct{})
	for _, doc := range docs {
		flatten(doc.Data, "", observed)
	}

	t.mu.Lock()
	set := t.sets[collection]
	if set == nil {
		set = make(map[string]struct{})
		t.sets[collection] = set
	}
	var added []string
	for path := range observed {
		if _, seen := set[path]; !seen {
			set[path] = struct{}{}
			added = append(added, path)
		}
	}
	total := len(set)
	t.mu.Unlock()

	if len(added) > 0 {
		sort.Strings(added)
		t.logger.Info().
			Str("collection", collection).
			Strs("new_keys", added).
			Int("total_keys", total).
			Msg("schema changed")
		if t.broker != nil {
			t.broker.Emit(events.EventSchemaChange, events.SchemaChange{
				Collection: collection,
				NewKeys:    added,
				TotalKeys:  total,
			})
		}
	}
	return added, nil
}

// Schema returns the sorted key paths observed for a collection.
func (t *Tracker) Schema(collection string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	paths := make([]string, 0, len(t.sets[collection]))
	for path := range t.sets[collection] {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Schemas returns every tracked collection's sorted key paths.
func (t *Tracker) Schemas() map[string][]string {
	t.mu.Lock()
	collections := make([]string, 0, len(t.sets))
	for name := range t.sets {
		collections = append(collections, name)
	}
	t.mu.Unlock()

	out := make(map[string][]string, len(collections))
	for _, name := range collections {
		out[name] = t.Schema(name)
	}
	return out
}

// Reset discards all tracked schema sets.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sets = make(map[string]map[string]struct{})
}

// flatten records the dotted key paths of a payload, descending into
// nested maps but not into arrays.
func flatten(data map[string]interface{}, prefix string, out map[string]struct{}) {
	for key, value := range data {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		out[path] = struct{}{}
		if nested, ok := value.(map[string]interface{}); ok {
			flatten(nested, path, out)
		}
	}
}

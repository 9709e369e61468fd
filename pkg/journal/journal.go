package journal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cuemby/mirror/pkg/events"
	"github.com/cuemby/mirror/pkg/log"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"
)

// DefaultCap is how many events the journal retains before pruning the
// oldest.
const DefaultCap = 10000

var bucketEvents = []byte("events")

// Journal persists the event stream to a bolt file so operators can read
// recent history after reconnecting. Entries are keyed by a monotonic
// sequence and pruned beyond a fixed cap.
type Journal struct {
	db     *bolt.DB
	cap    int
	broker *events.Broker
	sub    events.Subscriber
	wg     sync.WaitGroup
	logger zerolog.Logger
}

// Open creates or opens the journal file.
func Open(path string, capacity int) (*Journal, error) {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEvents)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init journal: %w", err)
	}
	return &Journal{
		db:     db,
		cap:    capacity,
		logger: log.WithComponent("journal"),
	}, nil
}

// Follow subscribes to the broker and appends every event until Close.
func (j *Journal) Follow(broker *events.Broker) {
	j.broker = broker
	j.sub = broker.Subscribe()
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		for ev := range j.sub {
			if err := j.Append(ev); err != nil {
				j.logger.Error().Err(err).Str("type", string(ev.Type)).Msg("failed to journal event")
			}
		}
	}()
}

// Append stores one event and prunes past the cap.
func (j *Journal) Append(ev *events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		if err := b.Put(seqKey(seq), data); err != nil {
			return err
		}
		// Drop entries older than the cap. Sequences are dense, so
		// everything at or below seq-cap is surplus.
		if seq > uint64(j.cap) {
			cutoff := seq - uint64(j.cap)
			c := b.Cursor()
			for k, _ := c.First(); k != nil && binary.BigEndian.Uint64(k) <= cutoff; k, _ = c.First() {
				if err := b.Delete(k); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Recent returns up to n most recent events, oldest first.
func (j *Journal) Recent(n int) ([]*events.Event, error) {
	var out []*events.Event
	err := j.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()
		for k, v := c.Last(); k != nil && len(out) < n; k, v = c.Prev() {
			var ev events.Event
			if err := json.Unmarshal(v, &ev); err != nil {
				return fmt.Errorf("failed to decode event %d: %w", binary.BigEndian.Uint64(k), err)
			}
			out = append(out, &ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Reverse into chronological order.
	for i, jj := 0, len(out)-1; i < jj; i, jj = i+1, jj-1 {
		out[i], out[jj] = out[jj], out[i]
	}
	return out, nil
}

// Len returns the number of stored events.
func (j *Journal) Len() (int, error) {
	var n int
	err := j.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketEvents).Stats().KeyN
		return nil
	})
	return n, err
}

// Close detaches from the broker and closes the file.
func (j *Journal) Close() error {
	if j.broker != nil && j.sub != nil {
		j.broker.Unsubscribe(j.sub)
		j.wg.Wait()
	}
	return j.db.Close()
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

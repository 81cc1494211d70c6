package plugins

import (
	"encoding/json"
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"
)

var bucketMockData = []byte("mock_data")

// mockKey builds the "<ServiceName>-<call_index>-<source_id>-input"|"-output"
// keys spec.md §6 describes for the in-memory mock map.
func mockKey(serviceName string, callIndex int, sourceID, direction string) string {
	return fmt.Sprintf("%s-%d-%s-%s", serviceName, callIndex, sourceID, direction)
}

// Recorder is the process-wide mock data collaborator (spec.md §9: "model
// it as an explicit collaborator owned by the Host and passed to plugin
// adapters"). In "mock" profile, every call through a Mock* adapter routes
// through it: a recorded output is returned verbatim; a call with no
// recording goes to the wrapped real backend (or fails when there is none)
// and its output is recorded. Persistence is grounded on cuemby-warren's pkg/storage/boltdb.go
// bucket-per-concern bbolt usage.
type Recorder struct {
	mu   sync.RWMutex
	data map[string]json.RawMessage

	db *bolt.DB
}

// NewRecorder returns an empty, in-memory Recorder.
func NewRecorder() *Recorder {
	return &Recorder{data: make(map[string]json.RawMessage)}
}

// OpenRecorder opens (creating if needed) a bbolt-backed Recorder at path,
// loading any previously persisted mock data.
func OpenRecorder(path string) (*Recorder, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open mock data store %s: %w", path, err)
	}

	r := &Recorder{data: make(map[string]json.RawMessage), db: db}
	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketMockData)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			r.data[string(k)] = append(json.RawMessage(nil), v...)
			return nil
		})
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load mock data store %s: %w", path, err)
	}
	return r, nil
}

// UpdateMockDataInput records the input payload for one call site.
func (r *Recorder) UpdateMockDataInput(serviceName string, callIndex int, sourceID string, input any) error {
	return r.set(mockKey(serviceName, callIndex, sourceID, "input"), input)
}

// UpdateMockDataOutput records the output payload for one call site.
func (r *Recorder) UpdateMockDataOutput(serviceName string, callIndex int, sourceID string, output any) error {
	return r.set(mockKey(serviceName, callIndex, sourceID, "output"), output)
}

// UpdateMockData is the generic form used when a caller already knows the
// full key (mirrors the Host's update_mock_data surface in spec.md §4.5).
func (r *Recorder) UpdateMockData(key string, value any) error {
	return r.set(key, value)
}

func (r *Recorder) set(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal mock data for key %s: %w", key, err)
	}
	r.mu.Lock()
	r.data[key] = data
	r.mu.Unlock()
	return nil
}

// Output looks up the recorded output for one call site and unmarshals it
// into out. Returns false if nothing was recorded for that key.
func (r *Recorder) Output(serviceName string, callIndex int, sourceID string, out any) (bool, error) {
	r.mu.RLock()
	data, ok := r.data[mockKey(serviceName, callIndex, sourceID, "output")]
	r.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return true, fmt.Errorf("unmarshal recorded output: %w", err)
	}
	return true, nil
}

// MockUpdateArgs lets tests or the CLI override args passed to a subsequent
// mocked plugin call, mirroring the Host's mock_update_args surface.
type MockUpdateArgs map[string]string

// WriteMockData serializes every recorded entry to the backing bbolt
// database (a no-op if the Recorder was constructed with NewRecorder rather
// than OpenRecorder).
func (r *Recorder) WriteMockData() error {
	if r.db == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketMockData)
		if err != nil {
			return err
		}
		for k, v := range r.data {
			if err := b.Put([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the backing bbolt database, if any.
func (r *Recorder) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

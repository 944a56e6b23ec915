package store

import (
	"sort"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/xujiajun/nutsdb"

	"github.com/jbartok/big-data-benchmark/log"
)

// Backend persists checkpoint state. Save stages one task's serialized state
// under a checkpoint id, Persist makes the whole checkpoint durable, Get
// returns a task's state from the latest persisted checkpoint.
type Backend interface {
	Save(checkpointId int64, name string, state []byte) error
	Persist(checkpointId int64) error
	Get(name string) ([]byte, error)
	Close() error
}

func formatCheckpointId(id int64) string {
	return strconv.FormatInt(id, 10)
}

func parseCheckpointId(idStr string) int64 {
	id, _ := strconv.ParseInt(idStr, 10, 64)
	return id
}

// memory keeps checkpoints in process, for tests and checkpoint-disabled runs.
type memory struct {
	mutex       sync.Mutex
	staged      map[int64]map[string][]byte
	checkpoints []int64
}

func NewMemoryBackend() Backend {
	return &memory{staged: map[int64]map[string][]byte{}}
}

func (m *memory) Save(checkpointId int64, name string, state []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.staged[checkpointId] == nil {
		m.staged[checkpointId] = map[string][]byte{}
	}
	m.staged[checkpointId][name] = state
	return nil
}

func (m *memory) Persist(checkpointId int64) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.staged[checkpointId]; !ok {
		return errors.Errorf("checkpoint %d not found", checkpointId)
	}
	m.checkpoints = append(m.checkpoints, checkpointId)
	return nil
}

func (m *memory) Get(name string) ([]byte, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if len(m.checkpoints) == 0 {
		return nil, nil
	}
	return m.staged[m.checkpoints[len(m.checkpoints)-1]][name], nil
}

func (m *memory) Close() error { return nil }

type fs struct {
	logger log.Logger
	db     *nutsdb.DB
	//staged holds not yet persisted checkpoint state
	staged *sync.Map
	//checkpoints are the persisted checkpoint ids, sorted ascending
	checkpoints            []int64
	checkpointsTotalNum    int
	checkpointsNumRetained int
}

// NewFSBackend opens a nutsdb-backed checkpoint store in checkpointsDir,
// loading previously persisted checkpoints for recovery.
func NewFSBackend(logger log.Logger, checkpointsDir string, checkpointsNumRetained int) (Backend, error) {
	opts := nutsdb.DefaultOptions
	opts.Dir = checkpointsDir
	db, err := nutsdb.Open(opts)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to open checkpoint db")
	}
	backend := &fs{
		logger:                 logger,
		db:                     db,
		staged:                 &sync.Map{},
		checkpointsNumRetained: checkpointsNumRetained,
	}
	return backend, backend.init()
}

func (r *fs) init() error {
	return r.db.View(func(tx *nutsdb.Tx) error {
		if err := tx.IterateBuckets(nutsdb.DataStructureBPTree, "*", func(key string) bool {
			r.checkpoints = append(r.checkpoints, parseCheckpointId(key))
			return true
		}); err != nil {
			return errors.WithMessage(err, "unable to iterate checkpoints, the state may be corrupted")
		}
		sort.Slice(r.checkpoints, func(i, j int) bool {
			return r.checkpoints[i] < r.checkpoints[j]
		})
		for _, checkpointId := range r.checkpoints {
			entries, err := tx.GetAll(formatCheckpointId(checkpointId))
			if err != nil {
				return errors.WithMessagef(err, "failed to load checkpoint %d", checkpointId)
			}
			checkpointState := &sync.Map{}
			for _, entry := range entries {
				checkpointState.Store(string(entry.Key), entry.Value)
			}
			r.staged.Store(checkpointId, checkpointState)
		}
		return nil
	})
}

func (r *fs) Save(checkpointId int64, name string, state []byte) error {
	var checkpointState *sync.Map
	if tmp, ok := r.staged.Load(checkpointId); !ok {
		checkpointState = &sync.Map{}
		r.staged.Store(checkpointId, checkpointState)
	} else {
		checkpointState = tmp.(*sync.Map)
	}
	checkpointState.Store(name, state)
	return nil
}

func (r *fs) Persist(checkpointId int64) error {
	m, ok := r.staged.Load(checkpointId)
	if !ok {
		return errors.Errorf("checkpoint %d not found", checkpointId)
	}
	if err := r.db.Update(func(tx *nutsdb.Tx) error {
		var err error
		m.(*sync.Map).Range(func(name, state any) bool {
			err = tx.Put(formatCheckpointId(checkpointId), []byte(name.(string)), state.([]byte), 0)
			return err == nil
		})
		return err
	}); err != nil {
		return errors.WithMessagef(err, "failed to persist checkpoint %d", checkpointId)
	}
	r.checkpoints = append(r.checkpoints, checkpointId)
	r.checkpointsTotalNum += 1

	//expire old checkpoints past the retention count
	if r.checkpointsTotalNum%r.checkpointsNumRetained == 0 && len(r.checkpoints) > r.checkpointsNumRetained {
		deleted := r.checkpoints[:len(r.checkpoints)-r.checkpointsNumRetained]
		r.checkpoints = r.checkpoints[len(r.checkpoints)-r.checkpointsNumRetained:]
		if err := r.db.Update(func(tx *nutsdb.Tx) error {
			for _, deletedCheckpointId := range deleted {
				if err := tx.DeleteBucket(nutsdb.DataStructureBPTree, formatCheckpointId(deletedCheckpointId)); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			r.logger.Warnw("failed to clear up expired checkpoint data.", "err", err)
		}
		for _, deletedCheckpointId := range deleted {
			r.staged.Delete(deletedCheckpointId)
		}
	}
	return nil
}

func (r *fs) Get(name string) ([]byte, error) {
	if len(r.checkpoints) == 0 {
		return nil, nil
	}
	latest := r.checkpoints[len(r.checkpoints)-1]
	v, ok := r.staged.Load(latest)
	if !ok {
		return nil, errors.Errorf("state for checkpoint %d not found", latest)
	}
	if stateI, ok := v.(*sync.Map).Load(name); ok {
		return stateI.([]byte), nil
	}
	return nil, nil
}

func (r *fs) Close() error {
	return r.db.Close()
}

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbartok/big-data-benchmark/log"
)

func TestMemoryBackendGetRequiresPersist(t *testing.T) {
	backend := NewMemoryBackend()
	require.NoError(t, backend.Save(1, "source", []byte("offsets")))

	state, err := backend.Get("source")
	require.NoError(t, err)
	assert.Nil(t, state)

	require.NoError(t, backend.Persist(1))
	state, err = backend.Get("source")
	require.NoError(t, err)
	assert.Equal(t, []byte("offsets"), state)
}

func TestMemoryBackendReadsLatestCheckpoint(t *testing.T) {
	backend := NewMemoryBackend()
	require.NoError(t, backend.Save(1, "source", []byte("old")))
	require.NoError(t, backend.Persist(1))
	require.NoError(t, backend.Save(2, "source", []byte("new")))
	require.NoError(t, backend.Persist(2))

	state, err := backend.Get("source")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), state)
}

func TestMemoryBackendPersistUnknownCheckpoint(t *testing.T) {
	backend := NewMemoryBackend()
	assert.Error(t, backend.Persist(42))
}

func TestFSBackendRoundTrip(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFSBackend(log.Global(), dir, 2)
	require.NoError(t, err)

	require.NoError(t, backend.Save(1, "source", []byte("offsets")))
	require.NoError(t, backend.Save(1, "aggregator-0", []byte("acc")))
	require.NoError(t, backend.Persist(1))

	state, err := backend.Get("source")
	require.NoError(t, err)
	assert.Equal(t, []byte("offsets"), state)

	state, err = backend.Get("aggregator-0")
	require.NoError(t, err)
	assert.Equal(t, []byte("acc"), state)

	state, err = backend.Get("unknown")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestFSBackendSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFSBackend(log.Global(), dir, 2)
	require.NoError(t, err)
	require.NoError(t, backend.Save(1, "source", []byte("old")))
	require.NoError(t, backend.Persist(1))
	require.NoError(t, backend.Save(2, "source", []byte("new")))
	require.NoError(t, backend.Persist(2))
	require.NoError(t, backend.Close())

	reopened, err := NewFSBackend(log.Global(), dir, 2)
	require.NoError(t, err)
	defer reopened.Close()

	state, err := reopened.Get("source")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), state)
}

func TestFSBackendRetention(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFSBackend(log.Global(), dir, 2)
	require.NoError(t, err)
	defer backend.Close()

	for id := int64(1); id <= 6; id++ {
		require.NoError(t, backend.Save(id, "source", []byte{byte(id)}))
		require.NoError(t, backend.Persist(id))
	}

	//old checkpoints are expired but the latest stays readable
	state, err := backend.Get("source")
	require.NoError(t, err)
	assert.Equal(t, []byte{6}, state)
}

package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbartok/big-data-benchmark/element"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestTextTokenizesFiles(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, dir, "first.txt", "the quick brown\nfox")
	second := writeFile(t, dir, "second.txt", "  jumps over ")

	src := NewText([]string{first, second}, 1)
	require.Equal(t, 1, src.Partitions())

	var words []string
	require.NoError(t, src.Run(context.Background(), 0, func(event element.Event[string]) {
		assert.Equal(t, event.Key, event.Value)
		assert.Equal(t, int64(0), event.Timestamp)
		words = append(words, event.Key)
	}))
	assert.Equal(t, []string{"the", "quick", "brown", "fox", "jumps", "over"}, words)
}

func TestTextSpreadsFilesRoundRobin(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeFile(t, dir, "a.txt", "alpha"),
		writeFile(t, dir, "b.txt", "beta"),
		writeFile(t, dir, "c.txt", "gamma"),
	}

	src := NewText(paths, 2)
	require.Equal(t, 2, src.Partitions())

	collect := func(partition int) []string {
		var words []string
		require.NoError(t, src.Run(context.Background(), partition, func(event element.Event[string]) {
			words = append(words, event.Key)
		}))
		return words
	}
	assert.Equal(t, []string{"alpha", "gamma"}, collect(0))
	assert.Equal(t, []string{"beta"}, collect(1))
}

func TestTextResumesAtFileBoundary(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeFile(t, dir, "a.txt", "alpha"),
		writeFile(t, dir, "b.txt", "beta gamma"),
	}

	src := NewText(paths, 1)
	ctx, cancel := context.WithCancel(context.Background())
	err := src.Run(ctx, 0, func(event element.Event[string]) {
		if event.Key == "beta" {
			cancel()
		}
	})
	require.ErrorIs(t, err, context.Canceled)

	stateBytes, err := src.Snapshot()
	require.NoError(t, err)

	//the in-flight file is replayed whole
	restored := NewText(paths, 1)
	require.NoError(t, restored.Restore(stateBytes))
	var words []string
	require.NoError(t, restored.Run(context.Background(), 0, func(event element.Event[string]) {
		words = append(words, event.Key)
	}))
	assert.Equal(t, []string{"beta", "gamma"}, words)
}

func TestTextMissingFile(t *testing.T) {
	src := NewText([]string{"does-not-exist.txt"}, 1)
	assert.Error(t, src.Run(context.Background(), 0, func(element.Event[string]) {}))
}

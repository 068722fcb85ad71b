package mqtt311

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// namedHandler creates a handler that records its name into dst when
// invoked, so tests can tell which stored handler a Find returned.
func namedHandler(dst *string, name string) MessageHandler {
	return func(_ *Message) {
		*dst = name
	}
}

func TestTopicTrieExactMatch(t *testing.T) {
	trie := NewTopicTrie()

	var got string
	require.NoError(t, trie.Insert("a/b/c", namedHandler(&got, "exact")))

	handler, ok := trie.Find("a/b/c")
	require.True(t, ok)
	handler(&Message{})
	assert.Equal(t, "exact", got)

	_, ok = trie.Find("a/b")
	assert.False(t, ok)

	_, ok = trie.Find("a/b/c/d")
	assert.False(t, ok)
}

func TestTopicTriePlusWildcard(t *testing.T) {
	trie := NewTopicTrie()

	var got string
	require.NoError(t, trie.Insert("a/+/c", namedHandler(&got, "plus")))

	handler, ok := trie.Find("a/b/c")
	require.True(t, ok)
	handler(&Message{})
	assert.Equal(t, "plus", got)

	// '+' matches exactly one level.
	_, ok = trie.Find("a/c")
	assert.False(t, ok)
	_, ok = trie.Find("a/b/x/c")
	assert.False(t, ok)
}

func TestTopicTrieHashWildcard(t *testing.T) {
	trie := NewTopicTrie()

	var got string
	require.NoError(t, trie.Insert("a/#", namedHandler(&got, "hash")))

	for _, topic := range []string{"a/b", "a/b/c", "a/b/c/d"} {
		handler, ok := trie.Find(topic)
		require.True(t, ok, topic)
		handler(&Message{})
		assert.Equal(t, "hash", got)
	}

	// 'a/#' also matches the parent level itself.
	handler, ok := trie.Find("a")
	require.True(t, ok)
	handler(&Message{})
	assert.Equal(t, "hash", got)

	_, ok = trie.Find("b")
	assert.False(t, ok)
}

func TestTopicTriePrecedence(t *testing.T) {
	t.Run("exact beats hash beats plus", func(t *testing.T) {
		trie := NewTopicTrie()

		var got string
		require.NoError(t, trie.Insert("a/b", namedHandler(&got, "exact")))
		require.NoError(t, trie.Insert("a/#", namedHandler(&got, "hash")))
		require.NoError(t, trie.Insert("a/+", namedHandler(&got, "plus")))

		handler, ok := trie.Find("a/b")
		require.True(t, ok)
		handler(&Message{})
		assert.Equal(t, "exact", got)
	})

	t.Run("hash beats plus", func(t *testing.T) {
		trie := NewTopicTrie()

		var got string
		require.NoError(t, trie.Insert("a/#", namedHandler(&got, "hash")))
		require.NoError(t, trie.Insert("a/+", namedHandler(&got, "plus")))

		handler, ok := trie.Find("a/b")
		require.True(t, ok)
		handler(&Message{})
		assert.Equal(t, "hash", got)
	})

	t.Run("no backtracking after exact descent", func(t *testing.T) {
		trie := NewTopicTrie()

		var got string
		// The exact child "b" exists but only for a deeper filter;
		// matching "a/b" descends into it and does not fall back to the
		// sibling "a/+" filter.
		require.NoError(t, trie.Insert("a/b/c", namedHandler(&got, "deep")))
		require.NoError(t, trie.Insert("a/+", namedHandler(&got, "plus")))

		_, ok := trie.Find("a/b")
		assert.False(t, ok)
	})
}

func TestTopicTrieTrailingEmptyLevel(t *testing.T) {
	t.Run("bare and trailing-slash filters are distinct", func(t *testing.T) {
		trie := NewTopicTrie()

		var got string
		require.NoError(t, trie.Insert("a", namedHandler(&got, "bare")))
		require.NoError(t, trie.Insert("a/", namedHandler(&got, "trailing")))

		handler, ok := trie.Find("a/")
		require.True(t, ok)
		handler(&Message{})
		assert.Equal(t, "trailing", got)

		handler, ok = trie.Find("a")
		require.True(t, ok)
		handler(&Message{})
		assert.Equal(t, "bare", got)
	})

	t.Run("bare filter does not match trailing slash", func(t *testing.T) {
		trie := NewTopicTrie()
		require.NoError(t, trie.Insert("a", nil))

		_, ok := trie.Find("a/")
		assert.False(t, ok)
	})

	t.Run("plus matches an empty level", func(t *testing.T) {
		trie := NewTopicTrie()
		require.NoError(t, trie.Insert("a/+", nil))

		_, ok := trie.Find("a/")
		assert.True(t, ok)
	})

	t.Run("hash matches a trailing empty level", func(t *testing.T) {
		trie := NewTopicTrie()
		require.NoError(t, trie.Insert("a/#", nil))

		_, ok := trie.Find("a/")
		assert.True(t, ok)
	})

	t.Run("interior empty level", func(t *testing.T) {
		trie := NewTopicTrie()

		var got string
		require.NoError(t, trie.Insert("a//b", namedHandler(&got, "interior")))

		handler, ok := trie.Find("a//b")
		require.True(t, ok)
		handler(&Message{})
		assert.Equal(t, "interior", got)

		_, ok = trie.Find("a/b")
		assert.False(t, ok)
	})
}

func TestTopicTrieOverwrite(t *testing.T) {
	trie := NewTopicTrie()

	var got string
	require.NoError(t, trie.Insert("a/b", namedHandler(&got, "first")))
	require.NoError(t, trie.Insert("a/b", namedHandler(&got, "second")))

	handler, ok := trie.Find("a/b")
	require.True(t, ok)
	handler(&Message{})
	assert.Equal(t, "second", got)
}

func TestTopicTrieNilHandler(t *testing.T) {
	trie := NewTopicTrie()
	require.NoError(t, trie.Insert("a/b", nil))

	// A subscription without a handler still matches.
	handler, ok := trie.Find("a/b")
	assert.True(t, ok)
	assert.Nil(t, handler)
}

func TestTopicTrieRemove(t *testing.T) {
	t.Run("removes only the named filter", func(t *testing.T) {
		trie := NewTopicTrie()

		var got string
		require.NoError(t, trie.Insert("a/b", namedHandler(&got, "exact")))
		require.NoError(t, trie.Insert("a/+", namedHandler(&got, "plus")))

		require.NoError(t, trie.Remove("a/b"))

		handler, ok := trie.Find("a/b")
		require.True(t, ok)
		handler(&Message{})
		assert.Equal(t, "plus", got)
	})

	t.Run("remove unknown filter is a no-op", func(t *testing.T) {
		trie := NewTopicTrie()

		var got string
		require.NoError(t, trie.Insert("a/b", namedHandler(&got, "exact")))
		require.NoError(t, trie.Remove("x/y/z"))
		require.NoError(t, trie.Remove("a/+"))

		_, ok := trie.Find("a/b")
		assert.True(t, ok)
	})

	t.Run("prunes empty branches", func(t *testing.T) {
		trie := NewTopicTrie()

		require.NoError(t, trie.Insert("a/b/c/d", nil))
		require.NoError(t, trie.Remove("a/b/c/d"))

		assert.True(t, trie.root.empty())
	})

	t.Run("keeps shared prefix alive", func(t *testing.T) {
		trie := NewTopicTrie()

		require.NoError(t, trie.Insert("a/b/c", nil))
		require.NoError(t, trie.Insert("a/b", nil))
		require.NoError(t, trie.Remove("a/b/c"))

		_, ok := trie.Find("a/b")
		assert.True(t, ok)
		_, ok = trie.Find("a/b/c")
		assert.False(t, ok)
	})

	t.Run("removes hash filter", func(t *testing.T) {
		trie := NewTopicTrie()

		require.NoError(t, trie.Insert("a/#", nil))
		require.NoError(t, trie.Remove("a/#"))

		_, ok := trie.Find("a/b")
		assert.False(t, ok)
		assert.True(t, trie.root.empty())
	})
}

func TestTopicTrieInvalidInput(t *testing.T) {
	trie := NewTopicTrie()

	assert.ErrorIs(t, trie.Insert("", nil), ErrEmptyTopic)
	assert.ErrorIs(t, trie.Insert("a/#/b", nil), ErrInvalidTopicFilter)
	assert.ErrorIs(t, trie.Remove("a/b#"), ErrInvalidTopicFilter)

	// Find with a wildcard topic name never matches.
	require.NoError(t, trie.Insert("a/+", nil))
	_, ok := trie.Find("a/+")
	assert.False(t, ok)
}

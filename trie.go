package mqtt311

import "strings"

// MessageHandler handles an incoming MQTT message.
type MessageHandler func(msg *Message)

// trieNode represents one topic level. Literal child segments, the
// single-level wildcard child and the multi-level wildcard handler are
// kept in separate fields so the match precedence (exact, then '#',
// then '+') is structural rather than a map-key convention.
type trieNode struct {
	children map[string]*trieNode
	plus     *trieNode

	handler    MessageHandler
	hasHandler bool

	// A filter ending in '#' terminates at the parent of the '#'
	// segment: "a/#" stores its handler here on the "a" node.
	hashHandler MessageHandler
	hasHash     bool
}

func newTrieNode() *trieNode {
	return &trieNode{}
}

func (n *trieNode) empty() bool {
	return len(n.children) == 0 && n.plus == nil && !n.hasHandler && !n.hasHash
}

// TopicTrie stores topic-filter to handler associations and matches
// concrete topic names against them. All operations are O(depth) in the
// number of filter levels, independent of the number of stored filters.
//
// The trie is not safe for concurrent use; the owning connection
// serializes access.
type TopicTrie struct {
	root *trieNode
}

// NewTopicTrie creates an empty topic trie.
func NewTopicTrie() *TopicTrie {
	return &TopicTrie{root: newTrieNode()}
}

// Insert stores handler for the given topic filter. The handler may be
// nil for subscriptions without a per-subscription callback.
// Re-inserting the same filter overwrites its handler.
func (t *TopicTrie) Insert(filter string, handler MessageHandler) error {
	if err := ValidateTopicFilter(filter); err != nil {
		return err
	}

	levels := strings.Split(filter, string(topicSeparator))
	node := t.root

	for i, level := range levels {
		if level == string(multiLevelWildcard) {
			// ValidateTopicFilter guarantees this is the last level.
			node.hashHandler = handler
			node.hasHash = true
			return nil
		}

		var child *trieNode
		if level == string(singleLevelWildcard) {
			if node.plus == nil {
				node.plus = newTrieNode()
			}
			child = node.plus
		} else {
			if node.children == nil {
				node.children = make(map[string]*trieNode)
			}
			child = node.children[level]
			if child == nil {
				child = newTrieNode()
				node.children[level] = child
			}
		}
		node = child

		if i == len(levels)-1 {
			node.handler = handler
			node.hasHandler = true
		}
	}

	return nil
}

// Remove deletes the given topic filter and its handler. Removing a
// filter that was never inserted is a no-op. Nodes left without
// handlers or children are pruned.
func (t *TopicTrie) Remove(filter string) error {
	if err := ValidateTopicFilter(filter); err != nil {
		return err
	}

	levels := strings.Split(filter, string(topicSeparator))
	t.removeLevels(t.root, levels)
	return nil
}

// removeLevels walks the filter path and reports whether the node became
// empty and should be detached by its parent.
func (t *TopicTrie) removeLevels(node *trieNode, levels []string) bool {
	if len(levels) == 0 {
		node.handler = nil
		node.hasHandler = false
		return node.empty()
	}

	level := levels[0]

	if level == string(multiLevelWildcard) {
		node.hashHandler = nil
		node.hasHash = false
		return node.empty()
	}

	if level == string(singleLevelWildcard) {
		if node.plus == nil {
			return false
		}
		if t.removeLevels(node.plus, levels[1:]) {
			node.plus = nil
		}
		return node.empty()
	}

	child := node.children[level]
	if child == nil {
		return false
	}
	if t.removeLevels(child, levels[1:]) {
		delete(node.children, level)
	}
	return node.empty()
}

// Find matches a concrete topic name against the stored filters and
// returns the handler of the most specific match, or nil if nothing
// matches. At each level an exact segment wins over '#', which wins
// over '+'. The second return value reports whether a filter matched,
// so a matching subscription registered without a handler is
// distinguishable from no match.
func (t *TopicTrie) Find(topic string) (MessageHandler, bool) {
	if ValidateTopicName(topic) != nil {
		return nil, false
	}

	node := t.root

	// Split with the same semantics as Insert so empty levels ("a/",
	// "a//b") segment identically on both sides.
	for _, level := range strings.Split(topic, string(topicSeparator)) {
		switch {
		case node.children[level] != nil:
			node = node.children[level]
		case node.hasHash:
			// '#' swallows this level and everything after it.
			return node.hashHandler, true
		case node.plus != nil:
			node = node.plus
		default:
			return nil, false
		}
	}

	if node.hasHandler {
		return node.handler, true
	}
	// A trailing '#' also matches its parent level: "a/#" matches "a".
	if node.hasHash {
		return node.hashHandler, true
	}
	return nil, false
}

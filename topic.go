package mqtt311

import (
	"strings"
	"unicode/utf8"
)

const (
	topicSeparator      = '/'
	singleLevelWildcard = '+'
	multiLevelWildcard  = '#'
)

// ValidateTopicName validates a concrete topic name.
// Topic names cannot contain wildcards and must be valid UTF-8.
// MQTT v3.1.1 spec: Section 4.7
func ValidateTopicName(topic string) error {
	if topic == "" {
		return ErrEmptyTopic
	}

	if !utf8.ValidString(topic) {
		return ErrInvalidTopicName
	}

	if containsWildcard(topic) {
		return ErrInvalidTopicName
	}

	for _, r := range topic {
		if r == 0 {
			return ErrInvalidTopicName
		}
	}

	return nil
}

// ValidateTopicFilter validates a topic filter.
// Filters may contain wildcards: '+' must occupy a whole level, '#' must
// occupy the whole final level.
// MQTT v3.1.1 spec: Section 4.7
func ValidateTopicFilter(filter string) error {
	if filter == "" {
		return ErrEmptyTopic
	}

	if !utf8.ValidString(filter) {
		return ErrInvalidTopicFilter
	}

	for _, r := range filter {
		if r == 0 {
			return ErrInvalidTopicFilter
		}
	}

	levels := strings.Split(filter, string(topicSeparator))

	for i, level := range levels {
		if strings.ContainsRune(level, singleLevelWildcard) {
			if level != string(singleLevelWildcard) {
				return ErrInvalidTopicFilter
			}
		}

		if strings.ContainsRune(level, multiLevelWildcard) {
			if level != string(multiLevelWildcard) {
				return ErrInvalidTopicFilter
			}
			if i != len(levels)-1 {
				return ErrInvalidTopicFilter
			}
		}
	}

	return nil
}

// containsWildcard returns true if the filter contains wildcard characters.
func containsWildcard(filter string) bool {
	return strings.ContainsAny(filter, "#+")
}

package commsutil

import (
	"strings"
)

// DefaultEventSubjectPrefix is the subject root host events are mirrored under.
const DefaultEventSubjectPrefix = "agentlink.events"

const injectSegment = "inject"

// BuildEventSubject returns the mirror subject for a topic. Topics are
// already dot-separated, so they map onto NATS tokens directly.
func BuildEventSubject(prefix, topic string) string {
	return strings.TrimSuffix(prefix, ".") + "." + topic
}

// BuildInjectSubject returns the subject an external producer publishes
// to in order to raise topic inside the bridge.
func BuildInjectSubject(prefix, topic string) string {
	return strings.TrimSuffix(prefix, ".") + "." + injectSegment + "." + topic
}

// InjectWildcard matches every inject subject under prefix.
func InjectWildcard(prefix string) string {
	return strings.TrimSuffix(prefix, ".") + "." + injectSegment + ".>"
}

// TopicFromInjectSubject extracts the topic from an inject subject. It
// reports false for subjects outside the inject tree.
func TopicFromInjectSubject(prefix, subject string) (string, bool) {
	root := strings.TrimSuffix(prefix, ".") + "." + injectSegment + "."
	if !strings.HasPrefix(subject, root) || len(subject) == len(root) {
		return "", false
	}
	return subject[len(root):], true
}

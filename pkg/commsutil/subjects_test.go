package commsutil

import "testing"

func TestBuildEventSubject(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		topic  string
		want   string
	}{
		{"default prefix", DefaultEventSubjectPrefix, "asset.changed", "agentlink.events.asset.changed"},
		{"trailing dot", "editor.events.", "blueprint.compiled", "editor.events.blueprint.compiled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildEventSubject(tt.prefix, tt.topic)
			if got != tt.want {
				t.Errorf("commsutil:subjects_test - BuildEventSubject(%q, %q) = %q, want %q", tt.prefix, tt.topic, got, tt.want)
			}
		})
	}
}

func TestInjectSubjects(t *testing.T) {
	subject := BuildInjectSubject(DefaultEventSubjectPrefix, "messagelog.Blueprint")
	if subject != "agentlink.events.inject.messagelog.Blueprint" {
		t.Errorf("commsutil:subjects_test - BuildInjectSubject = %q", subject)
	}
	if w := InjectWildcard(DefaultEventSubjectPrefix); w != "agentlink.events.inject.>" {
		t.Errorf("commsutil:subjects_test - InjectWildcard = %q", w)
	}

	tests := []struct {
		subject string
		topic   string
		ok      bool
	}{
		{subject, "messagelog.Blueprint", true},
		{"agentlink.events.inject.", "", false},
		{"agentlink.events.asset.changed", "", false},
		{"other.inject.asset.changed", "", false},
	}
	for _, tt := range tests {
		topic, ok := TopicFromInjectSubject(DefaultEventSubjectPrefix, tt.subject)
		if ok != tt.ok || topic != tt.topic {
			t.Errorf("commsutil:subjects_test - TopicFromInjectSubject(%q) = %q, %v; want %q, %v", tt.subject, topic, ok, tt.topic, tt.ok)
		}
	}
}

package host

import (
	"time"

	"github.com/morezero/agent-link/pkg/events"
)

// Severity of a message log line.
type Severity string

const (
	SeverityInfo    Severity = "Info"
	SeverityWarning Severity = "Warning"
	SeverityError   Severity = "Error"
)

// LogCategory is a message log listing.
type LogCategory struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// LogCategories are the listings the editor keeps.
var LogCategories = []LogCategory{
	{Name: "BlueprintLog", Label: "Blueprint Log"},
	{Name: "PIE", Label: "Play In Editor"},
	{Name: "MapCheck", Label: "Map Check"},
	{Name: "LoadErrors", Label: "Load Errors"},
	{Name: "AssetCheck", Label: "Asset Check"},
	{Name: "AssetTools", Label: "Asset Tools"},
	{Name: "EditorErrors", Label: "Editor Errors"},
	{Name: "PackagingResults", Label: "Packaging Results"},
}

// maxLogLines bounds each category; older lines are discarded.
const maxLogLines = 1000

// LogToken is a fragment of a message line.
type LogToken struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// LogMessage is one message log line.
type LogMessage struct {
	Severity Severity   `json:"severity"`
	Text     string     `json:"text"`
	Tokens   []LogToken `json:"tokens"`
	Time     time.Time  `json:"time"`
}

// HasLogCategory reports whether category is known.
func (e *Editor) HasLogCategory(category string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.logs[category]
	return ok
}

// LogMessages returns up to limit of the newest lines of a category, oldest
// first, plus the total line count.
func (e *Editor) LogMessages(category string, limit int) ([]LogMessage, int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	lines, ok := e.logs[category]
	if !ok {
		return nil, 0, &NotFoundError{Kind: "message log category", Name: category}
	}
	start := 0
	if limit > 0 && len(lines) > limit {
		start = len(lines) - limit
	}
	return append([]LogMessage(nil), lines[start:]...), len(lines), nil
}

// AppendLog adds a line to a category and raises messagelog.<category>.
// Unknown categories are created.
func (e *Editor) AppendLog(category string, severity Severity, text string) {
	msg := LogMessage{
		Severity: severity,
		Text:     text,
		Tokens:   []LogToken{{Text: text, Type: "Text"}},
		Time:     time.Now().UTC(),
	}
	e.mu.Lock()
	lines := append(e.logs[category], msg)
	if len(lines) > maxLogLines {
		lines = lines[len(lines)-maxLogLines:]
	}
	e.logs[category] = lines
	e.mu.Unlock()

	e.publish(events.TopicMessageLogPrefix+category, map[string]any{
		"category": category,
		"severity": string(severity),
		"text":     text,
	})
}

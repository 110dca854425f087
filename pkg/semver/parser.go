// Package semver parses agent identities and checks them against a
// configured version constraint.
package semver

import (
	"fmt"
	"regexp"
	"strings"
)

const logPrefix = "semver:parser"

// AgentRef holds the parsed components of an agent identity string.
type AgentRef struct {
	// Agent name (e.g., "claude-agent")
	Name string
	// Version if specified (e.g., "1.4.0"); empty string means unversioned
	Version string
	// Raw input string
	Raw string
}

var (
	agentNameRegex    = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9._/-]*$`)
	majorOnlyRegex    = regexp.MustCompile(`^\d+$`)
	exactVersionRegex = regexp.MustCompile(`^v?\d+\.\d+\.\d+(-[\w.]+)?(\+[\w.]+)?$`)
)

// ParseAgentRef parses the client field of a hello envelope.
//
// Supported formats:
//   - my-agent              (no version)
//   - my-agent@1.4.0        (exact version)
//   - my-agent@v1.4.0-rc.1  (leading v and prerelease allowed)
func ParseAgentRef(input string) (*AgentRef, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return nil, fmt.Errorf("%s - empty agent identity", logPrefix)
	}

	name, version := raw, ""
	if at := strings.LastIndex(raw, "@"); at != -1 {
		name, version = raw[:at], raw[at+1:]
		if version == "" {
			return nil, fmt.Errorf("%s - missing version after @: %s", logPrefix, raw)
		}
		if !IsExactVersion(version) {
			return nil, fmt.Errorf("%s - invalid agent version %q", logPrefix, version)
		}
		version = strings.TrimPrefix(version, "v")
	}

	if !ValidateAgentName(name) {
		return nil, fmt.Errorf("%s - invalid agent name %q", logPrefix, name)
	}

	return &AgentRef{Name: name, Version: version, Raw: raw}, nil
}

// String rebuilds the canonical name@version form.
func (r *AgentRef) String() string {
	if r.Version == "" {
		return r.Name
	}
	return r.Name + "@" + r.Version
}

// IsMajorOnly checks if a range is a major-only specifier (e.g., "3").
func IsMajorOnly(rangeStr string) bool {
	return majorOnlyRegex.MatchString(rangeStr)
}

// IsExactVersion checks if a range is an exact version (e.g., "3.2.1").
func IsExactVersion(rangeStr string) bool {
	return exactVersionRegex.MatchString(rangeStr)
}

// ExtractMajorFromRange extracts the major version if the range is major-only.
// Returns -1 if not a major-only range.
func ExtractMajorFromRange(rangeStr string) int {
	if !IsMajorOnly(rangeStr) {
		return -1
	}
	var major int
	fmt.Sscanf(rangeStr, "%d", &major)
	return major
}

// ValidateAgentName validates an agent name (letters, digits, dots, slashes, hyphens, underscores).
func ValidateAgentName(name string) bool {
	return agentNameRegex.MatchString(name)
}

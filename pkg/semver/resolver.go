package semver

import (
	"fmt"
	"strings"

	masterminds "github.com/Masterminds/semver/v3"
)

const resolverLogPrefix = "semver:resolver"

// Constraint restricts which agent versions may connect. The zero value
// admits every agent.
type Constraint struct {
	raw        string
	constraint *masterminds.Constraints
	major      int
}

// ParseConstraint compiles a range such as "^1.2.0", ">=1.0.0 <3.0.0" or
// a bare major "2". An empty string admits every agent.
func ParseConstraint(rangeStr string) (*Constraint, error) {
	rangeStr = strings.TrimSpace(rangeStr)
	c := &Constraint{raw: rangeStr, major: -1}
	if rangeStr == "" {
		return c, nil
	}
	if IsMajorOnly(rangeStr) {
		c.major = ExtractMajorFromRange(rangeStr)
		return c, nil
	}
	parsed, err := masterminds.NewConstraint(rangeStr)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid version constraint %q: %w", resolverLogPrefix, rangeStr, err)
	}
	c.constraint = parsed
	return c, nil
}

// String returns the constraint as configured.
func (c *Constraint) String() string {
	return c.raw
}

// Empty reports whether the constraint admits every agent.
func (c *Constraint) Empty() bool {
	return c == nil || c.raw == ""
}

// Check validates an agent against the constraint. Unversioned agents
// only pass an empty constraint.
func (c *Constraint) Check(ref *AgentRef) error {
	if c.Empty() {
		return nil
	}
	if ref == nil || ref.Version == "" {
		return fmt.Errorf("%s - agent version required by constraint %s", resolverLogPrefix, c.raw)
	}
	if !SatisfiesRange(ref.Version, c.raw) {
		return fmt.Errorf("%s - agent %s does not satisfy %s", resolverLogPrefix, ref, c.raw)
	}
	return nil
}

// SatisfiesRange checks if a version string satisfies a range.
func SatisfiesRange(version, rangeStr string) bool {
	if IsMajorOnly(rangeStr) {
		sv, err := masterminds.NewVersion(version)
		if err != nil {
			return false
		}
		return int(sv.Major()) == ExtractMajorFromRange(rangeStr)
	}

	constraint, err := masterminds.NewConstraint(rangeStr)
	if err != nil {
		return false
	}

	sv, err := masterminds.NewVersion(version)
	if err != nil {
		return false
	}

	return constraint.Check(sv)
}

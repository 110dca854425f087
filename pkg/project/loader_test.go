package project

import (
	"os"
	"path/filepath"
	"testing"
)

const testPrefix = "project:loader_test"

func writeManifest(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("%s - write %s: %v", testPrefix, p, err)
	}
	return p
}

func TestDefaultManifest(t *testing.T) {
	m := DefaultManifest()
	if m.ProjectName == "" || m.EngineVersion == "" {
		t.Fatalf("%s - default manifest incomplete: %+v", testPrefix, m)
	}
	if len(m.Assets) == 0 {
		t.Error(testPrefix + " - expected seeded assets")
	}
	names := m.EnabledPluginNames()
	for _, n := range names {
		if n == "ModelingToolsEditorMode" {
			t.Errorf("%s - disabled plugin listed as enabled", testPrefix)
		}
	}
	if len(names) != 2 {
		t.Errorf("%s - enabled plugins = %v, want 2", testPrefix, names)
	}
}

func TestLoadManifest_ExplicitPathWins(t *testing.T) {
	dir := t.TempDir()
	envPath := writeManifest(t, dir, "env.json", `{"projectName":"FromEnv"}`)
	explicit := writeManifest(t, dir, "explicit.json", `{"projectName":"Explicit","engineVersion":"5.5.1"}`)
	t.Setenv(EnvProjectFile, envPath)

	m, err := LoadManifest(explicit)
	if err != nil {
		t.Fatalf("%s - LoadManifest failed: %v", testPrefix, err)
	}
	if m.ProjectName != "Explicit" || m.EngineVersion != "5.5.1" {
		t.Errorf("%s - got %s %s, want Explicit 5.5.1", testPrefix, m.ProjectName, m.EngineVersion)
	}
	if len(m.Assets) != len(DefaultManifest().Assets) {
		t.Errorf("%s - default assets should survive the merge", testPrefix)
	}
}

func TestLoadManifest_EnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := writeManifest(t, dir, "env.json", `{"projectName":"FromEnv"}`)
	t.Setenv(EnvProjectFile, envPath)

	m, err := LoadManifest(filepath.Join(dir, "missing.json"))
	if err != nil {
		t.Fatalf("%s - LoadManifest failed: %v", testPrefix, err)
	}
	if m.ProjectName != "FromEnv" {
		t.Errorf("%s - ProjectName = %s, want FromEnv", testPrefix, m.ProjectName)
	}
}

func TestLoadManifest_SkipsInvalid(t *testing.T) {
	dir := t.TempDir()
	bad := writeManifest(t, dir, "bad.json", `{not json`)
	nameless := writeManifest(t, dir, "nameless.json", `{"engineVersion":"1.0"}`)
	t.Setenv(EnvProjectFile, "")

	m, err := LoadManifest(bad, nameless)
	if err != nil {
		t.Fatalf("%s - LoadManifest failed: %v", testPrefix, err)
	}
	if m.ProjectName != DefaultManifest().ProjectName {
		t.Errorf("%s - expected default manifest, got %s", testPrefix, m.ProjectName)
	}
}

func TestMerge(t *testing.T) {
	base := DefaultManifest()
	override := &Manifest{
		ProjectName: "Override",
		Plugins: []Plugin{
			{Name: "ModelingToolsEditorMode", Enabled: true},
			{Name: "Niagara", Enabled: true},
		},
		Assets: []Asset{
			{Path: "/Game/Meshes/SM_Rock", Class: "StaticMesh", Triangles: 10},
			{Path: "/Game/Maps/Main", Class: "World"},
		},
	}
	merged := Merge(base, override)

	if merged.ProjectName != "Override" {
		t.Errorf("%s - ProjectName = %s", testPrefix, merged.ProjectName)
	}
	if merged.EngineVersion != base.EngineVersion {
		t.Errorf("%s - empty override must keep base EngineVersion", testPrefix)
	}
	if p := merged.Plugin("ModelingToolsEditorMode"); p == nil || !p.Enabled {
		t.Errorf("%s - plugin override not applied: %+v", testPrefix, p)
	}
	if merged.Plugin("Niagara") == nil {
		t.Errorf("%s - new plugin not appended", testPrefix)
	}
	if len(merged.Assets) != len(base.Assets)+1 {
		t.Errorf("%s - assets = %d, want %d", testPrefix, len(merged.Assets), len(base.Assets)+1)
	}
	if merged.Assets[0].Triangles != 10 {
		t.Errorf("%s - asset override not applied", testPrefix)
	}
	if p := base.Plugin("ModelingToolsEditorMode"); p.Enabled {
		t.Errorf("%s - Merge mutated the base manifest", testPrefix)
	}
}

func TestManifestInfo(t *testing.T) {
	info := DefaultManifest().Info()
	for _, key := range []string{"projectName", "engineVersion", "projectPlugins", "enabledPluginNames", "targetPlatforms"} {
		if _, ok := info[key]; !ok {
			t.Errorf("%s - Info missing %s", testPrefix, key)
		}
	}
	if got := len(info["enabledPluginNames"].([]any)); got != 2 {
		t.Errorf("%s - enabledPluginNames len = %d, want 2", testPrefix, got)
	}
}

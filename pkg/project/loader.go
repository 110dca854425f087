package project

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const logPrefix = "project:loader"

// EnvProjectFile names the environment variable holding a manifest path.
const EnvProjectFile = "AGENTLINK_PROJECT_FILE"

// LoadManifest loads the project manifest from file paths or environment.
// It tries paths in order: first any paths passed in, then AGENTLINK_PROJECT_FILE,
// then defaults. Unreadable or unparsable files are skipped; when none
// load, the built-in default manifest is returned.
func LoadManifest(paths ...string) (*Manifest, error) {
	all := make([]string, 0, len(paths)+3)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv(EnvProjectFile); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/project.json", "project.json")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		var m Manifest
		if err := json.Unmarshal(data, &m); err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse project file %s: %v", logPrefix, p, err))
			continue
		}
		if m.ProjectName == "" {
			slog.Warn(fmt.Sprintf("%s - Project file %s has no projectName, skipping", logPrefix, p))
			continue
		}

		slog.Info(fmt.Sprintf("%s - Loaded project manifest from %s", logPrefix, p))
		return Merge(DefaultManifest(), &m), nil
	}

	slog.Info(fmt.Sprintf("%s - Using default project manifest", logPrefix))
	return DefaultManifest(), nil
}

// DefaultManifest returns the fallback manifest of an empty sample project.
func DefaultManifest() *Manifest {
	root := filepath.Join(os.TempDir(), "AgentLinkSample")
	return &Manifest{
		ProjectName:      "AgentLinkSample",
		ProjectPath:      root,
		ProjectFile:      filepath.Join(root, "AgentLinkSample.uproject"),
		ContentDir:       filepath.Join(root, "Content"),
		ConfigDir:        filepath.Join(root, "Config"),
		SavedDir:         filepath.Join(root, "Saved"),
		PluginsDir:       filepath.Join(root, "Plugins"),
		ProjectVersion:   "1.0.0",
		EngineVersion:    "5.4.0",
		DefaultMap:       "/Game/Maps/Main",
		EditorStartupMap: "/Game/Maps/Main",
		TargetPlatforms:  []string{"Windows", "Linux"},
		Modules:          []string{"AgentLinkSample"},
		Plugins: []Plugin{
			{Name: "UnrealAgentLink", FriendlyName: "Agent Link", Enabled: true},
			{Name: "PythonScriptPlugin", FriendlyName: "Python Editor Script Plugin", Enabled: true, RequiresRestart: true},
			{Name: "ModelingToolsEditorMode", FriendlyName: "Modeling Tools Editor Mode", Enabled: false, RequiresRestart: true},
		},
		Assets: []Asset{
			{Path: "/Game/Meshes/SM_Rock", Class: "StaticMesh", Triangles: 184000, DiskSize: 9_400_000, Nanite: false},
			{Path: "/Game/Meshes/SM_Crate", Class: "StaticMesh", Triangles: 1200, DiskSize: 210_000, Nanite: false},
			{Path: "/Game/Meshes/SM_Cliff", Class: "StaticMesh", Triangles: 2_300_000, DiskSize: 48_000_000, Nanite: true},
			{Path: "/Game/Textures/T_Rock_D", Class: "Texture2D", DiskSize: 4_200_000},
			{Path: "/Game/Materials/M_Base", Class: "Material", DiskSize: 64_000},
		},
	}
}

// Merge overlays the non-empty fields of override onto a copy of base.
// Plugins merge by name; assets merge by path.
func Merge(base, override *Manifest) *Manifest {
	merged := *base
	setIf := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	setIf(&merged.ProjectName, override.ProjectName)
	setIf(&merged.ProjectPath, override.ProjectPath)
	setIf(&merged.ProjectFile, override.ProjectFile)
	setIf(&merged.ContentDir, override.ContentDir)
	setIf(&merged.ConfigDir, override.ConfigDir)
	setIf(&merged.SavedDir, override.SavedDir)
	setIf(&merged.PluginsDir, override.PluginsDir)
	setIf(&merged.ProjectVersion, override.ProjectVersion)
	setIf(&merged.EngineVersion, override.EngineVersion)
	setIf(&merged.DefaultMap, override.DefaultMap)
	setIf(&merged.EditorStartupMap, override.EditorStartupMap)
	setIf(&merged.CompanyName, override.CompanyName)
	setIf(&merged.ProjectID, override.ProjectID)
	if len(override.TargetPlatforms) > 0 {
		merged.TargetPlatforms = append([]string(nil), override.TargetPlatforms...)
	}
	if len(override.Modules) > 0 {
		merged.Modules = append([]string(nil), override.Modules...)
	}

	merged.Plugins = append([]Plugin(nil), base.Plugins...)
	for _, p := range override.Plugins {
		if existing := merged.Plugin(p.Name); existing != nil {
			*existing = p
			continue
		}
		merged.Plugins = append(merged.Plugins, p)
	}

	merged.Assets = append([]Asset(nil), base.Assets...)
	index := make(map[string]int, len(merged.Assets))
	for i, a := range merged.Assets {
		index[a.Path] = i
	}
	for _, a := range override.Assets {
		if i, ok := index[a.Path]; ok {
			merged.Assets[i] = a
			continue
		}
		index[a.Path] = len(merged.Assets)
		merged.Assets = append(merged.Assets, a)
	}
	return &merged
}

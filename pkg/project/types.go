// Package project loads the description of the project the host has open.
package project

// Plugin is one plugin known to the project.
type Plugin struct {
	Name         string `json:"name"`
	FriendlyName string `json:"friendlyName,omitempty"`
	Enabled      bool   `json:"enabled"`
	// RequiresRestart reports whether toggling the plugin only takes
	// effect after the editor restarts.
	RequiresRestart bool `json:"requiresRestart,omitempty"`
}

// Manifest is the root project configuration.
type Manifest struct {
	ProjectName      string   `json:"projectName"`
	ProjectPath      string   `json:"projectPath"`
	ProjectFile      string   `json:"projectFile,omitempty"`
	ContentDir       string   `json:"contentDir,omitempty"`
	ConfigDir        string   `json:"configDir,omitempty"`
	SavedDir         string   `json:"savedDir,omitempty"`
	PluginsDir       string   `json:"pluginsDir,omitempty"`
	ProjectVersion   string   `json:"projectVersion,omitempty"`
	EngineVersion    string   `json:"engineVersion"`
	DefaultMap       string   `json:"defaultMap,omitempty"`
	EditorStartupMap string   `json:"editorStartupMap,omitempty"`
	CompanyName      string   `json:"companyName,omitempty"`
	ProjectID        string   `json:"projectId,omitempty"`
	TargetPlatforms  []string `json:"targetPlatforms,omitempty"`
	Modules          []string `json:"modules,omitempty"`
	Plugins          []Plugin `json:"plugins,omitempty"`
	// Assets seeds the content browser of the simulated host.
	Assets []Asset `json:"assets,omitempty"`
}

// Asset is a seeded content entry.
type Asset struct {
	Path      string `json:"path"`
	Class     string `json:"class"`
	Triangles int    `json:"triangles,omitempty"`
	DiskSize  int64  `json:"diskSize,omitempty"`
	Nanite    bool   `json:"nanite,omitempty"`
}

// EnabledPluginNames lists the names of the enabled plugins in manifest order.
func (m *Manifest) EnabledPluginNames() []string {
	names := make([]string, 0, len(m.Plugins))
	for _, p := range m.Plugins {
		if p.Enabled {
			names = append(names, p.Name)
		}
	}
	return names
}

// Clone returns a deep copy of m.
func (m *Manifest) Clone() *Manifest {
	if m == nil {
		return nil
	}
	c := *m
	c.TargetPlatforms = append([]string(nil), m.TargetPlatforms...)
	c.Modules = append([]string(nil), m.Modules...)
	c.Plugins = append([]Plugin(nil), m.Plugins...)
	c.Assets = append([]Asset(nil), m.Assets...)
	return &c
}

// Plugin returns the named plugin, or nil.
func (m *Manifest) Plugin(name string) *Plugin {
	for i := range m.Plugins {
		if m.Plugins[i].Name == name {
			return &m.Plugins[i]
		}
	}
	return nil
}

// Info renders the manifest as the payload of project.info replies and
// events.
func (m *Manifest) Info() map[string]any {
	plugins := make([]any, 0, len(m.Plugins))
	for _, p := range m.Plugins {
		plugins = append(plugins, map[string]any{
			"name":         p.Name,
			"friendlyName": p.FriendlyName,
			"enabled":      p.Enabled,
		})
	}
	return map[string]any{
		"projectName":        m.ProjectName,
		"projectPath":        m.ProjectPath,
		"projectFile":        m.ProjectFile,
		"contentDir":         m.ContentDir,
		"configDir":          m.ConfigDir,
		"savedDir":           m.SavedDir,
		"pluginsDir":         m.PluginsDir,
		"projectVersion":     m.ProjectVersion,
		"engineVersion":      m.EngineVersion,
		"defaultMap":         m.DefaultMap,
		"editorStartupMap":   m.EditorStartupMap,
		"companyName":        m.CompanyName,
		"projectId":          m.ProjectID,
		"targetPlatforms":    stringsToAny(m.TargetPlatforms),
		"modules":            stringsToAny(m.Modules),
		"projectPlugins":     plugins,
		"enabledPluginNames": stringsToAny(m.EnabledPluginNames()),
	}
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

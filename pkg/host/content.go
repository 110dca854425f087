package host

import (
	"path"
	"sort"
	"strings"

	"github.com/morezero/agent-link/pkg/events"
)

// Asset is an entry of the content browser.
type Asset struct {
	Path          string `json:"path"`
	Class         string `json:"class"`
	Triangles     int    `json:"triangles"`
	DiskSize      int64  `json:"disk_size"`
	Nanite        bool   `json:"nanite"`
	ShadowCasting bool   `json:"shadow_casting"`
	// MissingCollision is only meaningful for static meshes.
	MissingCollision bool `json:"missing_collision"`
}

// Name is the last path segment.
func (a *Asset) Name() string {
	return path.Base(a.Path)
}

// AssetQuery selects assets for level.query_assets.
type AssetQuery struct {
	// Path restricts to assets under this folder. Empty means /Game.
	Path        string
	ClassFilter string
	// SortBy is one of "", "name", "triangles", "disk_size".
	SortBy string
	Limit  int
}

// AssetReport is one row of a query result.
type AssetReport struct {
	Asset
	Name       string `json:"name"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Nanite is recommended above this many triangles.
const naniteThreshold = 100_000

// QueryAssets lists assets matching q, sorted and truncated.
func (e *Editor) QueryAssets(q AssetQuery) []AssetReport {
	root := normalizeFolder(q.Path)
	e.mu.RLock()
	out := make([]AssetReport, 0, len(e.assets))
	for _, a := range e.assets {
		if !underFolder(a.Path, root) {
			continue
		}
		if q.ClassFilter != "" && !strings.EqualFold(a.Class, q.ClassFilter) {
			continue
		}
		out = append(out, AssetReport{Asset: *a, Name: a.Name(), Suggestion: suggest(a)})
	}
	e.mu.RUnlock()

	switch q.SortBy {
	case "triangles":
		sort.Slice(out, func(i, j int) bool {
			if out[i].Triangles != out[j].Triangles {
				return out[i].Triangles > out[j].Triangles
			}
			return out[i].Path < out[j].Path
		})
	case "disk_size":
		sort.Slice(out, func(i, j int) bool {
			if out[i].DiskSize != out[j].DiskSize {
				return out[i].DiskSize > out[j].DiskSize
			}
			return out[i].Path < out[j].Path
		})
	default:
		sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func suggest(a *Asset) string {
	switch {
	case a.Class == "StaticMesh" && a.Triangles > naniteThreshold && !a.Nanite:
		return "Enable Nanite"
	case a.MissingCollision:
		return "Add simple collision"
	default:
		return ""
	}
}

// SearchHit is one content.search result.
type SearchHit struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Class string `json:"class"`
}

// Search finds assets whose name contains query, case-insensitively.
func (e *Editor) Search(query, classFilter string, limit int) []SearchHit {
	query = strings.ToLower(query)
	e.mu.RLock()
	hits := make([]SearchHit, 0)
	for _, a := range e.assets {
		if !strings.Contains(strings.ToLower(a.Name()), query) {
			continue
		}
		if classFilter != "" && !strings.EqualFold(a.Class, classFilter) {
			continue
		}
		hits = append(hits, SearchHit{Name: a.Name(), Path: a.Path, Class: a.Class})
	}
	e.mu.RUnlock()
	sort.Slice(hits, func(i, j int) bool { return hits[i].Path < hits[j].Path })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// Asset returns a copy of the asset at p.
func (e *Editor) Asset(p string) (Asset, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.assets[p]
	if !ok {
		return Asset{}, false
	}
	return *a, true
}

// Import creates one asset per source file under destination. Files whose
// target exists are skipped unless overwrite is set.
func (e *Editor) Import(files []string, destination string, overwrite bool) ([]string, error) {
	dest := normalizeFolder(destination)
	imported := make([]string, 0, len(files))
	e.mu.Lock()
	for _, f := range files {
		base := path.Base(strings.ReplaceAll(f, "\\", "/"))
		ext := strings.ToLower(path.Ext(base))
		class, ok := importClasses[ext]
		if !ok {
			continue
		}
		target := path.Join(dest, strings.TrimSuffix(base, path.Ext(base)))
		if _, exists := e.assets[target]; exists && !overwrite {
			continue
		}
		a := &Asset{Path: target, Class: class, DiskSize: 1024, ShadowCasting: true}
		if class == "StaticMesh" {
			a.Triangles = 5000
			a.MissingCollision = true
		}
		e.assets[target] = a
		imported = append(imported, target)
	}
	e.mu.Unlock()
	for _, p := range imported {
		e.publish(events.TopicAssetChanged, map[string]any{"action": "imported", "path": p})
	}
	return imported, nil
}

var importClasses = map[string]string{
	".fbx": "StaticMesh",
	".obj": "StaticMesh",
	".png": "Texture2D",
	".jpg": "Texture2D",
	".tga": "Texture2D",
	".wav": "SoundWave",
}

// Move renames an asset.
func (e *Editor) Move(src, dst string) error {
	if dst == "" {
		return invalid("empty destination")
	}
	e.mu.Lock()
	a, ok := e.assets[src]
	if !ok {
		e.mu.Unlock()
		return &NotFoundError{Kind: "asset", Name: src}
	}
	if _, taken := e.assets[dst]; taken {
		e.mu.Unlock()
		return &ConflictError{Kind: "asset", Name: dst}
	}
	delete(e.assets, src)
	a.Path = dst
	e.assets[dst] = a
	e.mu.Unlock()
	e.publish(events.TopicAssetChanged, map[string]any{"action": "moved", "path": dst, "from": src})
	return nil
}

// Delete removes assets, reporting which paths were deleted and which
// were not found.
func (e *Editor) Delete(paths []string) (deleted, failed []string) {
	deleted = make([]string, 0, len(paths))
	failed = make([]string, 0)
	e.mu.Lock()
	for _, p := range paths {
		if _, ok := e.assets[p]; !ok {
			failed = append(failed, p)
			continue
		}
		delete(e.assets, p)
		deleted = append(deleted, p)
	}
	e.mu.Unlock()
	for _, p := range deleted {
		e.publish(events.TopicAssetChanged, map[string]any{"action": "deleted", "path": p})
	}
	return deleted, failed
}

// addAsset registers an asset created by another editor subsystem.
// Callers hold e.mu.
func (e *Editor) addAsset(p, class string) {
	e.assets[p] = &Asset{Path: p, Class: class, DiskSize: 2048}
}

func normalizeFolder(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/Game"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func underFolder(p, folder string) bool {
	return p == folder || strings.HasPrefix(p, strings.TrimSuffix(folder, "/")+"/")
}

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/morezero/agent-link/pkg/registry"
	"github.com/morezero/agent-link/pkg/session"
)

const httpLogPrefix = "server:http"

// Health is the body of GET /health.
type Health struct {
	Status    string          `json:"status"`
	Checks    map[string]bool `json:"checks"`
	Version   string          `json:"version"`
	Uptime    string          `json:"uptime"`
	Sessions  int             `json:"sessions"`
	Commands  int             `json:"commands"`
	QueueLen  int             `json:"queueLength"`
	Timestamp string          `json:"timestamp"`
}

// Handler returns the admin router. /ws upgrades to an agent connection.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/", s.handleHome())
	r.Get("/health", s.handleHealth())
	r.Get("/ready", s.handleReady())
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.Get("/commands", s.handleCommands())
	r.Get("/commands/{name}", s.handleCommand())
	r.Get("/sessions", s.handleSessions())
	if s.repo != nil {
		r.Get("/audit/recent", s.handleAuditRecent())
	}
	r.Handle("/ws", s.tm)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug(fmt.Sprintf("%s - response encode: %v", httpLogPrefix, err))
	}
}

// health checks the agent listener and, when configured, NATS and Postgres.
func (s *Server) health(ctx context.Context) Health {
	checks := map[string]bool{"transport": s.ready.Load()}
	if s.nc != nil {
		checks["comms"] = s.nc.IsConnected()
	}
	if s.pool != nil {
		checks["database"] = s.pool.Ping(ctx) == nil
	}
	status := "healthy"
	for _, ok := range checks {
		if !ok {
			status = "unhealthy"
		}
	}
	uptime := time.Duration(0)
	if !s.startedAt.IsZero() {
		uptime = time.Since(s.startedAt).Truncate(time.Second)
	}
	return Health{
		Status:    status,
		Checks:    checks,
		Version:   Version,
		Uptime:    uptime.String(),
		Sessions:  s.sessions.Count(),
		Commands:  s.reg.Len(),
		QueueLen:  s.queue.Len(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()
		h := s.health(ctx)
		status := http.StatusOK
		if h.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, h)
	}
}

func (s *Server) handleReady() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func (s *Server) handleCommands() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cmds := s.reg.Describe()
		writeJSON(w, http.StatusOK, map[string]any{"count": len(cmds), "commands": cmds})
	}
}

func (s *Server) handleCommand() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, err := s.reg.Resolve(chi.URLParam(r, "name"))
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, entry.Descriptor)
	}
}

func (s *Server) handleSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snaps := s.sessions.Snapshots()
		writeJSON(w, http.StatusOK, map[string]any{"count": len(snaps), "sessions": snaps})
	}
}

func (s *Server) handleAuditRecent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()
		outcomes, err := s.repo.RecentOutcomes(ctx, r.URL.Query().Get("command"), limit)
		if err != nil {
			slog.Error(fmt.Sprintf("%s - recent outcomes: %v", httpLogPrefix, err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "audit query failed"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"count": len(outcomes), "outcomes": outcomes})
	}
}

// homeData is the data passed to the home page template.
type homeData struct {
	Health   Health
	Project  string
	Commands []registry.Descriptor
	Sessions []session.Snapshot
}

var homeTemplate = template.Must(template.New("home").Parse(homePageTemplate))

func (s *Server) handleHome() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()
		data := homeData{
			Health:   s.health(ctx),
			Project:  s.editor.Manifest().ProjectName,
			Commands: s.reg.Describe(),
			Sessions: s.sessions.Snapshots(),
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := homeTemplate.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template: %v", httpLogPrefix, err))
		}
	}
}

// homePageTemplate is the HTML for the admin home page.
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>agent-link</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 1000px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .stat { font-weight: bold; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 1rem; }
    section { margin-bottom: 2rem; }
  </style>
</head>
<body>
  <h1>agent-link</h1>
  <p class="meta">Project {{.Project}}, version {{.Health.Version}}, up {{.Health.Uptime}}.</p>

  <section>
    <h2>Health</h2>
    <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span></p>
    {{range $name, $ok := .Health.Checks}}
    <p>{{$name}}: {{if $ok}}<span class="stat">OK</span>{{else}}<span class="status-unhealthy">Failed</span>{{end}}</p>
    {{end}}
    <p>Mutation queue length: <span class="stat">{{.Health.QueueLen}}</span></p>
  </section>

  <section>
    <h2>Sessions ({{len .Sessions}})</h2>
    {{if not .Sessions}}
    <p>No agents connected.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Connection</th><th>Client</th><th>Transport</th><th>Format</th><th>Pending</th><th>Topics</th></tr>
      </thead>
      <tbody>
        {{range .Sessions}}
        <tr>
          <td>{{.ConnID}}</td>
          <td>{{.Client}} {{.ClientVersion}}</td>
          <td>{{.Transport}} {{.Remote}}</td>
          <td>{{.Format}}</td>
          <td>{{.Pending}}</td>
          <td>{{range .Topics}}{{.}} {{end}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>

  <section>
    <h2>Commands ({{len .Commands}})</h2>
    <table>
      <thead>
        <tr><th>Command</th><th>Context</th><th>Idempotent</th><th>Description</th></tr>
      </thead>
      <tbody>
        {{range .Commands}}
        <tr>
          <td><a href="/commands/{{.Name}}">{{.Name}}</a></td>
          <td>{{.Context}}</td>
          <td>{{.Idempotent}}</td>
          <td>{{.Description}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
  </section>
</body>
</html>
`

package extensions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/morezero/agent-link/pkg/host"
	"github.com/morezero/agent-link/pkg/registry"
)

type screenshotInput struct {
	ShowUI     bool   `json:"show_ui"`
	Resolution []int  `json:"resolution"`
	Filepath   string `json:"filepath"`
}

type consoleInput struct {
	Command string `json:"command"`
}

func resolutionOf(res []int) (int, int) {
	if len(res) != 2 {
		return 0, 0
	}
	return res[0], res[1]
}

func frameOrDefault(width, height int) (int, int) {
	if width == 0 && height == 0 {
		return host.DefaultFrameWidth, host.DefaultFrameHeight
	}
	return width, height
}

func registerEditor(reg *registry.Registry, d Deps) error {
	screenshot := registry.Typed(func(_ context.Context, _ *registry.Request, in screenshotInput) (*registry.Result, error) {
		width, height := resolutionOf(in.Resolution)
		png, err := d.Editor.Screenshot(width, height, in.ShowUI)
		if err != nil {
			return nil, hostError(err)
		}
		width, height = frameOrDefault(width, height)

		saved := false
		target := in.Filepath
		if target != "" {
			if err := os.WriteFile(target, png, 0o644); err != nil {
				return nil, registry.Failure("write_failed", "save screenshot: %v", err)
			}
			saved = true
		} else {
			name := fmt.Sprintf("ScreenShot_%s.png", time.Now().UTC().Format("20060102_150405.000"))
			target = filepath.Join(d.Editor.Manifest().SavedDir, "Screenshots", name)
		}
		return &registry.Result{
			Payload: map[string]any{
				"path":      target,
				"filename":  filepath.Base(target),
				"width":     width,
				"height":    height,
				"saved":     saved,
				"show_ui":   in.ShowUI,
				"mime_type": "image/png",
			},
			Attachment: png,
		}, nil
	})
	screenshotSchema := object(nil, map[string]any{
		"show_ui":    boolProp,
		"resolution": resolution,
		"filepath":   stringProp,
	})

	return registerCommands(reg, "editor",
		command{
			desc: registry.Descriptor{Name: "editor.screenshot", Context: registry.ContextMain,
				Description: "Capture the viewport as PNG, returned as the attachment", InputSchema: screenshotSchema},
			handler: screenshot,
		},
		command{
			desc: registry.Descriptor{Name: "take_screenshot", Context: registry.ContextMain,
				Description: "Alias of editor.screenshot", InputSchema: screenshotSchema},
			handler: screenshot,
		},
		command{
			desc: registry.Descriptor{Name: "cmd.exec_console", Context: registry.ContextMain,
				Description: "Run an editor console command",
				InputSchema: object([]string{"command"}, map[string]any{"command": nonEmpty})},
			handler: registry.Typed(func(_ context.Context, _ *registry.Request, in consoleInput) (*registry.Result, error) {
				ok, err := d.Editor.ExecConsole(in.Command)
				if err != nil {
					return nil, hostError(err)
				}
				result := "OK"
				if !ok {
					result = "Failed"
				}
				return registry.Value(map[string]any{"command": in.Command, "result": result}), nil
			}),
		},
	)
}

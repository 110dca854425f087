package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/morezero/agent-link/pkg/client"
	"github.com/morezero/agent-link/pkg/codec"
)

type callOptions struct {
	addr    string
	ws      string
	format  string
	out     string
	timeout time.Duration
	notify  bool
}

func defaultAddr() string {
	if v := os.Getenv("AGENTLINK_LISTEN_ADDR"); v != "" {
		return v
	}
	return "127.0.0.1:9870"
}

func newCallCmd() *cobra.Command {
	opts := callOptions{}
	cmd := &cobra.Command{
		Use:   "call <command> [json-payload]",
		Short: "Send one command to a running bridge and print the response",
		Long: `Send one command to a running bridge and print the response payload as JSON.
The payload is a JSON object, given inline or as "-" to read stdin.
A binary attachment in the response is written to --out.`,
		Example: `  agentlink call system.ping
  agentlink call level.query_assets '{"sort_by":"triangles","limit":5}'
  agentlink call editor.screenshot '{"resolution":[640,360]}' --out shot.png`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := ""
			if len(args) == 2 {
				raw = args[1]
			}
			if raw == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read payload: %w", err)
				}
				raw = string(data)
			}
			payload, err := parsePayload(raw)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			return runCall(ctx, cmd.OutOrStdout(), opts, args[0], payload)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", defaultAddr(), "bridge TCP address")
	cmd.Flags().StringVar(&opts.ws, "ws", "", "bridge WebSocket URL (e.g. ws://127.0.0.1:8080/ws); overrides --addr")
	cmd.Flags().StringVar(&opts.format, "format", "json", "header encoding: json or cbor")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "file to write the response attachment to")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall deadline")
	cmd.Flags().BoolVar(&opts.notify, "notify", false, "send as a notification and do not wait for a response")
	return cmd
}

// parsePayload decodes an optional JSON object.
func parsePayload(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}
	return payload, nil
}

func runCall(ctx context.Context, w io.Writer, opts callOptions, command string, payload map[string]any) error {
	format, err := codec.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	copts := client.Options{Client: "agentlink-cli@1.0.0", Format: format}

	var c *client.Client
	if opts.ws != "" {
		c, err = client.DialWebSocket(ctx, opts.ws, nil, copts)
	} else {
		c, err = client.Dial(ctx, opts.addr, copts)
	}
	if err != nil {
		return err
	}
	defer c.Close()

	if opts.notify {
		return c.Notify(command, payload)
	}

	resp, err := c.Call(ctx, command, payload, nil)
	if err != nil {
		var re *client.RemoteError
		if errors.As(err, &re) {
			body, _ := json.MarshalIndent(map[string]any{
				"code": re.Code, "message": re.Message, "details": re.Details, "retryable": re.Retryable,
			}, "", "  ")
			fmt.Fprintln(w, string(body))
		}
		return err
	}

	body, err := json.MarshalIndent(resp.Payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	fmt.Fprintln(w, string(body))

	if len(resp.Attachment) > 0 {
		if opts.out == "" {
			fmt.Fprintf(w, "(%d-byte attachment not saved; use --out)\n", len(resp.Attachment))
			return nil
		}
		if err := os.WriteFile(opts.out, resp.Attachment, 0o644); err != nil {
			return fmt.Errorf("write attachment: %w", err)
		}
		fmt.Fprintf(w, "attachment written to %s (%d bytes)\n", opts.out, len(resp.Attachment))
	}
	return nil
}

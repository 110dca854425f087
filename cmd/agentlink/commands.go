package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/morezero/agent-link/internal/server"
	"github.com/morezero/agent-link/pkg/extensions"
	"github.com/morezero/agent-link/pkg/host"
	"github.com/morezero/agent-link/pkg/project"
	"github.com/morezero/agent-link/pkg/registry"
)

func newCommandsCmd() *cobra.Command {
	asJSON := false
	cmd := &cobra.Command{
		Use:   "commands",
		Short: "List the command surface the bridge registers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			descs, err := builtinDescriptors()
			if err != nil {
				return err
			}
			return printCommands(cmd.OutOrStdout(), descs, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print descriptors as JSON, including input schemas")
	return cmd
}

// builtinDescriptors registers the shipped extensions against a sample
// editor without serving anything.
func builtinDescriptors() ([]registry.Descriptor, error) {
	reg := registry.New()
	ed := host.New(project.DefaultManifest(), nil)
	if err := extensions.RegisterAll(reg, extensions.Deps{Editor: ed, Version: server.Version}); err != nil {
		return nil, err
	}
	reg.Seal()
	return reg.Describe(), nil
}

func printCommands(w io.Writer, descs []registry.Descriptor, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(descs)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COMMAND\tCONTEXT\tIDEMPOTENT\tDESCRIPTION")
	for _, d := range descs {
		idem := ""
		if d.Idempotent {
			idem = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Name, d.Context, idem, strings.TrimSpace(d.Description))
	}
	return tw.Flush()
}

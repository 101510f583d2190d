package cmd

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/agentic-research/rigkit/api"
	"github.com/agentic-research/rigkit/internal/export"
	"github.com/agentic-research/rigkit/internal/graph"
	"github.com/agentic-research/rigkit/internal/ingest"
)

func newInspectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.mvr|file.gdtf>",
		Short: "Summarize an archive and list its diagnostics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := ctx.open(cmd.Context(), cmd, args[0])
			if err != nil {
				return err
			}
			defer res.Close()

			summary := summarize(res)
			if done, err := ctx.emit(cmd, summary); done {
				return err
			}

			out := cmd.OutOrStdout()
			keys := make([]string, 0, len(summary))
			for k := range summary {
				if k == "diagnostics" || k == "modes" || k == "kinds" {
					continue
				}
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "%-18s %v\n", k+":", summary[k])
			}
			if kinds, ok := summary["kinds"].(map[string]any); ok {
				rows := make([][]string, 0, len(kinds))
				for k, v := range kinds {
					rows = append(rows, []string{k, fmt.Sprint(v)})
				}
				sort.Slice(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })
				printTable(cmd, []string{"Kind", "Nodes"}, rows, []columnAlignment{alignLeft, alignRight})
			}
			if res.Type != nil {
				printTable(cmd, []string{"Mode", "Channels", "Footprint"}, modeRows(res.Type), []columnAlignment{alignLeft, alignRight, alignRight})
			}
			printDiagnostics(cmd, res.Diagnostics())
			return nil
		},
	}
}

func summarize(res *ingest.Result) map[string]any {
	diags := res.Diagnostics()
	m := map[string]any{
		"path":        res.Path,
		"format":      res.Format.String(),
		"diagnostics": export.Diagnostics(diags),
		"errors":      int64(len(diags) - countWarnings(diags)),
		"warnings":    int64(countWarnings(diags)),
	}
	if res.Scene != nil {
		summarizeScene(m, res.Scene)
	}
	if res.Type != nil {
		summarizeType(m, res.Type)
	}
	return m
}

func summarizeScene(m map[string]any, g *graph.SceneGraph) {
	if doc := g.Source(); doc != nil {
		m["version"] = doc.Version.String()
		m["provider"] = doc.Provider
	}
	kinds := map[string]any{}
	for _, n := range g.Nodes() {
		c, _ := kinds[n.Kind.String()].(int64)
		kinds[n.Kind.String()] = c + 1
	}
	unresolved := 0
	fixtures := g.Fixtures()
	for _, n := range fixtures {
		if !n.Fixture.Resolved() {
			unresolved++
		}
	}
	m["nodes"] = int64(g.Len())
	m["kinds"] = kinds
	m["fixtures"] = int64(len(fixtures))
	m["unresolved"] = int64(unresolved)
	m["fixture_types"] = int64(len(g.FixtureTypes()))
	m["universes"] = int64(len(g.Patch().Universes()))
}

func summarizeType(m map[string]any, ft *api.FixtureType) {
	m["name"] = ft.Name
	m["manufacturer"] = ft.Manufacturer
	m["fixture_type_id"] = ft.ID.String()
	m["data_version"] = ft.DataVersion.String()
	m["models"] = int64(len(ft.Models))
	m["wheels"] = int64(len(ft.Wheels))
	m["attributes"] = int64(len(ft.Attributes))
	modes := make([]any, 0, len(ft.Modes))
	for _, mode := range ft.Modes {
		modes = append(modes, map[string]any{
			"name":      mode.Name,
			"channels":  int64(len(mode.Channels)),
			"footprint": int64(mode.Footprint(1)),
		})
	}
	m["modes"] = modes
}

func modeRows(ft *api.FixtureType) [][]string {
	rows := make([][]string, 0, len(ft.Modes))
	for _, mode := range ft.Modes {
		rows = append(rows, []string{mode.Name, strconv.Itoa(len(mode.Channels)), strconv.Itoa(mode.Footprint(1))})
	}
	return rows
}

func countWarnings(diags api.Diagnostics) int {
	n := 0
	for _, d := range diags {
		if d.Severity == api.SeverityWarning {
			n++
		}
	}
	return n
}

func printDiagnostics(cmd *cobra.Command, diags api.Diagnostics) {
	rows := make([][]string, 0, len(diags))
	for _, d := range diags {
		loc := d.Path
		if d.Line > 0 {
			loc = fmt.Sprintf("%s:%d", d.Path, d.Line)
		}
		rows = append(rows, []string{d.Severity.String(), api.KindName(d.Kind), loc, d.Message})
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Diagnostics:")
	printTable(cmd, []string{"Severity", "Kind", "Location", "Message"}, rows, nil)
}

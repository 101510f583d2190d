package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/agentic-research/rigkit/internal/archive"
	"github.com/agentic-research/rigkit/internal/graph"
	"github.com/agentic-research/rigkit/internal/ingest"
)

// openScene opens path and fails unless it is an MVR scene.
func (c *commandContext) openScene(ctx context.Context, cmd *cobra.Command, path string) (*ingest.Result, error) {
	res, err := c.open(ctx, cmd, path)
	if err != nil {
		return nil, err
	}
	if res.Format != archive.FormatMVR {
		_ = res.Close()
		return nil, fmt.Errorf("%s is a %s archive, not an MVR scene", path, res.Format)
	}
	return res, nil
}

func newFixturesCommand(ctx *commandContext) *cobra.Command {
	var universe int
	var unresolved bool

	cmd := &cobra.Command{
		Use:   "fixtures <file.mvr>",
		Short: "List fixtures with their type, mode and DMX patch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := ctx.openScene(cmd.Context(), cmd, args[0])
			if err != nil {
				return err
			}
			defer res.Close()

			rows := fixtureRows(res.Scene, universe, unresolved)
			if done, err := ctx.emit(cmd, rowsAsMaps(fixtureHeaders, rows)); done {
				return err
			}
			printTable(cmd, fixtureHeaders, rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft})
			return nil
		},
	}
	cmd.Flags().IntVar(&universe, "universe", 0, "Only fixtures patched in this universe")
	cmd.Flags().BoolVar(&unresolved, "unresolved", false, "Only fixtures whose type could not be resolved")
	return cmd
}

var fixtureHeaders = []string{"Name", "FixtureID", "Type", "Mode", "Address", "Footprint", "Status"}

func fixtureRows(g *graph.SceneGraph, universe int, onlyUnresolved bool) [][]string {
	footprints := map[uuid.UUID][]int{}
	for _, e := range g.Patch().Entries() {
		footprints[e.Node] = append(footprints[e.Node], e.Footprint)
	}

	var rows [][]string
	for _, n := range g.Fixtures() {
		f := n.Fixture
		if onlyUnresolved && f.Resolved() {
			continue
		}
		addrs := make([]string, 0, len(f.Addresses))
		inUniverse := universe == 0
		for _, a := range f.Addresses {
			addrs = append(addrs, a.String())
			if a.Universe == universe {
				inUniverse = true
			}
		}
		if !inUniverse {
			continue
		}
		fp := make([]string, 0, len(footprints[n.ID]))
		for _, v := range footprints[n.ID] {
			fp = append(fp, strconv.Itoa(v))
		}
		typeName, status := "", "ok"
		if f.Type != nil {
			typeName = f.Type.Name
		}
		if !f.Resolved() {
			status = "unresolved"
		}
		if len(n.Fixture.Addresses) == 0 {
			status = strings.TrimPrefix(status+", unpatched", "ok, ")
		}
		rows = append(rows, []string{n.Name, f.FixtureID, typeName, f.ModeResolved,
			strings.Join(addrs, " "), strings.Join(fp, " "), status})
	}
	return rows
}

// rowsAsMaps turns table rows into records keyed by snake-cased headers.
func rowsAsMaps(headers []string, rows [][]string) []any {
	keys := make([]string, len(headers))
	for i, h := range headers {
		keys[i] = snake(h)
	}
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		m := make(map[string]any, len(keys))
		for i, k := range keys {
			if i < len(row) {
				m[k] = row[i]
			}
		}
		out = append(out, m)
	}
	return out
}

func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(s[i-1] >= 'A' && s[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

package cmd

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/list"
	"github.com/spf13/cobra"

	"github.com/agentic-research/rigkit/api"
	"github.com/agentic-research/rigkit/internal/export"
	"github.com/agentic-research/rigkit/internal/graph"
)

func newTreeCommand(ctx *commandContext) *cobra.Command {
	var depth int

	cmd := &cobra.Command{
		Use:   "tree <file.mvr>",
		Short: "Print the scene hierarchy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := ctx.openScene(cmd.Context(), cmd, args[0])
			if err != nil {
				return err
			}
			defer res.Close()

			if done, err := ctx.emit(cmd, export.Tree(res.Scene)["layers"]); done {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTree(res.Scene, depth))
			return nil
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 0, "Maximum depth to print (0 for all)")
	return cmd
}

func renderTree(g *graph.SceneGraph, depth int) string {
	lw := list.NewWriter()
	lw.SetStyle(list.StyleConnectedRounded)

	var add func(id uuid.UUID, level int)
	add = func(id uuid.UUID, level int) {
		n, err := g.GetNode(id)
		if err != nil {
			return
		}
		lw.AppendItem(nodeLabel(n))
		if depth > 0 && level+1 >= depth {
			return
		}
		if len(n.Children) == 0 {
			return
		}
		lw.Indent()
		for _, c := range n.Children {
			add(c, level+1)
		}
		lw.UnIndent()
	}
	for _, id := range g.Roots() {
		add(id, 0)
	}
	return lw.Render()
}

func nodeLabel(n *api.Node) string {
	label := fmt.Sprintf("%s %q", n.Kind, n.Name)
	f := n.Fixture
	if f == nil {
		return label
	}
	parts := []string{}
	if f.Type != nil {
		parts = append(parts, f.Type.Name)
	}
	if f.ModeResolved != "" {
		parts = append(parts, f.ModeResolved)
	}
	for _, a := range f.Addresses {
		parts = append(parts, a.String())
	}
	if !f.Resolved() {
		parts = append(parts, "unresolved")
	}
	return label + " [" + strings.Join(parts, " ") + "]"
}

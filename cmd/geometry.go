package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/agentic-research/rigkit/api"
	"github.com/agentic-research/rigkit/internal/gdtf"
	"github.com/agentic-research/rigkit/internal/ingest"
)

func newGeometryCommand(ctx *commandContext) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "geometry <file.mvr|file.gdtf>",
		Short: "Decode every geometry payload and report mesh statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := ctx.open(cmd.Context(), cmd, args[0])
			if err != nil {
				return err
			}
			defer res.Close()

			rows, err := geometryRows(res, mode)
			if err != nil {
				return err
			}
			if done, err := ctx.emit(cmd, rowsAsMaps(geometryHeaders, rows)); done {
				return err
			}
			printTable(cmd, geometryHeaders, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft})
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "DMX mode whose geometry tree to load (GDTF only)")
	return cmd
}

var geometryHeaders = []string{"Owner", "Kind", "Payload", "Meshes", "Triangles", "Status"}

func geometryRows(res *ingest.Result, modeName string) ([][]string, error) {
	var rows [][]string
	row := func(owner string, ref api.GeometryRef) {
		status := "ok"
		meshes, tris := 0, 0
		p, err := res.LoadGeometry(ref)
		if p != nil {
			meshes, tris = len(p.Meshes), p.Triangles()
		}
		if err != nil {
			status = err.Error()
		}
		name := ref.File
		if name == "" {
			name = "primitive:" + ref.Primitive
		}
		rows = append(rows, []string{owner, ref.Kind.String(), name, strconv.Itoa(meshes), strconv.Itoa(tris), status})
	}

	if res.Scene != nil {
		for _, n := range res.Scene.Nodes() {
			for _, ref := range res.Scene.Geometry(n.ID) {
				row(n.Name, ref)
			}
		}
		return rows, nil
	}

	ft := res.Type
	mode, fallback := ft.ModeOrFirst(modeName)
	if fallback && modeName != "" {
		return nil, fmt.Errorf("mode %q not defined by %q", modeName, ft.Name)
	}
	for _, ref := range gdtf.ModelRefs(ft, mode) {
		row(ft.Name, ref)
	}
	return rows, nil
}

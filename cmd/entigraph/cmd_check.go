package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"entigraph/internal/metadata"
)

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [schema.yaml]",
		Short: "Validate an entity schema and print each evaluation order",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfg.Schema.Path
			if len(args) == 1 {
				path = args[0]
			}
			domain, err := loadDomain(path)
			if err != nil {
				return fmt.Errorf("check: %w", err)
			}

			out := cmd.OutOrStdout()
			for _, et := range domain.List() {
				g := et.Graph()
				fmt.Fprintf(out, "%s (%d attributes)\n", et.Name(), len(et.Definitions()))
				for i, a := range g.Order() {
					def, _ := et.Definition(a)
					line := fmt.Sprintf("  %2d. %-24s %s", i+1, a.Name, def.Kind())
					if sources := g.Sources(a); len(sources) > 0 {
						line += " <- " + joinNames(sources)
					}
					fmt.Fprintln(out, line)
				}
			}
			log.Infow("schema ok", "path", path, "entities", len(domain.List()))
			return nil
		},
	}
}

func joinNames(attrs []metadata.Attribute) string {
	names := make([]string, len(attrs))
	for i, a := range attrs {
		names[i] = a.Name
	}
	return strings.Join(names, ", ")
}

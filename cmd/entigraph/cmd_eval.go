package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"entigraph/internal/core/apperror"
	"entigraph/internal/edit"
	"entigraph/internal/entity"
	"entigraph/internal/infrastructure/http/v1/dto"
)

func evalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "eval <entity> [attribute=value ...]",
		Short: "Write values to a blank entity and print the propagated changes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			domain, err := loadDomain(cfg.Schema.Path)
			if err != nil {
				return fmt.Errorf("eval: %w", err)
			}
			et, ok := domain.Entity(args[0])
			if !ok {
				return fmt.Errorf("eval: %w", apperror.NewNotFound("entity type", args[0]))
			}

			layout := cfg.Format.DateLayout
			out := cmd.OutOrStdout()
			s := edit.New(et, edit.WithLogger(log))
			sub := s.OnAnyValueChanged(func(vc entity.ValueChange) {
				fmt.Fprintf(out, "changed %s: %v -> %v\n", vc.Attribute.Name,
					render(vc.Previous, layout), render(vc.Value, layout))
			})
			defer sub.Cancel()

			for _, arg := range args[1:] {
				name, raw, found := strings.Cut(arg, "=")
				if !found {
					return fmt.Errorf("eval: %q is not attribute=value", arg)
				}
				a, ok := et.Attribute(name)
				if !ok {
					return fmt.Errorf("eval: %w", apperror.NewUnknownAttribute(et.Name(), name))
				}
				def, _ := et.Definition(a)
				var v any
				if raw != "" {
					if v, err = dto.DecodeText(def, raw, layout); err != nil {
						return fmt.Errorf("eval: %w", err)
					}
				}
				if err := s.Set(a, v); err != nil {
					return fmt.Errorf("eval: %w", err)
				}
			}

			fmt.Fprintf(out, "status: %s\n", s.Status())
			for _, a := range et.Graph().Order() {
				fmt.Fprintf(out, "  %-24s %v\n", a.Name, render(s.Get(a), layout))
			}
			if err := s.ValidateAll(); err != nil {
				fmt.Fprintf(out, "invalid: %v\n", err)
			}
			return nil
		},
	}
}

func render(v any, layout string) any {
	if v == nil {
		return "null"
	}
	return dto.RenderValue(v, layout)
}

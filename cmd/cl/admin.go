package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"careline/internal/app"
	"careline/internal/config"
	"careline/internal/domain"
	"careline/internal/engine"
)

func policyCmd() *cobra.Command {
	p := &cobra.Command{
		Use:   "policy",
		Short: "Workload policy table",
		Long:  "The policy table holds the point ceiling, the amber threshold and the points each severity costs. Only directors may change it.",
	}
	p.AddCommand(policyShowCmd())
	p.AddCommand(policySetCmd())
	return p
}

func policyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rec, err := e.Policy(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rec)
				}
				printPolicy(rec)
				return nil
			})
		},
	}
}

func policySetCmd() *cobra.Command {
	var file, points string
	var maxPoints int
	var amber float64
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Replace the policy (director only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				current, err := e.Policy(ctx)
				if err != nil {
					return err
				}
				next := current.Policy
				if file != "" {
					data, err := readInput(file)
					if err != nil {
						return err
					}
					if err := yaml.Unmarshal(data, &next); err != nil {
						return fmt.Errorf("policy %s: %w", file, err)
					}
				}
				if cmd.Flags().Changed("max-points") {
					next.MaxPoints = maxPoints
				}
				if cmd.Flags().Changed("amber") {
					next.AmberThreshold = amber
				}
				if points != "" {
					parsed, err := parseSeverityPoints(points)
					if err != nil {
						return err
					}
					next.SeverityPoints = parsed
				}
				rec, err := e.UpdatePolicy(ctx, next, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rec)
				}
				printPolicy(rec)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML policy file")
	cmd.Flags().IntVar(&maxPoints, "max-points", 0, "point ceiling")
	cmd.Flags().Float64Var(&amber, "amber", 0, "amber threshold as a fraction of the ceiling")
	cmd.Flags().StringVar(&points, "points", "", "severity costs, e.g. 1=1,2=2,3=3,4=4")
	return cmd
}

// parseSeverityPoints reads "1=1,2=2,3=3,4=4".
func parseSeverityPoints(s string) (map[domain.Severity]int, error) {
	out := map[domain.Severity]int{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("invalid severity points %q", part)
		}
		sev, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return nil, fmt.Errorf("invalid severity %q", k)
		}
		pts, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("invalid points %q", v)
		}
		out[domain.Severity(sev)] = pts
	}
	return out, nil
}

func printPolicy(rec domain.PolicyRecord) {
	fmt.Printf("max points %d, amber at %.0f%%\n", rec.Policy.MaxPoints, rec.Policy.AmberThreshold*100)
	if rec.UpdatedBy != "" {
		fmt.Printf("updated %s by %s\n", rec.UpdatedAt, rec.UpdatedBy)
	}
	sevs := make([]int, 0, len(rec.Policy.SeverityPoints))
	for s := range rec.Policy.SeverityPoints {
		sevs = append(sevs, int(s))
	}
	sort.Ints(sevs)
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Severity", "Points"})
	for _, s := range sevs {
		tw.AppendRow(table.Row{domain.Severity(s), rec.Policy.SeverityPoints[domain.Severity(s)]})
	}
	tw.Render()
}

func configCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "config",
		Short: "Workspace configuration",
	}
	c.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default careline.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			} else if !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(config.DefaultYAML), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(viper.GetString("workspace"), viper.GetString("config"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and compile its rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(viper.GetString("workspace"), viper.GetString("config"))
			if err != nil {
				return err
			}
			set, err := cfg.CompileRules()
			if err != nil {
				return err
			}
			fmt.Printf("config ok, %d rules\n", set.Len())
			return nil
		},
	})
	return c
}

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"careline/internal/domain"
	"careline/internal/engine"
	"careline/internal/repo"
)

func actorCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "actor",
		Short: "Roster of caseworkers, supervisors and directors",
		Long:  "The first actor must be a DIRECTOR and needs no --actor-id. After that, supervisors and directors add actors up to their own tier.",
	}
	a.AddCommand(actorAddCmd())
	a.AddCommand(actorListCmd())
	return a
}

func actorAddCmd() *cobra.Command {
	var rec domain.ActorRecord
	var role string
	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Add an actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec.ID = args[0]
			rec.Role = domain.ActorRole(strings.ToUpper(role))
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				out, err := e.RegisterActor(ctx, rec, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	cmd.Flags().StringVar(&rec.Name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", "", "CASEWORKER, SUPERVISOR or DIRECTOR")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func actorListCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List actors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListActors(ctx, domain.ActorRole(strings.ToUpper(role)))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Role", "Created"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.Name, a.Role, a.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role filter")
	return cmd
}

func caseworkerCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "caseworker",
		Short: "Caseworker loads and assignments",
	}
	c.AddCommand(caseworkerAddCmd())
	c.AddCommand(caseworkerListCmd())
	c.AddCommand(caseworkerAssignmentsCmd())
	return c
}

func caseworkerAddCmd() *cobra.Command {
	var name string
	var maxPoints int
	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Roster a caseworker with an empty load",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ceiling *int
			if cmd.Flags().Changed("max-points") {
				ceiling = &maxPoints
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cw, err := e.RegisterCaseworker(ctx, args[0], name, ceiling, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(cw)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().IntVar(&maxPoints, "max-points", 0, "personal ceiling (default: policy)")
	return cmd
}

func caseworkerListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List caseworkers with current load",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListCaseworkers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				pol, err := e.Policy(ctx)
				if err != nil {
					return err
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Points", "Ceiling"})
				for _, cw := range items {
					ceiling := strconv.Itoa(pol.Policy.MaxPoints)
					if cw.MaxPoints != nil {
						ceiling = strconv.Itoa(*cw.MaxPoints) + " (personal)"
					}
					tw.AppendRow(table.Row{cw.ID, cw.Name, cw.CurrentPoints, ceiling})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func caseworkerAssignmentsCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "assignments <id>",
		Short: "List a caseworker's assignments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListAssignments(ctx, args[0], status)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Case", "Severity", "Points", "Status", "Override"})
				for _, a := range items {
					override := ""
					if a.OverrideID != nil {
						override = *a.OverrideID
					}
					tw.AppendRow(table.Row{a.CaseID, int(a.Severity), a.Points, a.Status, override})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "held or active")
	return cmd
}

func apiKeyCmd() *cobra.Command {
	k := &cobra.Command{
		Use:   "apikey",
		Short: "API keys for the HTTP server",
	}
	var owner, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Issue an API key; the secret is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			if owner == "" {
				owner = actorID()
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				secret, key, err := e.CreateAPIKey(ctx, owner, name, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "actor_id": key.ActorID, "key": secret})
				}
				fmt.Printf("api key %s for %s:\n%s\n", key.ID, key.ActorID, secret)
				return nil
			})
		},
	}
	create.Flags().StringVar(&owner, "for", "", "actor that owns the key (default: --actor-id)")
	create.Flags().StringVar(&name, "name", "", "label")
	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.Repo.ListAPIKeys(ctx, owner)
				if err != nil {
					return err
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, key := range keys {
					tw.AppendRow(table.Row{key.ID, key.ActorID, key.Name, key.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&owner, "for", "", "actor filter")
	revoke := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.RevokeAPIKey(ctx, args[0], actorID()); err != nil {
					return err
				}
				fmt.Println("revoked", args[0])
				return nil
			})
		},
	}
	k.AddCommand(create, list, revoke)
	return k
}

func logCmd() *cobra.Command {
	l := &cobra.Command{
		Use:   "log",
		Short: "Audit event log",
	}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.ListEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Case", "Entity", "Actor"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.CaseID, evt.EntityKind + ":" + evt.EntityID, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.CaseID, "case-id", "", "case filter")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

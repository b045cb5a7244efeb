package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"careline/internal/domain"
	"careline/internal/engine"
	"careline/internal/engine/escalation"
	"careline/internal/repo"
)

func overrideCmd() *cobra.Command {
	o := &cobra.Command{
		Use:   "override",
		Short: "Override requests",
		Long:  "An override asks the next tier to accept a risk. Pending requests are approved, denied or sent back for more information; the requester resubmits. Pass --version to guard against concurrent decisions.",
	}
	o.AddCommand(overrideOpenCmd())
	o.AddCommand(overrideShowCmd())
	o.AddCommand(overrideListCmd())
	o.AddCommand(overrideDecisionCmd("approve", "Approve a pending request", func(e engine.Engine) decideFunc { return e.ApproveOverride }))
	o.AddCommand(overrideDecisionCmd("deny", "Deny a pending request", func(e engine.Engine) decideFunc { return e.DenyOverride }))
	o.AddCommand(overrideDecisionCmd("more-info", "Ask the requester for more information", func(e engine.Engine) decideFunc { return e.RequestMoreInfo }))
	o.AddCommand(overrideDecisionCmd("resubmit", "Resubmit with an updated justification", func(e engine.Engine) decideFunc { return e.ResubmitOverride }))
	return o
}

func overrideOpenCmd() *cobra.Command {
	var p escalation.OpenParams
	var origin, category string
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open an override request",
		RunE: func(cmd *cobra.Command, args []string) error {
			p.Origin = domain.OverrideOrigin(origin)
			p.Category = domain.OverrideCategory(category)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := e.OpenOverride(ctx, p, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(req)
				}
				fmt.Printf("override %s opened: %s %s (version %d)\n", req.ID, req.Category, req.Status, req.Version)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&p.CaseID, "case-id", "", "case id")
	cmd.Flags().StringVar(&p.ClientName, "client-name", "", "client name")
	cmd.Flags().StringVar(&origin, "origin", string(domain.OriginCaseworkerToSupervisor), "CASEWORKER_TO_SUPERVISOR or SUPERVISOR_TO_DIRECTOR")
	cmd.Flags().StringVar(&category, "category", "", "override category")
	cmd.Flags().StringVar(&p.ReasonCategory, "reason-category", "", "free-form reason category")
	cmd.Flags().StringVar(&p.Justification, "justification", "", "why the risk should be accepted")
	cmd.Flags().StringVar(&p.CaseworkerID, "caseworker", "", "caseworker on the case")
	_ = cmd.MarkFlagRequired("case-id")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("justification")
	return cmd
}

func overrideShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an override request with its decision log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := e.GetOverride(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(req)
				}
				fmt.Printf("%s  %s  %s  case %s  version %d\n", req.ID, req.Category, req.Status, req.CaseID, req.Version)
				fmt.Println(req.Justification)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"At", "Role", "Actor", "Action", "Reason"})
				for _, entry := range req.DecisionLog {
					tw.AppendRow(table.Row{entry.At, entry.ActorRole, entry.ActorID, entry.Action, entry.Reason})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func overrideListCmd() *cobra.Command {
	var f repo.OverrideFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List override requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListOverrides(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Case", "Category", "Origin", "Status", "Version", "Updated"})
				for _, o := range items {
					tw.AppendRow(table.Row{o.ID, o.CaseID, o.Category, o.Origin, o.Status, o.Version, o.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.CaseID, "case-id", "", "case filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Origin, "origin", "", "origin filter")
	cmd.Flags().StringVar(&f.RequesterID, "requester", "", "requester filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max rows")
	return cmd
}

type decideFunc func(ctx context.Context, id string, expectedVersion int, actorID, reason string) (domain.OverrideRequest, error)

func overrideDecisionCmd(use, short string, pick func(engine.Engine) decideFunc) *cobra.Command {
	var version int
	var reason string
	cmd := &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := pick(e)(ctx, args[0], version, actorID(), reason)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(req)
				}
				fmt.Printf("override %s is %s (version %d)\n", req.ID, req.Status, req.Version)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&version, "version", 0, "expected version (0 skips the check)")
	cmd.Flags().StringVar(&reason, "reason", "", "reason, or the new justification on resubmit")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

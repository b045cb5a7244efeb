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
	"careline/internal/engine/release"
	"careline/internal/engine/triggers"
)

func evaluateCmd() *cobra.Command {
	var file, caseID string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a 4Ps intake document (JSON or YAML)",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(file)
			if err != nil {
				return err
			}
			in, err := triggers.ParseIntake(data)
			if err != nil {
				return err
			}
			if caseID != "" {
				in.CaseID = caseID
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if dryRun {
					res := e.Rules.Evaluate(in.Profile, in.Flags, in.Client)
					if viper.GetBool("json") {
						return printJSON(res)
					}
					printResult(res)
					return nil
				}
				ev, err := e.EvaluateCase(ctx, engine.EvaluateParams{
					CaseID:  in.CaseID,
					Profile: in.Profile,
					Flags:   in.Flags,
					Client:  in.Client,
					ActorID: actorID(),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ev)
				}
				fmt.Printf("case %s evaluated (%s)\n", ev.CaseID, ev.ID)
				printResult(ev.Result)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "intake document, - for stdin")
	cmd.Flags().StringVar(&caseID, "case-id", "", "case id (overrides the document)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "evaluate without storing")
	return cmd
}

func printResult(res domain.EvaluationResult) {
	fmt.Printf("severity %d (%s, %d points)  vitality %.1f  status %s\n",
		int(res.SuggestedSeverity), res.SuggestedSeverity, res.SeverityPoints, res.VitalityScore, res.Status)
	if len(res.Triggers) == 0 {
		return
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Dimension", "Reason", "Source"})
	for _, t := range res.Triggers {
		tw.AppendRow(table.Row{t.Dimension, t.Reason, t.Source})
	}
	tw.Render()
	at := table.NewWriter()
	at.SetOutputMirror(os.Stdout)
	at.AppendHeader(table.Row{"Required action", "Hard stop"})
	for _, a := range res.RequiredActions {
		at.AppendRow(table.Row{a.Label, a.HardStop})
	}
	at.Render()
}

func capacityCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "capacity",
		Short: "Caseworker capacity gate",
	}
	c.AddCommand(capacityCheckCmd())
	return c
}

func capacityCheckCmd() *cobra.Command {
	var p engine.CheckParams
	var severity int
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether a case fits a caseworker's load",
		Long:  "Green assigns, Amber assigns with supervisor review, Red holds the assignment behind a workload override. Without --commit nothing is assigned.",
		RunE: func(cmd *cobra.Command, args []string) error {
			p.Severity = domain.Severity(severity)
			p.ActorID = actorID()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.CheckAssignment(ctx, p)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				d := res.Decision
				fmt.Printf("%s: %d + %d = %d of %d points (%.1f%%)\n",
					d.Status, d.CurrentPoints, d.IncomingPoints, d.ProjectedPoints, d.MaxPoints, d.UtilizationPercent)
				fmt.Println(d.RequesterMessage)
				if res.Assignment != nil {
					fmt.Printf("assignment %s is %s\n", res.Assignment.CaseID, res.Assignment.Status)
				}
				if res.Override != nil {
					fmt.Printf("override %s opened (%s)\n", res.Override.ID, res.Override.Category)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&p.CaseworkerID, "caseworker", "", "caseworker id")
	cmd.Flags().StringVar(&p.CaseID, "case-id", "", "case id")
	cmd.Flags().StringVar(&p.ClientName, "client-name", "", "client name for the override record")
	cmd.Flags().IntVar(&severity, "severity", 0, "incoming severity 1-4 (default: latest evaluation)")
	cmd.Flags().BoolVar(&p.Commit, "commit", false, "place the case on the caseworker's load")
	cmd.Flags().StringVar(&p.Narrative, "narrative", "", "justification used when an override is opened")
	_ = cmd.MarkFlagRequired("caseworker")
	return cmd
}

func releaseCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "release",
		Short: "Report release gate",
	}
	c.AddCommand(releaseCheckCmd())
	return c
}

func releaseCheckCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "check <case-id>",
		Short: "Decide whether a case's reports may be released",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var tasks []domain.Task
			if file != "" {
				data, err := readInput(file)
				if err != nil {
					return err
				}
				in, err := triggers.ParseIntake(data)
				if err != nil {
					return err
				}
				tasks = in.Tasks
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.ReleaseCheck(ctx, args[0], tasks, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				printRelease(d)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "document with a tasks list")
	return cmd
}

func printRelease(d release.Decision) {
	verdict := "BLOCKED"
	if d.CanRelease {
		verdict = "OK"
	}
	fmt.Printf("release %s (risk %s)\n", verdict, d.RiskLevel)
	if len(d.Issues) == 0 {
		return
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Severity", "Code", "Message"})
	for _, i := range d.Issues {
		tw.AppendRow(table.Row{i.Severity, i.Code, i.Message})
	}
	tw.Render()
}

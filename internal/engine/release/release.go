// Package release decides whether external reports for a case may go out.
// Blocking issues must be resolved or carried by an approved
// LEGAL_LOCKDOWN_APPROVAL override; warnings only need review.
package release

import (
	"strings"
	"time"

	"careline/internal/domain"
	"careline/internal/engine/triggers"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskModerate RiskLevel = "MODERATE"
	RiskHigh     RiskLevel = "HIGH"
)

type IssueSeverity string

const (
	IssueInfo  IssueSeverity = "INFO"
	IssueWarn  IssueSeverity = "WARN"
	IssueBlock IssueSeverity = "BLOCK"
)

const (
	CodeOpenCriticalFlags   = "OPEN_CRITICAL_FLAGS"
	CodeOpenHighFlags       = "OPEN_HIGH_FLAGS"
	CodeUnresolvedVigilance = "UNRESOLVED_VIGILANCE"
	CodeLowVitality         = "LOW_VITALITY"
	CodeOpenTasks           = "OPEN_TASKS"
	CodeOverdueTasks        = "OVERDUE_TASKS"
	CodeMissingVeracity     = "MISSING_VERACITY_ATTESTATION"
	CodeMissingVerification = "MISSING_VERIFICATION_REVIEW"
	CodeMissingClientAck    = "MISSING_CLIENT_ACK"
)

// TaskOpen is the task status that counts as outstanding work.
const TaskOpen = "Open"

type Issue struct {
	Code     string        `json:"code"`
	Severity IssueSeverity `json:"severity" enum:"INFO,WARN,BLOCK"`
	Message  string        `json:"message"`
}

type Decision struct {
	CanRelease bool      `json:"can_release"`
	RiskLevel  RiskLevel `json:"risk_level" enum:"LOW,MODERATE,HIGH"`
	Issues     []Issue   `json:"issues"`
}

// Options toggles the attestation reminders, which are always WARN.
type Options struct {
	Reminders bool
}

// Evaluate checks flags, tasks and the evaluation result. Tasks with a due
// date before now's calendar day are overdue.
func Evaluate(result domain.EvaluationResult, flags []domain.Flag, tasks []domain.Task, now time.Time, opts Options) Decision {
	issues := []Issue{}
	add := func(code string, sev IssueSeverity, msg string) {
		issues = append(issues, Issue{Code: code, Severity: sev, Message: msg})
	}

	var critical, high int
	for _, f := range flags {
		if !f.Open() {
			continue
		}
		switch f.Severity {
		case domain.FlagCritical:
			critical++
		case domain.FlagHigh:
			high++
		}
	}

	if critical > 0 {
		add(CodeOpenCriticalFlags, IssueBlock,
			"There are open CRITICAL flags. Resolve or document an explicit exception before releasing external reports.")
	}
	if high > 0 {
		add(CodeOpenHighFlags, IssueBlock,
			"There are open HIGH severity flags. Resolve them, downgrade with rationale, or address them clearly before report release.")
	}
	if result.Has(domain.DimVigilance) && critical+high > 0 {
		add(CodeUnresolvedVigilance, IssueBlock,
			"Vigilance risk is HIGH. Confirm that safety and monitoring plans are current and documented before releasing reports.")
	}

	today := now.UTC().Format("2006-01-02")
	var open, overdue int
	for _, t := range tasks {
		if t.Status != TaskOpen {
			continue
		}
		open++
		if due := strings.TrimSpace(t.DueDate); due != "" && due[:min(len(due), 10)] < today {
			overdue++
		}
	}
	if overdue > 0 {
		add(CodeOverdueTasks, IssueBlock,
			"There are overdue clinical or safety tasks. Do not release reports until they are addressed or exception-documented.")
	}

	switch {
	case result.VitalityScore < triggers.RedBelow:
		add(CodeLowVitality, IssueBlock,
			"Vitality is in the Red zone (< 4.0). External reporting should reflect current instability or wait for reassessment.")
	case result.VitalityScore < triggers.GreenFrom:
		add(CodeLowVitality, IssueWarn,
			"Vitality is in the Amber zone (4.0-7.9). Make sure external reports reflect active issues and ongoing interventions.")
	}
	if open > 0 {
		add(CodeOpenTasks, IssueWarn,
			"There are open caseworker tasks. Describe them in the report or document them as ongoing work.")
	}

	if opts.Reminders {
		add(CodeMissingVeracity, IssueWarn,
			"Veracity (V4) attestation is not recorded. Confirm the clinical narrative is complete before external release.")
		add(CodeMissingVerification, IssueWarn,
			"Verification (V8) guideline and variance review is not recorded. Confirm variances and payer decisions are documented.")
		add(CodeMissingClientAck, IssueWarn,
			"Client acknowledgment and consent status is not linked to this report. Confirm the client has been informed before release.")
	}

	d := Decision{CanRelease: true, RiskLevel: RiskLow, Issues: issues}
	for _, i := range issues {
		switch i.Severity {
		case IssueBlock:
			d.CanRelease = false
			d.RiskLevel = RiskHigh
		case IssueWarn:
			if d.RiskLevel == RiskLow {
				d.RiskLevel = RiskModerate
			}
		}
	}
	return d
}

// Blocking returns only the BLOCK issues.
func (d Decision) Blocking() []Issue {
	var out []Issue
	for _, i := range d.Issues {
		if i.Severity == IssueBlock {
			out = append(out, i)
		}
	}
	return out
}

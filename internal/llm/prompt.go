package llm

import (
	"fmt"
	"strings"
)

// systemPrompt frames the assistant's role. operatorContext is the optional
// document loaded from S3 describing the account's workloads; empty omits it.
func systemPrompt(operatorContext string) string {
	var b strings.Builder
	b.WriteString(`You are a cloud cost analyst. You receive one detected cost anomaly with its surrounding data and explain, in 2-4 sentences, the most plausible causes and what to check first. Be concrete and calm; never invent account details you were not given.`)
	if operatorContext != "" {
		b.WriteString("\n\nAccount context provided by the operators:\n")
		b.WriteString(operatorContext)
	}
	return b.String()
}

// userPrompt renders the anomaly and its context into the analysis request.
func userPrompt(req AnalysisRequest) string {
	a := req.Anomaly
	var b strings.Builder
	fmt.Fprintf(&b, "Anomaly on %s:\n", a.Service)
	fmt.Fprintf(&b, "- current daily cost: $%.2f (baseline $%.2f)\n", a.CurrentCost, a.BaselineCost)
	fmt.Fprintf(&b, "- change: $%+.2f (%+.1f%%), %.1f standard deviations\n", a.Amount, a.PercentChange, a.StdDeviations)
	fmt.Fprintf(&b, "- severity: %s, triggered by: %s\n", a.Severity, a.Reason)
	if a.NewService {
		b.WriteString("- this service has no prior history in this account\n")
	}

	if snap := req.Snapshot; snap != nil {
		fmt.Fprintf(&b, "\nAccount total for %s: $%.2f\n", snap.Date, snap.TotalCost)
		if snap.BudgetStatus != nil {
			fmt.Fprintf(&b, "Monthly budget: $%.2f, spent $%.2f (%.0f%%)\n",
				snap.BudgetStatus.MonthlyBudget, snap.BudgetStatus.MonthlySpent, snap.BudgetStatus.MonthlyPercent)
		}
	}

	if len(req.RecentHistory) > 0 {
		b.WriteString("\nRecent daily costs for this service (oldest first): ")
		for i, c := range req.RecentHistory {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%.2f", c)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nExplain the likely cause and the first thing to check.")
	return b.String()
}

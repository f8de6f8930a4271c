package orchestrator

import (
	"fmt"
	"sort"

	"github.com/awsops/commandcenter/agent/architecture"
	"github.com/awsops/commandcenter/agent/cost"
	"github.com/awsops/commandcenter/agent/inventory"
)

// Recommendation is one prioritized action item merged from the agents.
type Recommendation struct {
	Source      string `json:"source"`
	Kind        string `json:"type"`
	Priority    string `json:"priority"`
	Description string `json:"description"`
	Impact      string `json:"impact,omitempty"`
}

var priorityRank = map[string]int{"high": 0, "medium": 1, "low": 2}

// mergeRecommendations folds the agent findings into one list sorted by
// priority. Cost opportunities above $100/month are high priority;
// operational and security findings keep the severity their agent
// assigned. Every recommendation carries one of three type identifiers:
// cost_optimization, operational_improvement, or security_improvement.
// The sort is stable so findings from the same agent keep their original
// relative order.
func mergeRecommendations(costReport *cost.Report, invReport *inventory.Report, assessment *architecture.Assessment) []Recommendation {
	var recs []Recommendation

	if costReport != nil {
		for _, opp := range costReport.Optimizations.Opportunities {
			priority := "medium"
			if opp.MonthlySavings > 100 {
				priority = "high"
			}
			recs = append(recs, Recommendation{
				Source:      "cost_intelligence",
				Kind:        "cost_optimization",
				Priority:    priority,
				Description: opp.Recommendation,
				Impact:      fmt.Sprintf("$%.2f/month potential savings", opp.MonthlySavings),
			})
		}
	}

	if invReport != nil {
		for _, insight := range invReport.Insights {
			recs = append(recs, Recommendation{
				Source:      "operations_intelligence",
				Kind:        "operational_improvement",
				Priority:    insight.Severity,
				Description: insight.Message,
				Impact:      "Improved reliability and performance",
			})
		}
	}

	if assessment != nil {
		for _, issue := range assessment.SecurityIssues {
			recs = append(recs, Recommendation{
				Source:      "infrastructure_intelligence",
				Kind:        "security_improvement",
				Priority:    issue.Severity,
				Description: fmt.Sprintf("%s on %s", issue.Issue, issue.GroupID),
				Impact:      "Improved security posture",
			})
		}
	}

	sort.SliceStable(recs, func(i, j int) bool {
		ri, ok := priorityRank[recs[i].Priority]
		if !ok {
			ri = len(priorityRank)
		}
		rj, ok := priorityRank[recs[j].Priority]
		if !ok {
			rj = len(priorityRank)
		}
		return ri < rj
	})
	return recs
}

package orchestrator

import (
	"github.com/awsops/commandcenter/agent/architecture"
	"github.com/awsops/commandcenter/agent/cost"
	"github.com/awsops/commandcenter/agent/inventory"
)

// HealthScore grades the estate per category on a 0-100 scale. Each
// category starts at a neutral 70 and is deducted for findings; missing
// agent data leaves its category at the baseline.
type HealthScore struct {
	Overall           int `json:"overall"`
	CostEfficiency    int `json:"cost_efficiency"`
	OperationalHealth int `json:"operational_health"`
	Security          int `json:"security"`
	Reliability       int `json:"reliability"`
}

const baselineScore = 70

func computeHealth(costReport *cost.Report, invReport *inventory.Report, assessment *architecture.Assessment, gen *architecture.Generated) HealthScore {
	h := HealthScore{
		CostEfficiency:    baselineScore,
		OperationalHealth: baselineScore,
		Security:          baselineScore,
		Reliability:       baselineScore,
	}

	if costReport != nil && costReport.Optimizations.TotalPotentialMonthlySavings > 200 {
		h.CostEfficiency -= 15
	}

	if invReport != nil {
		for _, insight := range invReport.Insights {
			if insight.Severity == "high" {
				h.OperationalHealth -= 10
				break
			}
		}
	}

	if assessment != nil && len(assessment.SecurityIssues) > 1 {
		h.Security -= 20
	}

	// A generated design grades its own reliability; use that score when the
	// infrastructure agent produced one.
	if gen != nil {
		h.Reliability = gen.ReliabilityScore
	}

	h.Overall = (h.CostEfficiency + h.OperationalHealth + h.Security + h.Reliability) / 4
	return h
}

// Package orchestrator coordinates the analysis agents. It runs them in a
// fixed order, tolerates partial failure, and merges their findings into
// prioritized recommendations and an account health score.
package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"goa.design/clue/log"

	"github.com/awsops/commandcenter/agent"
	"github.com/awsops/commandcenter/agent/architecture"
	"github.com/awsops/commandcenter/agent/cost"
	"github.com/awsops/commandcenter/agent/inventory"
	"github.com/awsops/commandcenter/cloud"
)

// CoordinatorName identifies the coordinator in result envelopes.
const CoordinatorName = "coordinator"

// ReasonInternalError marks a failure inside the orchestration layer
// itself, as opposed to a provider or agent failure.
const ReasonInternalError = "orchestration_internal_error"

// Coordinator fans requests out to registered agents.
type Coordinator struct {
	registry *agent.Registry
}

// New builds a coordinator over the given registry.
func New(registry *agent.Registry) *Coordinator {
	return &Coordinator{registry: registry}
}

type (
	// FullReport is the full-analysis payload: per-agent envelopes plus
	// the merged view across them.
	FullReport struct {
		RunID           string                   `json:"run_id"`
		Timestamp       time.Time                `json:"timestamp"`
		Agents          map[string]*agent.Result `json:"agent_results"`
		Errors          []string                 `json:"errors,omitempty"`
		Recommendations []Recommendation         `json:"recommendations"`
		Health          HealthScore              `json:"health_score"`
	}

	// SmartDesign is the budget-aware architecture payload. When the
	// first design exceeds the budget the scale is lowered one step and
	// the design regenerated; a single downgrade is attempted.
	SmartDesign struct {
		Design        *architecture.Generated `json:"design"`
		OriginalScale string                  `json:"original_scale"`
		FinalScale    string                  `json:"final_scale"`
		Downgraded    bool                    `json:"downgraded"`
		BudgetLimit   float64                 `json:"budget_limit,omitempty"`
		WithinBudget  bool                    `json:"within_budget"`
		// CurrentSpend carries the cost agent's view of the estate,
		// populated only when the initial design exceeded the budget.
		// It may be a failure envelope; the design does not depend on it.
		CurrentSpend *agent.Result `json:"current_spend,omitempty"`
	}
)

// fullAnalysisPlan is the fixed agent order for a full analysis. Cost runs
// first so billing data is warm in the cache for any follow-up calls.
var fullAnalysisPlan = []struct {
	agent  string
	action string
}{
	{agent.CostIntelligence, "analyze"},
	{agent.OperationsIntelligence, ""},
	{agent.InfrastructureIntelligence, "assess_existing"},
}

// FullAnalysis runs every agent and merges their findings. It succeeds when
// at least one agent succeeds; failed agents are reported in the payload's
// Errors list rather than aborting the run.
func (c *Coordinator) FullAnalysis(ctx context.Context) *agent.Result {
	report := &FullReport{
		RunID:     uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Agents:    make(map[string]*agent.Result, len(fullAnalysisPlan)),
	}
	ctx = log.With(ctx, log.KV{K: "run", V: report.RunID})

	succeeded := 0
	lastReason := cloud.ReasonUnavailable
	for _, step := range fullAnalysisPlan {
		res := c.invoke(ctx, step.agent, agent.Request{Action: step.action})
		report.Agents[step.agent] = res
		if res.Success {
			succeeded++
			continue
		}
		lastReason = res.Error
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %s: %s", step.agent, res.Error, res.Message))
		log.Warn(ctx, log.KV{K: "agent", V: step.agent}, log.KV{K: "error", V: res.Error},
			log.KV{K: "msg", V: "agent failed during full analysis"})
	}

	if res := c.merge(ctx, report); res != nil {
		return res
	}
	if succeeded == 0 {
		// The run still carries the report: health baselines and the error
		// list are meaningful even when every agent failed.
		res := agent.Fail(CoordinatorName, lastReason, "all agents failed")
		res.Data = report
		return res
	}
	return agent.OK(CoordinatorName, report)
}

// merge fills in the coordinated sections of the report. A panic here is an
// orchestration bug, not an agent failure, and surfaces as
// orchestration_internal_error.
func (c *Coordinator) merge(ctx context.Context, report *FullReport) (failed *agent.Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(ctx, fmt.Errorf("merge panic: %v", r), log.KV{K: "stack", V: string(debug.Stack())})
			failed = agent.Fail(CoordinatorName, ReasonInternalError, fmt.Sprintf("recommendation merge panicked: %v", r))
		}
	}()

	costReport, invReport, assessment, gen := unpack(report.Agents)
	report.Recommendations = mergeRecommendations(costReport, invReport, assessment)
	report.Health = computeHealth(costReport, invReport, assessment, gen)
	return nil
}

// SmartArchitectureDesign generates an architecture and checks the estimate
// against the requested budget, downgrading the scale once if it does not
// fit. The cost agent is consulted for current-spend context.
func (c *Coordinator) SmartArchitectureDesign(ctx context.Context, req agent.Requirements) *agent.Result {
	res := c.invoke(ctx, agent.InfrastructureIntelligence, agent.Request{
		Action:       "generate_architecture",
		Requirements: &req,
	})
	if !res.Success {
		return res
	}
	gen, ok := res.Data.(*architecture.Generated)
	if !ok {
		return agent.Fail(CoordinatorName, ReasonInternalError,
			fmt.Sprintf("unexpected design payload %T", res.Data))
	}

	design := &SmartDesign{
		Design:        gen,
		OriginalScale: gen.Scale,
		FinalScale:    gen.Scale,
		BudgetLimit:   req.BudgetLimit,
		WithinBudget:  true,
	}

	if req.BudgetLimit > 0 && gen.EstimatedMonthlyCost > req.BudgetLimit {
		// Over budget: pull current spend for optimization context before
		// regenerating one scale tier down.
		design.CurrentSpend = c.invoke(ctx, agent.CostIntelligence, agent.Request{Action: "analyze"})
		if smaller := downgrade(gen.Scale); smaller != "" {
			retry := req
			retry.Scale = smaller
			redo := c.invoke(ctx, agent.InfrastructureIntelligence, agent.Request{
				Action:       "generate_architecture",
				Requirements: &retry,
			})
			if redo.Success {
				if g, ok := redo.Data.(*architecture.Generated); ok {
					design.Design = g
					design.FinalScale = g.Scale
					design.Downgraded = true
				}
			}
		}
		design.WithinBudget = design.Design.EstimatedMonthlyCost <= req.BudgetLimit
	}

	return agent.OK(CoordinatorName, design)
}

// InvokeAgent routes a single request to one agent by name. Unknown names
// fail with the agent_not_found reason.
func (c *Coordinator) InvokeAgent(ctx context.Context, name string, req agent.Request) *agent.Result {
	return c.invoke(ctx, name, req)
}

// invoke dispatches through the registry, converting panics and internal
// errors into failure envelopes so one broken agent never takes down an
// orchestration run.
func (c *Coordinator) invoke(ctx context.Context, name string, req agent.Request) (res *agent.Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(ctx, fmt.Errorf("agent panic: %v", r), log.KV{K: "agent", V: name},
				log.KV{K: "stack", V: string(debug.Stack())})
			res = agent.Fail(name, ReasonInternalError, fmt.Sprintf("agent panicked: %v", r))
		}
	}()

	res, err := c.registry.Invoke(ctx, name, req)
	if err != nil {
		return agent.Fail(name, ReasonInternalError, err.Error())
	}
	return res
}

func downgrade(scale string) string {
	switch scale {
	case "large":
		return "medium"
	case "medium":
		return "small"
	}
	return ""
}

// unpack extracts the typed payloads from the per-agent envelopes. Failed
// agents yield nil sections; merging and scoring treat those as absent. The
// infrastructure envelope carries either an assessment or a generated design
// depending on the action that produced it.
func unpack(results map[string]*agent.Result) (*cost.Report, *inventory.Report, *architecture.Assessment, *architecture.Generated) {
	var (
		costReport *cost.Report
		invReport  *inventory.Report
		assessment *architecture.Assessment
		gen        *architecture.Generated
	)
	if res := results[agent.CostIntelligence]; res != nil && res.Success {
		costReport, _ = res.Data.(*cost.Report)
	}
	if res := results[agent.OperationsIntelligence]; res != nil && res.Success {
		invReport, _ = res.Data.(*inventory.Report)
	}
	if res := results[agent.InfrastructureIntelligence]; res != nil && res.Success {
		switch data := res.Data.(type) {
		case *architecture.Assessment:
			assessment = data
		case *architecture.Generated:
			gen = data
		}
	}
	return costReport, invReport, assessment, gen
}

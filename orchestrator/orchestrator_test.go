package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsops/commandcenter/agent"
	"github.com/awsops/commandcenter/agent/architecture"
	"github.com/awsops/commandcenter/agent/cost"
	"github.com/awsops/commandcenter/agent/inventory"
	"github.com/awsops/commandcenter/cache"
	"github.com/awsops/commandcenter/cloud"
	"github.com/awsops/commandcenter/cloud/fixture"
)

// stubAgent returns canned envelopes, or panics when told to.
type stubAgent struct {
	name   string
	result *agent.Result
	panics bool
}

func (s *stubAgent) Name() string { return s.name }

func (s *stubAgent) Invoke(context.Context, agent.Request) (*agent.Result, error) {
	if s.panics {
		panic("stub agent exploded")
	}
	return s.result, nil
}

// singleAccount is a one-account estate with a stopped instance, a
// single-AZ database and an SSH port open to the world.
func singleAccount() *fixture.Provider {
	return &fixture.Provider{
		Caller: "111111111111",
		Data: map[string]*fixture.AccountData{
			"111111111111": {
				Costs: []cloud.BillingBucket{
					{Groups: []cloud.BillingGroup{{RecordType: "Usage", Amount: 50}}},
				},
				Instances: []cloud.Instance{
					{ID: "i-01", Type: "t3.medium", State: "stopped", VPCID: "vpc-01"},
				},
				DBInstances: []cloud.DBInstance{
					{ID: "db-01", Engine: "mysql", MultiAZ: false},
				},
				VPCs: []cloud.VPC{{ID: "vpc-01"}},
				Subnets: map[string][]cloud.Subnet{
					"vpc-01": {{ID: "subnet-01", VPCID: "vpc-01", Public: true}},
				},
				SecurityGroups: []cloud.SecurityGroup{
					{ID: "sg-ssh", Ingress: []cloud.IngressRule{{FromPort: 22, ToPort: 22, CIDRs: []string{"0.0.0.0/0"}}}},
				},
			},
		},
	}
}

func newCoordinator(p cloud.Provider) *Coordinator {
	c := cache.New(0)
	reg := agent.NewRegistry(
		cost.New(p, c, cost.Options{}),
		inventory.New(p, inventory.Options{}),
		architecture.New(p, architecture.Options{}),
	)
	return New(reg)
}

func TestFullAnalysis(t *testing.T) {
	coord := newCoordinator(singleAccount())
	res := coord.FullAnalysis(context.Background())
	require.True(t, res.Success, "message: %s", res.Message)
	assert.Equal(t, CoordinatorName, res.Agent)

	report := res.Data.(*FullReport)
	assert.NotEmpty(t, report.RunID)
	require.Len(t, report.Agents, 3)
	assert.Empty(t, report.Errors)
	for name, sub := range report.Agents {
		assert.True(t, sub.Success, "agent %s failed: %s", name, sub.Message)
	}

	// Findings: single-AZ database (high), stopped instance (low), SSH
	// open to the world (high). No cost opportunities at $50/month.
	require.Len(t, report.Recommendations, 3)
	assert.Equal(t, "high", report.Recommendations[0].Priority)
	assert.Equal(t, "high", report.Recommendations[1].Priority)
	assert.Equal(t, "low", report.Recommendations[2].Priority)

	assert.Equal(t, 70, report.Health.CostEfficiency)
	assert.Equal(t, 60, report.Health.OperationalHealth)
	assert.Equal(t, 70, report.Health.Security)
	assert.Equal(t, 67, report.Health.Overall)
}

func TestFullAnalysisPartialFailure(t *testing.T) {
	reg := agent.NewRegistry(
		&stubAgent{name: agent.CostIntelligence,
			result: agent.Fail(agent.CostIntelligence, cloud.ReasonAccessDenied, "no billing access")},
		&stubAgent{name: agent.OperationsIntelligence,
			result: agent.OK(agent.OperationsIntelligence, &inventory.Report{
				Insights: []inventory.Insight{{Type: "stopped_instances", Message: "one stopped", Severity: "low"}},
			})},
		&stubAgent{name: agent.InfrastructureIntelligence,
			result: agent.Fail(agent.InfrastructureIntelligence, cloud.ReasonUnavailable, "ec2 down")},
	)
	res := New(reg).FullAnalysis(context.Background())
	require.True(t, res.Success)

	report := res.Data.(*FullReport)
	assert.Len(t, report.Errors, 2)
	require.Len(t, report.Recommendations, 1)
	assert.Equal(t, "low", report.Recommendations[0].Priority)
	// Missing agent data leaves categories at the baseline.
	assert.Equal(t, 70, report.Health.CostEfficiency)
	assert.Equal(t, 70, report.Health.Security)
}

func TestFullAnalysisAllAgentsFail(t *testing.T) {
	fail := func(name string) *stubAgent {
		return &stubAgent{name: name, result: agent.Fail(name, cloud.ReasonNoCredentials, "no creds")}
	}
	reg := agent.NewRegistry(
		fail(agent.CostIntelligence),
		fail(agent.OperationsIntelligence),
		fail(agent.InfrastructureIntelligence),
	)
	res := New(reg).FullAnalysis(context.Background())
	require.False(t, res.Success)
	assert.Equal(t, cloud.ReasonNoCredentials, res.Error)

	// Even with every agent down the envelope carries the report: baseline
	// scores and the per-agent error list.
	report, ok := res.Data.(*FullReport)
	require.True(t, ok, "all-failed run must still carry its report")
	assert.Len(t, report.Errors, 3)
	assert.Empty(t, report.Recommendations)
	assert.Equal(t, 70, report.Health.Overall)
	assert.Equal(t, 70, report.Health.CostEfficiency)
	assert.Equal(t, 70, report.Health.OperationalHealth)
	assert.Equal(t, 70, report.Health.Security)
	assert.Equal(t, 70, report.Health.Reliability)
}

func TestInvokeAgentPanicRecovered(t *testing.T) {
	reg := agent.NewRegistry(&stubAgent{name: agent.CostIntelligence, panics: true})
	res := New(reg).InvokeAgent(context.Background(), agent.CostIntelligence, agent.Request{})
	require.False(t, res.Success)
	assert.Equal(t, ReasonInternalError, res.Error)
	assert.Contains(t, res.Message, "panicked")
}

func TestInvokeAgentUnknown(t *testing.T) {
	res := New(agent.NewRegistry()).InvokeAgent(context.Background(), "quantum_intelligence", agent.Request{})
	require.False(t, res.Success)
	assert.Equal(t, agent.ReasonAgentNotFound, res.Error)
}

func TestSmartArchitectureDesignDowngrade(t *testing.T) {
	coord := newCoordinator(singleAccount())
	res := coord.SmartArchitectureDesign(context.Background(), agent.Requirements{
		Type:        architecture.TypeWebApp3Tier,
		Scale:       "large",
		Environment: "prod",
		BudgetLimit: 300,
	})
	require.True(t, res.Success)

	design := res.Data.(*SmartDesign)
	assert.Equal(t, "large", design.OriginalScale)
	assert.Equal(t, "medium", design.FinalScale)
	assert.True(t, design.Downgraded)
	assert.True(t, design.WithinBudget)
	assert.LessOrEqual(t, design.Design.EstimatedMonthlyCost, 300.0)
	require.NotNil(t, design.CurrentSpend)
	assert.True(t, design.CurrentSpend.Success)
}

func TestSmartArchitectureDesignWithinBudget(t *testing.T) {
	coord := newCoordinator(singleAccount())
	res := coord.SmartArchitectureDesign(context.Background(), agent.Requirements{
		Type:        architecture.TypeWebApp3Tier,
		Scale:       "small",
		Environment: "dev",
		BudgetLimit: 5000,
	})
	require.True(t, res.Success)

	design := res.Data.(*SmartDesign)
	assert.False(t, design.Downgraded)
	assert.Equal(t, design.OriginalScale, design.FinalScale)
	assert.True(t, design.WithinBudget)
	assert.Nil(t, design.CurrentSpend)
}

func TestSmartArchitectureDesignBudgetTooTight(t *testing.T) {
	coord := newCoordinator(singleAccount())
	res := coord.SmartArchitectureDesign(context.Background(), agent.Requirements{
		Type:        architecture.TypeWebApp3Tier,
		Scale:       "small",
		Environment: "prod",
		BudgetLimit: 50,
	})
	require.True(t, res.Success)

	// Small is the floor; the design is returned with the shortfall
	// flagged rather than failing the request.
	design := res.Data.(*SmartDesign)
	assert.False(t, design.Downgraded)
	assert.False(t, design.WithinBudget)
}

func TestSmartArchitectureDesignInvalidInput(t *testing.T) {
	coord := newCoordinator(singleAccount())
	res := coord.SmartArchitectureDesign(context.Background(), agent.Requirements{
		Type: "mainframe",
	})
	require.False(t, res.Success)
	assert.Equal(t, cloud.ReasonInvalidParameters, res.Error)
}

func TestMergeRecommendationsOrdering(t *testing.T) {
	costReport := &cost.Report{
		Optimizations: cost.Optimizations{
			Opportunities: []cost.Opportunity{
				{Type: "usage_review", MonthlySavings: 50, Recommendation: "review usage"},
				{Type: "rightsizing_review", MonthlySavings: 500, Recommendation: "rightsize fleet"},
			},
		},
	}
	invReport := &inventory.Report{
		Insights: []inventory.Insight{{Type: "unused_vpc", Message: "vpc idle", Severity: "low"}},
	}
	assessment := &architecture.Assessment{
		SecurityIssues: []architecture.SecurityIssue{
			{GroupID: "sg-ssh", Port: 22, Issue: "Port 22 open to 0.0.0.0/0", Severity: "high"},
		},
	}

	recs := mergeRecommendations(costReport, invReport, assessment)
	require.Len(t, recs, 4)

	var priorities []string
	for _, r := range recs {
		priorities = append(priorities, r.Priority)
	}
	assert.Equal(t, []string{"high", "high", "medium", "low"}, priorities)
	// Stable sort keeps the cost finding ahead of the security one.
	assert.Equal(t, "cost_intelligence", recs[0].Source)
	assert.Equal(t, "infrastructure_intelligence", recs[1].Source)

	// Types collapse to the fixed identifiers regardless of the finding
	// type the source agent reported.
	assert.Equal(t, "cost_optimization", recs[0].Kind)
	assert.Equal(t, "security_improvement", recs[1].Kind)
	assert.Equal(t, "cost_optimization", recs[2].Kind)
	assert.Equal(t, "operational_improvement", recs[3].Kind)
	assert.Equal(t, "Improved security posture", recs[1].Impact)
	assert.Equal(t, "Improved reliability and performance", recs[3].Impact)
}

func TestComputeHealthBaseline(t *testing.T) {
	h := computeHealth(nil, nil, nil, nil)
	assert.Equal(t, 70, h.Overall)
	assert.Equal(t, 70, h.CostEfficiency)
	assert.Equal(t, 70, h.OperationalHealth)
	assert.Equal(t, 70, h.Security)
	assert.Equal(t, 70, h.Reliability)
}

func TestComputeHealthDeductions(t *testing.T) {
	costReport := &cost.Report{
		Optimizations: cost.Optimizations{TotalPotentialMonthlySavings: 250},
	}
	invReport := &inventory.Report{
		Insights: []inventory.Insight{
			{Severity: "high"}, {Severity: "high"}, {Severity: "low"},
		},
	}
	assessment := &architecture.Assessment{
		SecurityIssues: make([]architecture.SecurityIssue, 2),
	}

	h := computeHealth(costReport, invReport, assessment, nil)
	assert.Equal(t, 55, h.CostEfficiency)
	// Repeated high-severity findings deduct once.
	assert.Equal(t, 60, h.OperationalHealth)
	assert.Equal(t, 50, h.Security)
	assert.Equal(t, 70, h.Reliability)
	assert.Equal(t, 58, h.Overall)
}

func TestComputeHealthThresholdsExclusive(t *testing.T) {
	costReport := &cost.Report{
		Optimizations: cost.Optimizations{TotalPotentialMonthlySavings: 200},
	}
	assessment := &architecture.Assessment{
		SecurityIssues: make([]architecture.SecurityIssue, 1),
	}

	// Exactly at the thresholds nothing is deducted.
	h := computeHealth(costReport, nil, assessment, nil)
	assert.Equal(t, 70, h.CostEfficiency)
	assert.Equal(t, 70, h.Security)
	assert.Equal(t, 70, h.Overall)
}

func TestComputeHealthDesignReliability(t *testing.T) {
	gen := &architecture.Generated{ReliabilityScore: 95}
	h := computeHealth(nil, nil, nil, gen)
	assert.Equal(t, 95, h.Reliability)
	assert.Equal(t, 76, h.Overall)
}

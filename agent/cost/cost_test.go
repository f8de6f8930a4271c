package cost

import (
	"context"
	"testing"
	"time"

	smithy "github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"

	"github.com/awsops/commandcenter/agent"
	"github.com/awsops/commandcenter/cache"
	"github.com/awsops/commandcenter/cloud"
	"github.com/awsops/commandcenter/cloud/fixture"
)

func bucket(groups ...cloud.BillingGroup) []cloud.BillingBucket {
	return []cloud.BillingBucket{{Start: "2026-07-30", End: "2026-08-29", Groups: groups}}
}

func usageCredit(usage, credit float64) []cloud.BillingBucket {
	return bucket(
		cloud.BillingGroup{RecordType: "Usage", Amount: usage},
		cloud.BillingGroup{RecordType: "Credit", Amount: credit},
	)
}

func newAgent(p cloud.Provider) *Agent {
	return New(p, cache.New(time.Minute), Options{
		Retry: cloud.RetryConfig{MaxAttempts: 1},
	})
}

func invoke(t *testing.T, a *Agent) *agent.Result {
	t.Helper()
	res, err := a.Invoke(context.Background(), agent.Request{Action: "full_analysis"})
	require.NoError(t, err)
	return res
}

func TestSingleAccountNetCost(t *testing.T) {
	p := &fixture.Provider{
		Caller:       "111",
		AccountOrder: []string{"111"},
		Data:         map[string]*fixture.AccountData{"111": {Costs: usageCredit(100.50, -50.25)}},
	}
	res := invoke(t, newAgent(p))
	require.True(t, res.Success)

	report := res.Data.(*Report)
	require.Equal(t, 1, report.AccountsChecked)
	require.Equal(t, 1, report.SuccessfulAccounts)
	require.Equal(t, 50.25, report.TotalNetCost)
	require.Equal(t, 100.50, report.Breakdown.UsageBeforeCredits)
	require.Equal(t, 50.25, report.Accounts[0].NetCost)
}

func TestTwoAccountsAggregate(t *testing.T) {
	p := &fixture.Provider{
		Caller:       "111",
		Organization: true,
		AccountOrder: []string{"111", "222"},
		Data: map[string]*fixture.AccountData{
			"111": {Costs: usageCredit(100.50, -50.25)},
			"222": {Costs: usageCredit(100.50, -50.25)},
		},
	}
	res := invoke(t, newAgent(p))
	require.True(t, res.Success)

	report := res.Data.(*Report)
	require.Equal(t, 100.50, report.TotalNetCost)
	require.Equal(t, 201.0, report.TotalUsageCost)
	require.Equal(t, -100.50, report.TotalCreditCost)
}

func TestPartialFailureContinuesBatch(t *testing.T) {
	p := &fixture.Provider{
		Caller:       "A",
		Organization: true,
		AccountOrder: []string{"A", "B", "C"},
		Data: map[string]*fixture.AccountData{
			"A": {Costs: usageCredit(100, 0)},
			"B": {Costs: usageCredit(999, 0), Errs: map[string]error{
				"GetCostAndUsage": &smithy.GenericAPIError{Code: "AccessDenied"},
			}},
			"C": {Costs: usageCredit(50, -10)},
		},
	}
	res := invoke(t, newAgent(p))
	require.True(t, res.Success, "batch succeeds when at least one account succeeds")

	report := res.Data.(*Report)
	require.Equal(t, 3, report.AccountsChecked)
	require.Equal(t, 2, report.SuccessfulAccounts)
	require.Equal(t, 150.0, report.TotalUsageCost, "failed account must not contribute to totals")
	require.Equal(t, 140.0, report.TotalNetCost)

	require.Len(t, report.Accounts, 3)
	require.False(t, report.Accounts[1].Success)
	require.Equal(t, cloud.ReasonAccessDenied, report.Accounts[1].Error)
}

func TestAllAccountsFail(t *testing.T) {
	boom := &smithy.GenericAPIError{Code: "ServiceUnavailable"}
	p := &fixture.Provider{
		Caller:       "A",
		Organization: true,
		AccountOrder: []string{"A", "B"},
		Data: map[string]*fixture.AccountData{
			"A": {Errs: map[string]error{"GetCostAndUsage": boom}},
			"B": {Errs: map[string]error{"GetCostAndUsage": boom}},
		},
	}
	res := invoke(t, newAgent(p))
	require.False(t, res.Success)
	require.Equal(t, cloud.ReasonMaxRetriesExceeded, res.Error)
	require.Nil(t, res.Data)
}

func TestRepeatedGroupKeysAreSummed(t *testing.T) {
	// Two time buckets each with their own Usage/Credit groups: the agent
	// must accumulate, not overwrite per bucket.
	costs := []cloud.BillingBucket{
		{Start: "2026-07-30", End: "2026-08-14", Groups: []cloud.BillingGroup{
			{RecordType: "Usage", Amount: 60},
			{RecordType: "Credit", Amount: -5},
		}},
		{Start: "2026-08-14", End: "2026-08-29", Groups: []cloud.BillingGroup{
			{RecordType: "Usage", Amount: 40},
			{RecordType: "Credit", Amount: -15},
		}},
	}
	p := &fixture.Provider{
		Caller:       "111",
		AccountOrder: []string{"111"},
		Data:         map[string]*fixture.AccountData{"111": {Costs: costs}},
	}
	res := invoke(t, newAgent(p))
	require.True(t, res.Success)

	report := res.Data.(*Report)
	require.Equal(t, 100.0, report.TotalUsageCost)
	require.Equal(t, -20.0, report.TotalCreditCost)
	require.Equal(t, 80.0, report.TotalNetCost)
}

func TestUnusedVolumeOpportunities(t *testing.T) {
	p := &fixture.Provider{
		Caller:       "111",
		AccountOrder: []string{"111"},
		Data: map[string]*fixture.AccountData{"111": {
			Costs: usageCredit(50, 0),
			Volumes: []cloud.Volume{
				{ID: "vol-attached", Type: "gp2", SizeGB: 500, State: "in-use"},
				{ID: "vol-gp2", Type: "gp2", SizeGB: 100, State: "available"},
				{ID: "vol-io1", Type: "io1", SizeGB: 40, State: "available"},
				{ID: "vol-odd", Type: "st1", SizeGB: 30, State: "available"},
			},
		}},
	}
	res := invoke(t, newAgent(p))
	require.True(t, res.Success)

	report := res.Data.(*Report)
	opps := report.Optimizations.Opportunities
	require.Len(t, opps, 3, "only unattached volumes are flagged")

	require.Equal(t, "unused_ebs_volume", opps[0].Type)
	require.Equal(t, "vol-gp2", opps[0].ResourceID)
	require.Equal(t, 10.0, opps[0].MonthlySavings, "gp2 priced at $0.10/GB-month")
	require.Equal(t, "Delete unused 100GB gp2 volume", opps[0].Recommendation)
	require.Equal(t, "low", opps[0].Risk)

	require.Equal(t, 5.0, opps[1].MonthlySavings, "io1 priced at $0.125/GB-month")
	require.Equal(t, 3.0, opps[2].MonthlySavings, "unknown types fall back to $0.10/GB-month")
	require.Equal(t, 18.0, report.Optimizations.TotalPotentialMonthlySavings)
}

func TestVolumeScanFailureIsSoft(t *testing.T) {
	p := &fixture.Provider{
		Caller:       "111",
		AccountOrder: []string{"111"},
		Data: map[string]*fixture.AccountData{"111": {
			Costs:   usageCredit(200, 0),
			Volumes: []cloud.Volume{{ID: "vol-1", Type: "gp2", SizeGB: 100, State: "available"}},
			Errs: map[string]error{
				"DescribeVolumes": &smithy.GenericAPIError{Code: "AccessDenied"},
			},
		}},
	}
	res := invoke(t, newAgent(p))
	require.True(t, res.Success, "a denied volume scan must not fail the account")

	report := res.Data.(*Report)
	require.True(t, report.Accounts[0].Success)
	require.Empty(t, report.Accounts[0].UnusedVolumes)
	for _, o := range report.Optimizations.Opportunities {
		require.NotEqual(t, "unused_ebs_volume", o.Type)
	}
}

func TestNoCredentials(t *testing.T) {
	p := &fixture.Provider{Caller: "111", NoCredentials: true}
	res := invoke(t, newAgent(p))
	require.False(t, res.Success)
	require.Equal(t, cloud.ReasonNoCredentials, res.Error)
}

func TestUnknownAction(t *testing.T) {
	p := fixture.Demo()
	res, err := newAgent(p).Invoke(context.Background(), agent.Request{Action: "launch_missiles"})
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, cloud.ReasonInvalidParameters, res.Error)
}

func TestBillingQueryIsMemoized(t *testing.T) {
	calls := 0
	p := &countingProvider{Provider: &fixture.Provider{
		Caller:       "111",
		AccountOrder: []string{"111"},
		Data:         map[string]*fixture.AccountData{"111": {Costs: usageCredit(10, 0)}},
	}, calls: &calls}

	a := New(p, cache.New(time.Minute), Options{Retry: cloud.RetryConfig{MaxAttempts: 1}})
	invokeAgent := func() {
		res, err := a.Invoke(context.Background(), agent.Request{})
		require.NoError(t, err)
		require.True(t, res.Success)
	}
	invokeAgent()
	invokeAgent()
	require.Equal(t, 1, calls, "second analysis within the TTL must hit the cache")
}

type countingProvider struct {
	*fixture.Provider
	calls *int
}

func (p *countingProvider) GetCostAndUsage(ctx context.Context, q cloud.CostQuery) ([]cloud.BillingBucket, error) {
	*p.calls++
	return p.Provider.GetCostAndUsage(ctx, q)
}

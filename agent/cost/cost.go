// Package cost implements the cost intelligence agent: multi-account billing
// analysis over a trailing window, usage/credit partitioning, and derived
// optimization opportunities.
package cost

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"goa.design/clue/log"

	"github.com/awsops/commandcenter/agent"
	"github.com/awsops/commandcenter/cache"
	"github.com/awsops/commandcenter/cloud"
)

// Report is the cost agent result payload. Totals cover successfully
// queried accounts only; failed accounts appear in Accounts with their
// error so callers can see exactly what the totals exclude.
type Report struct {
	TotalUsageCost     float64       `json:"total_usage_cost"`
	TotalCreditCost    float64       `json:"total_credit_cost"`
	TotalNetCost       float64       `json:"total_net_cost"`
	AccountsChecked    int           `json:"accounts_checked"`
	SuccessfulAccounts int           `json:"successful_accounts"`
	Accounts           []AccountCost `json:"accounts"`
	Breakdown          Breakdown     `json:"cost_breakdown"`
	Optimizations      Optimizations `json:"optimizations"`
}

// AccountCost is the per-account outcome. UnusedVolumes lists unattached
// block-storage volumes found in the account; the scan is best-effort and an
// empty list may mean the describe call was denied.
type AccountCost struct {
	AccountID     string         `json:"account_id"`
	AccountName   string         `json:"account_name"`
	Success       bool           `json:"success"`
	UsageCost     float64        `json:"usage_cost"`
	CreditCost    float64        `json:"credit_cost"`
	NetCost       float64        `json:"net_cost"`
	UnusedVolumes []cloud.Volume `json:"unused_volumes,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// Breakdown restates the totals in billing terms.
type Breakdown struct {
	UsageBeforeCredits float64 `json:"usage_before_credits"`
	CreditsApplied     float64 `json:"credits_applied"`
	FinalBill          float64 `json:"final_bill"`
}

// Opportunity is one cost optimization finding. ResourceID is set when the
// finding points at a single resource.
type Opportunity struct {
	Type           string  `json:"type"`
	AccountID      string  `json:"account_id,omitempty"`
	ResourceID     string  `json:"resource_id,omitempty"`
	MonthlySavings float64 `json:"monthly_savings"`
	Recommendation string  `json:"recommendation"`
	Risk           string  `json:"risk"`
}

// Optimizations groups the findings with their total.
type Optimizations struct {
	TotalPotentialMonthlySavings float64       `json:"total_potential_monthly_savings"`
	Opportunities                []Opportunity `json:"opportunities"`
}

// Options configures the agent.
type Options struct {
	// WindowDays is the trailing billing window. Defaults to 30.
	WindowDays int
	// Retry bounds provider call retries.
	Retry cloud.RetryConfig
	// ExternalID is passed on cross-account assume-role calls.
	ExternalID string
	// CacheTTL bounds memoized per-account billing queries. Zero uses the
	// cache default.
	CacheTTL time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Agent queries billing per account and aggregates across the organization.
type Agent struct {
	provider cloud.Provider
	cache    *cache.Cache
	opts     Options

	discover sync.Once
	env      environment
	envErr   error
}

// environment is the one-time startup discovery: caller identity and
// organization membership. Read-only after initialization.
type environment struct {
	accountID string
	isOrg     bool
	accounts  []cloud.Account
}

// New constructs the cost agent.
func New(provider cloud.Provider, c *cache.Cache, opts Options) *Agent {
	if opts.WindowDays <= 0 {
		opts.WindowDays = 30
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = cloud.DefaultRetryConfig()
	}
	if opts.ExternalID == "" {
		opts.ExternalID = cloud.ExternalID
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Agent{provider: provider, cache: c, opts: opts}
}

// Name implements agent.Agent.
func (a *Agent) Name() string { return agent.CostIntelligence }

// Invoke implements agent.Agent. Supported actions: "full_analysis"
// (default) and "find_optimizations"; both return a *Report.
func (a *Agent) Invoke(ctx context.Context, req agent.Request) (*agent.Result, error) {
	switch req.Action {
	case "", "full_analysis", "find_optimizations", "analyze":
		return a.analyze(ctx), nil
	default:
		return agent.Fail(a.Name(), cloud.ReasonInvalidParameters,
			fmt.Sprintf("unknown action %q; available: full_analysis, find_optimizations", req.Action)), nil
	}
}

func (a *Agent) analyze(ctx context.Context) *agent.Result {
	env, err := a.environment(ctx)
	if err != nil {
		ce := cloud.Classify("sts", "GetCallerIdentity", err)
		return agent.Fail(a.Name(), ce.Reason(), ce.Error())
	}

	report := &Report{AccountsChecked: len(env.accounts)}
	var lastErr *cloud.CallError
	for _, acct := range env.accounts {
		ac, ce := a.accountCosts(ctx, env, acct)
		if ac.Success {
			report.SuccessfulAccounts++
			report.TotalUsageCost += ac.UsageCost
			report.TotalCreditCost += ac.CreditCost
		} else if ce != nil {
			lastErr = ce
		}
		report.Accounts = append(report.Accounts, ac)
	}

	if report.SuccessfulAccounts == 0 {
		reason := cloud.ReasonUnavailable
		msg := "billing data unavailable for all accounts"
		if lastErr != nil {
			reason = lastErr.Reason()
			msg = lastErr.Error()
		}
		return agent.Fail(a.Name(), reason, msg)
	}

	report.TotalNetCost = round2(report.TotalUsageCost + report.TotalCreditCost)
	report.TotalUsageCost = round2(report.TotalUsageCost)
	report.TotalCreditCost = round2(report.TotalCreditCost)
	report.Breakdown = Breakdown{
		UsageBeforeCredits: report.TotalUsageCost,
		CreditsApplied:     round2(math.Abs(report.TotalCreditCost)),
		FinalBill:          report.TotalNetCost,
	}
	report.Optimizations = deriveOptimizations(report.Accounts)
	return agent.OK(a.Name(), report)
}

func (a *Agent) environment(ctx context.Context) (environment, error) {
	a.discover.Do(func() {
		id, err := a.provider.CallerAccount(ctx)
		if err != nil {
			a.envErr = err
			return
		}
		a.env.accountID = id

		isOrg, err := a.provider.DescribeOrganization(ctx)
		if err != nil {
			a.envErr = err
			return
		}
		a.env.isOrg = isOrg
		if !isOrg {
			a.env.accounts = []cloud.Account{{ID: id, Name: "current", Status: "ACTIVE"}}
			return
		}
		accounts, err := a.provider.ListAccounts(ctx)
		if err != nil {
			// Organization visible but member listing denied: degrade to
			// the current account rather than failing the agent.
			log.Warn(ctx, log.KV{K: "agent", V: a.Name()}, log.KV{K: "msg", V: "account listing failed, falling back to current account"},
				log.KV{K: "err", V: err.Error()})
			a.env.accounts = []cloud.Account{{ID: id, Name: "current", Status: "ACTIVE"}}
			return
		}
		a.env.accounts = accounts
	})
	return a.env, a.envErr
}

func (a *Agent) accountCosts(ctx context.Context, env environment, acct cloud.Account) (AccountCost, *cloud.CallError) {
	ac := AccountCost{AccountID: acct.ID, AccountName: acct.Name}

	provider := a.provider
	if acct.ID != env.accountID {
		res := cloud.Call(ctx, a.opts.Retry, "sts", "AssumeRole", func(ctx context.Context) (cloud.Provider, error) {
			return a.provider.AssumeRole(ctx, acct.ID, a.opts.ExternalID)
		})
		if !res.Success {
			ac.Error = res.Err.Reason()
			return ac, res.Err
		}
		provider = res.Data
	}

	end := a.opts.Now()
	start := end.AddDate(0, 0, -a.opts.WindowDays)
	query := cloud.CostQuery{Start: start, End: end, Granularity: "MONTHLY"}

	key := cache.Key("ce.GetCostAndUsage", acct.ID, a.opts.WindowDays, end.Format("2006-01-02"))
	buckets, err := cache.Memoize(a.cache, key, a.opts.CacheTTL, func() ([]cloud.BillingBucket, error) {
		res := cloud.Call(ctx, a.opts.Retry, "ce", "GetCostAndUsage", func(ctx context.Context) ([]cloud.BillingBucket, error) {
			return provider.GetCostAndUsage(ctx, query)
		})
		if !res.Success {
			return nil, res.Err
		}
		return res.Data, nil
	})
	if err != nil {
		if ce, ok := cloud.AsCallError(err); ok {
			ac.Error = ce.Reason()
			return ac, ce
		}
		ac.Error = err.Error()
		return ac, nil
	}

	// Sum repeated group keys across time buckets: credits and usage
	// accumulate over the reporting window.
	for _, bucket := range buckets {
		for _, group := range bucket.Groups {
			switch group.RecordType {
			case "Usage":
				ac.UsageCost += group.Amount
			case "Credit":
				ac.CreditCost += group.Amount
			}
		}
	}
	ac.UsageCost = round2(ac.UsageCost)
	ac.CreditCost = round2(ac.CreditCost)
	ac.NetCost = round2(ac.UsageCost + ac.CreditCost)
	ac.Success = true
	ac.UnusedVolumes = a.unusedVolumes(ctx, provider, acct.ID)
	log.Info(ctx, log.KV{K: "agent", V: a.Name()}, log.KV{K: "account", V: acct.ID},
		log.KV{K: "usage", V: ac.UsageCost}, log.KV{K: "credits", V: ac.CreditCost})
	return ac, nil
}

// unusedVolumes scans the account for unattached block-storage volumes. The
// scan is additive: a denied or failing describe call degrades to an empty
// result instead of failing the account.
func (a *Agent) unusedVolumes(ctx context.Context, provider cloud.Provider, accountID string) []cloud.Volume {
	res := cloud.Call(ctx, a.opts.Retry, "ec2", "DescribeVolumes", func(ctx context.Context) ([]cloud.Volume, error) {
		return provider.DescribeVolumes(ctx)
	})
	if !res.Success {
		log.Warn(ctx, log.KV{K: "agent", V: a.Name()}, log.KV{K: "account", V: accountID},
			log.KV{K: "msg", V: "volume scan failed, skipping unused volume detection"},
			log.KV{K: "err", V: res.Err.Error()})
		return nil
	}
	var unused []cloud.Volume
	for _, vol := range res.Data {
		if vol.State == "available" {
			unused = append(unused, vol)
		}
	}
	return unused
}

// volumePricePerGB is the approximate monthly per-GB price used to estimate
// savings from deleting unattached volumes.
var volumePricePerGB = map[string]float64{
	"gp2": 0.10,
	"gp3": 0.08,
	"io1": 0.125,
	"io2": 0.125,
}

// deriveOptimizations flags accounts whose trailing spend suggests headroom
// and prices out unattached volumes. Savings estimates are deliberately
// conservative fractions of observed net cost.
func deriveOptimizations(accounts []AccountCost) Optimizations {
	var opt Optimizations
	for _, ac := range accounts {
		if !ac.Success {
			continue
		}
		switch {
		case ac.NetCost > 1000:
			opt.Opportunities = append(opt.Opportunities, Opportunity{
				Type:           "rightsizing_review",
				AccountID:      ac.AccountID,
				MonthlySavings: round2(ac.NetCost * 0.2),
				Recommendation: fmt.Sprintf("Review instance sizing in account %s; trailing spend $%.2f/month", ac.AccountID, ac.NetCost),
				Risk:           "medium",
			})
		case ac.NetCost > 100:
			opt.Opportunities = append(opt.Opportunities, Opportunity{
				Type:           "usage_review",
				AccountID:      ac.AccountID,
				MonthlySavings: round2(ac.NetCost * 0.1),
				Recommendation: fmt.Sprintf("Audit idle resources in account %s", ac.AccountID),
				Risk:           "low",
			})
		}
		for _, vol := range ac.UnusedVolumes {
			price, ok := volumePricePerGB[vol.Type]
			if !ok {
				price = 0.10
			}
			opt.Opportunities = append(opt.Opportunities, Opportunity{
				Type:           "unused_ebs_volume",
				AccountID:      ac.AccountID,
				ResourceID:     vol.ID,
				MonthlySavings: round2(float64(vol.SizeGB) * price),
				Recommendation: fmt.Sprintf("Delete unused %dGB %s volume", vol.SizeGB, vol.Type),
				Risk:           "low",
			})
		}
	}
	for _, o := range opt.Opportunities {
		opt.TotalPotentialMonthlySavings += o.MonthlySavings
	}
	opt.TotalPotentialMonthlySavings = round2(opt.TotalPotentialMonthlySavings)
	return opt
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

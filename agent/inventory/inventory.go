// Package inventory implements the operations intelligence agent: resource
// enumeration across the organization with bounded parallel scans, soft
// per-scan timeouts, and derived operational insights.
package inventory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"goa.design/clue/log"

	"github.com/awsops/commandcenter/agent"
	"github.com/awsops/commandcenter/cloud"
)

// Resource type labels used in counts and insights.
const (
	TypeInstance = "instances"
	TypeDatabase = "databases"
	TypeBucket   = "buckets"
	TypeVPC      = "vpcs"
)

type (
	// Report is the inventory agent result payload.
	Report struct {
		TotalResources  int                `json:"total_resources"`
		ResourceCounts  map[string]int     `json:"resource_counts"`
		AccountsScanned int                `json:"scanned_accounts"`
		AccountsTotal   int                `json:"accounts_total"`
		ScanCoverage    string             `json:"scan_coverage"`
		Accounts        []AccountInventory `json:"accounts"`
		Insights        []Insight          `json:"insights"`
	}

	// AccountInventory is the per-account scan outcome. A scan that timed
	// out contributes zero resources for that type and is listed in
	// FailedScans; the account still counts as scanned if any type
	// succeeded.
	AccountInventory struct {
		AccountID   string             `json:"account_id"`
		Success     bool               `json:"success"`
		Error       string             `json:"error,omitempty"`
		Counts      map[string]int     `json:"counts,omitempty"`
		FailedScans []string           `json:"failed_scans,omitempty"`
		Instances   []cloud.Instance   `json:"instances,omitempty"`
		DBInstances []cloud.DBInstance `json:"db_instances,omitempty"`
		Buckets     []cloud.Bucket     `json:"s3_buckets,omitempty"`
		VPCs        []cloud.VPC        `json:"vpcs,omitempty"`
	}

	// Insight is one operational finding with a severity the coordinator
	// preserves when merging recommendations.
	Insight struct {
		Type     string `json:"type"`
		Resource string `json:"resource,omitempty"`
		Message  string `json:"message"`
		Severity string `json:"severity"`
	}
)

// Options configures the agent.
type Options struct {
	// Workers bounds concurrent resource-type scans within one account.
	// Defaults to 4.
	Workers int
	// ScanTimeout bounds each resource-type scan. A timed-out scan is a
	// soft failure. Defaults to 15s.
	ScanTimeout time.Duration
	// Retry bounds provider call retries.
	Retry cloud.RetryConfig
	// ExternalID is passed on cross-account assume-role calls.
	ExternalID string
}

// Agent enumerates resources per account and derives insights.
type Agent struct {
	provider cloud.Provider
	opts     Options

	discover sync.Once
	env      environment
	envErr   error
}

type environment struct {
	accountID string
	isOrg     bool
	accounts  []cloud.Account
}

// New constructs the inventory agent.
func New(provider cloud.Provider, opts Options) *Agent {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = 15 * time.Second
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = cloud.DefaultRetryConfig()
	}
	if opts.ExternalID == "" {
		opts.ExternalID = cloud.ExternalID
	}
	return &Agent{provider: provider, opts: opts}
}

// Name implements agent.Agent.
func (a *Agent) Name() string { return agent.OperationsIntelligence }

// Invoke implements agent.Agent. Supported actions: "full_operations_analysis"
// (default) and "analyze"; both return a *Report.
func (a *Agent) Invoke(ctx context.Context, req agent.Request) (*agent.Result, error) {
	switch req.Action {
	case "", "full_operations_analysis", "analyze":
		return a.analyze(ctx), nil
	default:
		return agent.Fail(a.Name(), cloud.ReasonInvalidParameters,
			fmt.Sprintf("unknown action %q; available: full_operations_analysis", req.Action)), nil
	}
}

func (a *Agent) analyze(ctx context.Context) *agent.Result {
	env, err := a.environment(ctx)
	if err != nil {
		ce := cloud.Classify("sts", "GetCallerIdentity", err)
		return agent.Fail(a.Name(), ce.Reason(), ce.Error())
	}

	report := &Report{
		AccountsTotal:  len(env.accounts),
		ResourceCounts: map[string]int{},
	}
	for _, acct := range env.accounts {
		inv := a.scanAccount(ctx, env, acct)
		if inv.Success {
			report.AccountsScanned++
			for typ, n := range inv.Counts {
				report.ResourceCounts[typ] += n
				report.TotalResources += n
			}
		} else {
			log.Warn(ctx, log.KV{K: "agent", V: a.Name()}, log.KV{K: "account", V: acct.ID},
				log.KV{K: "msg", V: "account scan skipped"}, log.KV{K: "err", V: inv.Error})
		}
		report.Accounts = append(report.Accounts, inv)
	}
	report.ScanCoverage = fmt.Sprintf("%d/%d", report.AccountsScanned, report.AccountsTotal)

	if report.AccountsScanned == 0 {
		msg := "resource scan failed for all accounts"
		if len(report.Accounts) > 0 && report.Accounts[0].Error != "" {
			msg = report.Accounts[0].Error
		}
		return agent.Fail(a.Name(), cloud.ReasonUnavailable, msg)
	}

	report.Insights = deriveInsights(report.Accounts)
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
			log.Warn(ctx, log.KV{K: "agent", V: a.Name()}, log.KV{K: "msg", V: "account listing failed, scanning current account only"},
				log.KV{K: "err", V: err.Error()})
			a.env.accounts = []cloud.Account{{ID: id, Name: "current", Status: "ACTIVE"}}
			return
		}
		a.env.accounts = accounts
	})
	return a.env, a.envErr
}

// scanAccount runs the four resource-type scans on a bounded worker pool.
// Scans are independent read-only calls; each carries its own timeout so one
// slow type cannot block the batch.
func (a *Agent) scanAccount(ctx context.Context, env environment, acct cloud.Account) AccountInventory {
	inv := AccountInventory{AccountID: acct.ID, Counts: map[string]int{}}

	provider := a.provider
	if acct.ID != env.accountID {
		res := cloud.Call(ctx, a.opts.Retry, "sts", "AssumeRole", func(ctx context.Context) (cloud.Provider, error) {
			return a.provider.AssumeRole(ctx, acct.ID, a.opts.ExternalID)
		})
		if !res.Success {
			inv.Error = res.Err.Reason()
			return inv
		}
		provider = res.Data
	}

	scans := []struct {
		typ string
		run func(ctx context.Context) (int, error)
	}{
		{TypeInstance, func(ctx context.Context) (int, error) {
			res := cloud.Call(ctx, a.opts.Retry, "ec2", "DescribeInstances", provider.DescribeInstances)
			if !res.Success {
				return 0, res.Err
			}
			inv.Instances = res.Data
			return len(res.Data), nil
		}},
		{TypeDatabase, func(ctx context.Context) (int, error) {
			res := cloud.Call(ctx, a.opts.Retry, "rds", "DescribeDBInstances", provider.DescribeDBInstances)
			if !res.Success {
				return 0, res.Err
			}
			inv.DBInstances = res.Data
			return len(res.Data), nil
		}},
		{TypeBucket, func(ctx context.Context) (int, error) {
			res := cloud.Call(ctx, a.opts.Retry, "s3", "ListBuckets", provider.ListBuckets)
			if !res.Success {
				return 0, res.Err
			}
			inv.Buckets = res.Data
			return len(res.Data), nil
		}},
		{TypeVPC, func(ctx context.Context) (int, error) {
			res := cloud.Call(ctx, a.opts.Retry, "ec2", "DescribeVpcs", provider.DescribeVPCs)
			if !res.Success {
				return 0, res.Err
			}
			inv.VPCs = res.Data
			return len(res.Data), nil
		}},
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		sem    = make(chan struct{}, a.opts.Workers)
		failed []string
	)
	for _, scan := range scans {
		wg.Add(1)
		go func(typ string, run func(ctx context.Context) (int, error)) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			scanCtx, cancel := context.WithTimeout(ctx, a.opts.ScanTimeout)
			defer cancel()
			n, err := run(scanCtx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Soft failure: the type contributes zero resources.
				failed = append(failed, typ)
				log.Warn(ctx, log.KV{K: "agent", V: a.Name()}, log.KV{K: "account", V: acct.ID},
					log.KV{K: "scan", V: typ}, log.KV{K: "err", V: err.Error()})
				return
			}
			inv.Counts[typ] = n
		}(scan.typ, scan.run)
	}
	wg.Wait()

	inv.FailedScans = failed
	if len(failed) == len(scans) {
		inv.Error = cloud.ReasonUnavailable
		return inv
	}
	inv.Success = true
	return inv
}

// deriveInsights turns raw inventory into operational findings.
func deriveInsights(accounts []AccountInventory) []Insight {
	var insights []Insight
	for _, inv := range accounts {
		if !inv.Success {
			continue
		}
		for _, db := range inv.DBInstances {
			if !db.MultiAZ {
				insights = append(insights, Insight{
					Type:     "single_az_database",
					Resource: db.ID,
					Message:  fmt.Sprintf("Database %s runs in a single AZ; an AZ outage takes it down", db.ID),
					Severity: "high",
				})
			}
		}
		stopped := 0
		for _, inst := range inv.Instances {
			if inst.State == "stopped" {
				stopped++
			}
		}
		if stopped > 0 {
			insights = append(insights, Insight{
				Type:     "stopped_instances",
				Message:  fmt.Sprintf("%d stopped instances in account %s still accrue volume charges", stopped, inv.AccountID),
				Severity: "low",
			})
		}
		used := map[string]bool{}
		for _, inst := range inv.Instances {
			used[inst.VPCID] = true
		}
		for _, vpc := range inv.VPCs {
			if !vpc.IsDefault && !used[vpc.ID] {
				insights = append(insights, Insight{
					Type:     "unused_vpc",
					Resource: vpc.ID,
					Message:  fmt.Sprintf("VPC %s has no instances and may be unused", vpc.ID),
					Severity: "low",
				})
			}
		}
	}
	return insights
}

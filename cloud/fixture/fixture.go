// Package fixture implements cloud.Provider over canned in-memory data. It
// backs demo mode and tests: accounts, billing rows, and resources are
// declared up front, and individual operations can be made to fail per
// account to exercise partial-failure paths.
package fixture

import (
	"context"
	"fmt"
	"time"

	"github.com/awsops/commandcenter/cloud"
)

// AccountData holds the canned responses for one account. Errs injects a
// failure for a named operation ("GetCostAndUsage", "DescribeInstances", ...);
// the special key "*" fails every operation.
type AccountData struct {
	Costs          []cloud.BillingBucket
	Instances      []cloud.Instance
	Volumes        []cloud.Volume
	DBInstances    []cloud.DBInstance
	Buckets        []cloud.Bucket
	VPCs           []cloud.VPC
	Subnets        map[string][]cloud.Subnet
	SecurityGroups []cloud.SecurityGroup
	Errs           map[string]error
}

// Provider is a canned-data cloud.Provider. The zero value is unusable; set
// Caller and Data, or start from Demo.
type Provider struct {
	// Caller is the account the provider is bound to.
	Caller string
	// Organization marks the caller as an organization management account.
	Organization bool
	// AccountOrder fixes ListAccounts ordering for reproducible runs.
	AccountOrder []string
	// Data holds per-account responses, keyed by account id.
	Data map[string]*AccountData
	// ExternalID, when set, must match the external id passed to
	// AssumeRole.
	ExternalID string
	// AssumeRoleErrs injects assume-role failures per target account.
	AssumeRoleErrs map[string]error
	// NoCredentials makes every operation fail credential resolution.
	NoCredentials bool
}

var _ cloud.Provider = (*Provider)(nil)

func (p *Provider) account() (*AccountData, error) {
	if p.NoCredentials {
		return nil, cloud.ErrNoCredentials
	}
	d, ok := p.Data[p.Caller]
	if !ok {
		return nil, fmt.Errorf("fixture: no data for account %s", p.Caller)
	}
	return d, nil
}

func (p *Provider) op(name string) (*AccountData, error) {
	d, err := p.account()
	if err != nil {
		return nil, err
	}
	if err, ok := d.Errs["*"]; ok {
		return nil, err
	}
	if err, ok := d.Errs[name]; ok {
		return nil, err
	}
	return d, nil
}

// CallerAccount implements cloud.Provider.
func (p *Provider) CallerAccount(context.Context) (string, error) {
	if p.NoCredentials {
		return "", cloud.ErrNoCredentials
	}
	return p.Caller, nil
}

// DescribeOrganization implements cloud.Provider.
func (p *Provider) DescribeOrganization(context.Context) (bool, error) {
	if p.NoCredentials {
		return false, cloud.ErrNoCredentials
	}
	return p.Organization, nil
}

// ListAccounts implements cloud.Provider.
func (p *Provider) ListAccounts(context.Context) ([]cloud.Account, error) {
	if _, err := p.op("ListAccounts"); err != nil {
		return nil, err
	}
	accounts := make([]cloud.Account, 0, len(p.AccountOrder))
	for _, id := range p.AccountOrder {
		accounts = append(accounts, cloud.Account{ID: id, Name: "account-" + id, Status: "ACTIVE"})
	}
	return accounts, nil
}

// AssumeRole implements cloud.Provider. The returned provider is the same
// fixture rebound to the target account.
func (p *Provider) AssumeRole(_ context.Context, accountID, externalID string) (cloud.Provider, error) {
	if p.NoCredentials {
		return nil, cloud.ErrNoCredentials
	}
	if err, ok := p.AssumeRoleErrs[accountID]; ok {
		return nil, err
	}
	if p.ExternalID != "" && externalID != p.ExternalID {
		return nil, fmt.Errorf("fixture: external id mismatch for account %s", accountID)
	}
	scoped := *p
	scoped.Caller = accountID
	return &scoped, nil
}

// GetCostAndUsage implements cloud.Provider.
func (p *Provider) GetCostAndUsage(_ context.Context, _ cloud.CostQuery) ([]cloud.BillingBucket, error) {
	d, err := p.op("GetCostAndUsage")
	if err != nil {
		return nil, err
	}
	return d.Costs, nil
}

// DescribeInstances implements cloud.Provider.
func (p *Provider) DescribeInstances(context.Context) ([]cloud.Instance, error) {
	d, err := p.op("DescribeInstances")
	if err != nil {
		return nil, err
	}
	return d.Instances, nil
}

// DescribeVolumes implements cloud.Provider.
func (p *Provider) DescribeVolumes(context.Context) ([]cloud.Volume, error) {
	d, err := p.op("DescribeVolumes")
	if err != nil {
		return nil, err
	}
	return d.Volumes, nil
}

// DescribeDBInstances implements cloud.Provider.
func (p *Provider) DescribeDBInstances(context.Context) ([]cloud.DBInstance, error) {
	d, err := p.op("DescribeDBInstances")
	if err != nil {
		return nil, err
	}
	return d.DBInstances, nil
}

// ListBuckets implements cloud.Provider.
func (p *Provider) ListBuckets(context.Context) ([]cloud.Bucket, error) {
	d, err := p.op("ListBuckets")
	if err != nil {
		return nil, err
	}
	return d.Buckets, nil
}

// DescribeVPCs implements cloud.Provider.
func (p *Provider) DescribeVPCs(context.Context) ([]cloud.VPC, error) {
	d, err := p.op("DescribeVPCs")
	if err != nil {
		return nil, err
	}
	return d.VPCs, nil
}

// DescribeSubnets implements cloud.Provider.
func (p *Provider) DescribeSubnets(_ context.Context, vpcID string) ([]cloud.Subnet, error) {
	d, err := p.op("DescribeSubnets")
	if err != nil {
		return nil, err
	}
	return d.Subnets[vpcID], nil
}

// DescribeSecurityGroups implements cloud.Provider.
func (p *Provider) DescribeSecurityGroups(context.Context) ([]cloud.SecurityGroup, error) {
	d, err := p.op("DescribeSecurityGroups")
	if err != nil {
		return nil, err
	}
	return d.SecurityGroups, nil
}

// Demo returns a three-account organization with costs and resources sized
// so every analysis path has something to report.
func Demo() *Provider {
	month := func(usage, credit float64) []cloud.BillingBucket {
		return []cloud.BillingBucket{{
			Start: "2026-07-30", End: "2026-08-29",
			Groups: []cloud.BillingGroup{
				{RecordType: "Usage", Amount: usage},
				{RecordType: "Credit", Amount: credit},
			},
		}}
	}
	return &Provider{
		Caller:       "111111111111",
		Organization: true,
		AccountOrder: []string{"111111111111", "222222222222", "333333333333"},
		ExternalID:   "aws-operations-command-center",
		Data: map[string]*AccountData{
			"111111111111": {
				Costs: month(1250.75, -120.40),
				Instances: []cloud.Instance{
					{ID: "i-0a1b2c3d4e5f6a7b8", Type: "m5.large", State: "running", VPCID: "vpc-01", SubnetID: "subnet-01"},
					{ID: "i-0b2c3d4e5f6a7b8c9", Type: "t3.medium", State: "stopped", VPCID: "vpc-01", SubnetID: "subnet-02"},
				},
				Volumes: []cloud.Volume{
					{ID: "vol-0a1b2c3d4e5f6a7b8", Type: "gp2", SizeGB: 500, State: "in-use"},
					{ID: "vol-0b2c3d4e5f6a7b8c9", Type: "gp3", SizeGB: 200, State: "available"},
				},
				DBInstances: []cloud.DBInstance{
					{ID: "orders-db", Engine: "mysql", Class: "db.t3.small", Status: "available", MultiAZ: false},
				},
				Buckets: []cloud.Bucket{{Name: "ops-artifacts", Created: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}},
				VPCs:    []cloud.VPC{{ID: "vpc-01", CIDR: "10.0.0.0/16"}, {ID: "vpc-02", CIDR: "10.1.0.0/16"}},
				Subnets: map[string][]cloud.Subnet{
					"vpc-01": {
						{ID: "subnet-01", VPCID: "vpc-01", Public: true},
						{ID: "subnet-02", VPCID: "vpc-01", Public: false},
					},
					"vpc-02": {{ID: "subnet-03", VPCID: "vpc-02", Public: true}},
				},
				SecurityGroups: []cloud.SecurityGroup{
					{ID: "sg-01", Name: "bastion", Ingress: []cloud.IngressRule{
						{Protocol: "tcp", FromPort: 22, ToPort: 22, CIDRs: []string{"0.0.0.0/0"}},
					}},
					{ID: "sg-02", Name: "web", Ingress: []cloud.IngressRule{
						{Protocol: "tcp", FromPort: 8080, ToPort: 8080, CIDRs: []string{"0.0.0.0/0"}},
						{Protocol: "tcp", FromPort: 443, ToPort: 443, CIDRs: []string{"10.0.0.0/8"}},
					}},
				},
			},
			"222222222222": {
				Costs: month(431.20, 0),
				Instances: []cloud.Instance{
					{ID: "i-0c3d4e5f6a7b8c9d0", Type: "t3.small", State: "running", VPCID: "vpc-11", SubnetID: "subnet-11"},
				},
				VPCs:    []cloud.VPC{{ID: "vpc-11", CIDR: "10.2.0.0/16"}},
				Subnets: map[string][]cloud.Subnet{"vpc-11": {{ID: "subnet-11", VPCID: "vpc-11", Public: true}}},
			},
			"333333333333": {
				Costs:   month(86.14, -10.00),
				Buckets: []cloud.Bucket{{Name: "archive-2023", Created: time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC)}},
			},
		},
	}
}

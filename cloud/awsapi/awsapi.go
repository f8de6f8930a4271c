// Package awsapi implements cloud.Provider on the AWS SDK v2. It binds the
// Cost Explorer, Organizations, STS, EC2, RDS, and S3 clients behind the
// narrow capability interfaces the agents consume, applies a shared token
// bucket so bursts of scans do not trip API throttling, and supports
// rebinding to member accounts through STS assume-role.
package awsapi

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	smithy "github.com/aws/smithy-go"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/awsops/commandcenter/cloud"
)

const assumeRoleName = "OrganizationAccountAccessRole"

// Options configures a Provider.
type Options struct {
	// RoleName is the cross-account role assumed in member accounts.
	// Defaults to OrganizationAccountAccessRole.
	RoleName string
	// CallsPerSecond caps outbound API calls across all clients bound to
	// this provider. Zero disables rate limiting.
	CallsPerSecond float64
}

// Provider implements cloud.Provider on real AWS clients.
type Provider struct {
	cfg      aws.Config
	roleName string
	limiter  *rate.Limiter

	stsc *sts.Client
	org  *organizations.Client
	ce   *costexplorer.Client
	ec2c *ec2.Client
	rdsc *rds.Client
	s3c  *s3.Client
}

var _ cloud.Provider = (*Provider)(nil)

// New builds a provider from an AWS config (typically
// config.LoadDefaultConfig with the configured region).
func New(cfg aws.Config, opts Options) *Provider {
	if opts.RoleName == "" {
		opts.RoleName = assumeRoleName
	}
	var limiter *rate.Limiter
	if opts.CallsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.CallsPerSecond), int(opts.CallsPerSecond)+1)
	}
	return &Provider{
		cfg:      cfg,
		roleName: opts.RoleName,
		limiter:  limiter,
		stsc:     sts.NewFromConfig(cfg),
		org:      organizations.NewFromConfig(cfg),
		ce:       costexplorer.NewFromConfig(cfg),
		ec2c:     ec2.NewFromConfig(cfg),
		rdsc:     rds.NewFromConfig(cfg),
		s3c:      s3.NewFromConfig(cfg),
	}
}

func (p *Provider) wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

// wrapCreds surfaces credential resolution failures as the stable
// cloud.ErrNoCredentials sentinel so classification does not depend on SDK
// internals.
func wrapCreds(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "retrieve credentials") ||
		strings.Contains(err.Error(), "no EC2 IMDS role found") {
		return errors.Join(cloud.ErrNoCredentials, err)
	}
	return err
}

// CallerAccount implements cloud.Provider.
func (p *Provider) CallerAccount(ctx context.Context) (string, error) {
	if err := p.wait(ctx); err != nil {
		return "", err
	}
	out, err := p.stsc.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", wrapCreds(err)
	}
	return aws.ToString(out.Account), nil
}

// DescribeOrganization implements cloud.Provider. Accounts that are not part
// of an organization, or that lack Organizations permissions, report false
// without an error so callers fall back to single-account mode.
func (p *Provider) DescribeOrganization(ctx context.Context) (bool, error) {
	if err := p.wait(ctx); err != nil {
		return false, err
	}
	_, err := p.org.DescribeOrganization(ctx, &organizations.DescribeOrganizationInput{})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "AWSOrganizationsNotInUseException", "AccessDeniedException", "AccessDenied":
				return false, nil
			}
		}
		return false, wrapCreds(err)
	}
	return true, nil
}

// ListAccounts implements cloud.Provider, returning active accounts only.
func (p *Provider) ListAccounts(ctx context.Context) ([]cloud.Account, error) {
	var accounts []cloud.Account
	pager := organizations.NewListAccountsPaginator(p.org, &organizations.ListAccountsInput{})
	for pager.HasMorePages() {
		if err := p.wait(ctx); err != nil {
			return nil, err
		}
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, wrapCreds(err)
		}
		for _, acc := range page.Accounts {
			if acc.Status != "ACTIVE" {
				continue
			}
			accounts = append(accounts, cloud.Account{
				ID:     aws.ToString(acc.Id),
				Name:   aws.ToString(acc.Name),
				Status: string(acc.Status),
			})
		}
	}
	return accounts, nil
}

// AssumeRole implements cloud.Provider. The returned provider shares the
// rate limiter with its parent so the per-process budget holds across
// accounts.
func (p *Provider) AssumeRole(ctx context.Context, accountID, externalID string) (cloud.Provider, error) {
	roleARN := fmt.Sprintf("arn:aws:iam::%s:role/%s", accountID, p.roleName)
	provider := stscreds.NewAssumeRoleProvider(p.stsc, roleARN, func(o *stscreds.AssumeRoleOptions) {
		o.RoleSessionName = "commandcenter-" + uuid.NewString()[:8]
		if externalID != "" {
			o.ExternalID = aws.String(externalID)
		}
	})
	cfg := p.cfg.Copy()
	cfg.Credentials = aws.NewCredentialsCache(provider)

	// Resolve once so assume-role failures surface here, not on the first
	// scan call in the target account.
	if _, err := cfg.Credentials.Retrieve(ctx); err != nil {
		return nil, wrapCreds(err)
	}

	scoped := New(cfg, Options{RoleName: p.roleName})
	scoped.limiter = p.limiter
	return scoped, nil
}

// GetCostAndUsage implements cloud.Provider.
func (p *Provider) GetCostAndUsage(ctx context.Context, q cloud.CostQuery) ([]cloud.BillingBucket, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	granularity := q.Granularity
	if granularity == "" {
		granularity = "MONTHLY"
	}
	out, err := p.ce.GetCostAndUsage(ctx, &costexplorer.GetCostAndUsageInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(q.Start.Format("2006-01-02")),
			End:   aws.String(q.End.Format("2006-01-02")),
		},
		Granularity: cetypes.Granularity(granularity),
		Metrics:     []string{"UnblendedCost"},
		GroupBy: []cetypes.GroupDefinition{
			{Type: cetypes.GroupDefinitionTypeDimension, Key: aws.String("RECORD_TYPE")},
		},
	})
	if err != nil {
		return nil, wrapCreds(err)
	}

	buckets := make([]cloud.BillingBucket, 0, len(out.ResultsByTime))
	for _, rbt := range out.ResultsByTime {
		bucket := cloud.BillingBucket{}
		if rbt.TimePeriod != nil {
			bucket.Start = aws.ToString(rbt.TimePeriod.Start)
			bucket.End = aws.ToString(rbt.TimePeriod.End)
		}
		for _, group := range rbt.Groups {
			if len(group.Keys) == 0 {
				continue
			}
			amount := 0.0
			if mv, ok := group.Metrics["UnblendedCost"]; ok {
				amount, _ = strconv.ParseFloat(aws.ToString(mv.Amount), 64)
			}
			bucket.Groups = append(bucket.Groups, cloud.BillingGroup{
				RecordType: group.Keys[0],
				Amount:     amount,
			})
		}
		buckets = append(buckets, bucket)
	}
	return buckets, nil
}

// DescribeInstances implements cloud.Provider.
func (p *Provider) DescribeInstances(ctx context.Context) ([]cloud.Instance, error) {
	var instances []cloud.Instance
	pager := ec2.NewDescribeInstancesPaginator(p.ec2c, &ec2.DescribeInstancesInput{})
	for pager.HasMorePages() {
		if err := p.wait(ctx); err != nil {
			return nil, err
		}
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, wrapCreds(err)
		}
		for _, res := range page.Reservations {
			for _, inst := range res.Instances {
				state := ""
				if inst.State != nil {
					state = string(inst.State.Name)
				}
				instances = append(instances, cloud.Instance{
					ID:       aws.ToString(inst.InstanceId),
					Type:     string(inst.InstanceType),
					State:    state,
					VPCID:    aws.ToString(inst.VpcId),
					SubnetID: aws.ToString(inst.SubnetId),
				})
			}
		}
	}
	return instances, nil
}

// DescribeVolumes implements cloud.Provider.
func (p *Provider) DescribeVolumes(ctx context.Context) ([]cloud.Volume, error) {
	var volumes []cloud.Volume
	pager := ec2.NewDescribeVolumesPaginator(p.ec2c, &ec2.DescribeVolumesInput{})
	for pager.HasMorePages() {
		if err := p.wait(ctx); err != nil {
			return nil, err
		}
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, wrapCreds(err)
		}
		for _, vol := range page.Volumes {
			volumes = append(volumes, cloud.Volume{
				ID:     aws.ToString(vol.VolumeId),
				Type:   string(vol.VolumeType),
				SizeGB: aws.ToInt32(vol.Size),
				State:  string(vol.State),
			})
		}
	}
	return volumes, nil
}

// DescribeDBInstances implements cloud.Provider.
func (p *Provider) DescribeDBInstances(ctx context.Context) ([]cloud.DBInstance, error) {
	var dbs []cloud.DBInstance
	pager := rds.NewDescribeDBInstancesPaginator(p.rdsc, &rds.DescribeDBInstancesInput{})
	for pager.HasMorePages() {
		if err := p.wait(ctx); err != nil {
			return nil, err
		}
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, wrapCreds(err)
		}
		for _, db := range page.DBInstances {
			dbs = append(dbs, cloud.DBInstance{
				ID:      aws.ToString(db.DBInstanceIdentifier),
				Engine:  aws.ToString(db.Engine),
				Class:   aws.ToString(db.DBInstanceClass),
				Status:  aws.ToString(db.DBInstanceStatus),
				MultiAZ: aws.ToBool(db.MultiAZ),
			})
		}
	}
	return dbs, nil
}

// ListBuckets implements cloud.Provider.
func (p *Provider) ListBuckets(ctx context.Context) ([]cloud.Bucket, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	out, err := p.s3c.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, wrapCreds(err)
	}
	buckets := make([]cloud.Bucket, 0, len(out.Buckets))
	for _, b := range out.Buckets {
		buckets = append(buckets, cloud.Bucket{
			Name:    aws.ToString(b.Name),
			Created: aws.ToTime(b.CreationDate),
		})
	}
	return buckets, nil
}

// DescribeVPCs implements cloud.Provider.
func (p *Provider) DescribeVPCs(ctx context.Context) ([]cloud.VPC, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	out, err := p.ec2c.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{})
	if err != nil {
		return nil, wrapCreds(err)
	}
	vpcs := make([]cloud.VPC, 0, len(out.Vpcs))
	for _, v := range out.Vpcs {
		vpcs = append(vpcs, cloud.VPC{
			ID:        aws.ToString(v.VpcId),
			CIDR:      aws.ToString(v.CidrBlock),
			IsDefault: aws.ToBool(v.IsDefault),
		})
	}
	return vpcs, nil
}

// DescribeSubnets implements cloud.Provider.
func (p *Provider) DescribeSubnets(ctx context.Context, vpcID string) ([]cloud.Subnet, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	out, err := p.ec2c.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		Filters: []ec2types.Filter{{Name: aws.String("vpc-id"), Values: []string{vpcID}}},
	})
	if err != nil {
		return nil, wrapCreds(err)
	}
	subnets := make([]cloud.Subnet, 0, len(out.Subnets))
	for _, s := range out.Subnets {
		subnets = append(subnets, cloud.Subnet{
			ID:     aws.ToString(s.SubnetId),
			VPCID:  aws.ToString(s.VpcId),
			Public: aws.ToBool(s.MapPublicIpOnLaunch),
		})
	}
	return subnets, nil
}

// DescribeSecurityGroups implements cloud.Provider.
func (p *Provider) DescribeSecurityGroups(ctx context.Context) ([]cloud.SecurityGroup, error) {
	var groups []cloud.SecurityGroup
	pager := ec2.NewDescribeSecurityGroupsPaginator(p.ec2c, &ec2.DescribeSecurityGroupsInput{})
	for pager.HasMorePages() {
		if err := p.wait(ctx); err != nil {
			return nil, err
		}
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, wrapCreds(err)
		}
		for _, sg := range page.SecurityGroups {
			group := cloud.SecurityGroup{
				ID:   aws.ToString(sg.GroupId),
				Name: aws.ToString(sg.GroupName),
			}
			for _, perm := range sg.IpPermissions {
				rule := cloud.IngressRule{
					Protocol: aws.ToString(perm.IpProtocol),
					FromPort: aws.ToInt32(perm.FromPort),
					ToPort:   aws.ToInt32(perm.ToPort),
				}
				if perm.FromPort == nil {
					rule.FromPort = -1
					rule.ToPort = -1
				}
				for _, r := range perm.IpRanges {
					rule.CIDRs = append(rule.CIDRs, aws.ToString(r.CidrIp))
				}
				group.Ingress = append(group.Ingress, rule)
			}
			groups = append(groups, group)
		}
	}
	return groups, nil
}

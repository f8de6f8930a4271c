// Package cloud defines the provider capability consumed by the analysis
// agents: narrow, read-only views over billing, organization, and resource
// inventory APIs, a closed error taxonomy, and a retry-wrapped call adapter.
//
// Implementations live in cloud/awsapi (real AWS SDK clients) and
// cloud/fixture (canned data for demos and tests). Agents depend only on the
// interfaces here so either backend can be swapped by configuration.
package cloud

import (
	"context"
	"time"
)

// ExternalID is the fixed external identifier passed on cross-account
// assume-role calls as confused-deputy protection. The member-account trust
// policies require it.
const ExternalID = "aws-operations-command-center"

type (
	// Account is a member account of an organization.
	Account struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Status string `json:"status"`
	}

	// CostQuery selects a billing window. Granularity follows the Cost
	// Explorer values ("DAILY", "MONTHLY").
	CostQuery struct {
		Start       time.Time
		End         time.Time
		Granularity string
	}

	// BillingGroup is one grouped amount within a time bucket, keyed by the
	// RECORD_TYPE dimension ("Usage", "Credit", ...).
	BillingGroup struct {
		RecordType string
		Amount     float64
	}

	// BillingBucket is one time bucket of a cost and usage response.
	BillingBucket struct {
		Start  string
		End    string
		Groups []BillingGroup
	}

	// Instance is a compute instance.
	Instance struct {
		ID       string `json:"id"`
		Type     string `json:"type"`
		State    string `json:"state"`
		VPCID    string `json:"vpc_id,omitempty"`
		SubnetID string `json:"subnet_id,omitempty"`
	}

	// DBInstance is a managed database instance.
	DBInstance struct {
		ID      string `json:"id"`
		Engine  string `json:"engine"`
		Class   string `json:"class"`
		Status  string `json:"status"`
		MultiAZ bool   `json:"multi_az"`
	}

	// Volume is a block-storage volume. State "available" means the
	// volume is not attached to any instance.
	Volume struct {
		ID     string `json:"id"`
		Type   string `json:"type"`
		SizeGB int32  `json:"size_gb"`
		State  string `json:"state"`
	}

	// Bucket is an object-storage bucket.
	Bucket struct {
		Name    string    `json:"name"`
		Created time.Time `json:"created"`
	}

	// VPC is a virtual network.
	VPC struct {
		ID        string `json:"id"`
		CIDR      string `json:"cidr"`
		IsDefault bool   `json:"is_default"`
	}

	// Subnet is a VPC subnet. Public reports whether instances launched in
	// it receive public addresses.
	Subnet struct {
		ID     string `json:"id"`
		VPCID  string `json:"vpc_id"`
		Public bool   `json:"public"`
	}

	// IngressRule is one inbound security-group rule. A FromPort of -1
	// means all ports.
	IngressRule struct {
		Protocol string   `json:"protocol"`
		FromPort int32    `json:"from_port"`
		ToPort   int32    `json:"to_port"`
		CIDRs    []string `json:"cidrs"`
	}

	// SecurityGroup is a security group with its inbound rules.
	SecurityGroup struct {
		ID      string        `json:"id"`
		Name    string        `json:"name"`
		Ingress []IngressRule `json:"ingress"`
	}
)

// Provider is the full capability set the agents consume. All operations are
// read-only. Implementations must return errors classifiable by Classify;
// they should not retry internally, retry policy belongs to Call.
type Provider interface {
	// CallerAccount returns the account id of the current credentials.
	CallerAccount(ctx context.Context) (string, error)

	// DescribeOrganization reports whether the current account is the
	// management account of an organization. A permission or
	// not-in-organization error means "no organization"; implementations
	// return (false, nil) in that case so callers need no special casing.
	DescribeOrganization(ctx context.Context) (bool, error)

	// ListAccounts returns the active accounts of the organization.
	ListAccounts(ctx context.Context) ([]Account, error)

	// AssumeRole exchanges the current identity for temporary credentials
	// scoped to the target account and returns a Provider bound to them.
	// The external id guards against confused-deputy misuse.
	AssumeRole(ctx context.Context, accountID, externalID string) (Provider, error)

	// GetCostAndUsage returns billing rows grouped by RECORD_TYPE.
	GetCostAndUsage(ctx context.Context, q CostQuery) ([]BillingBucket, error)

	// DescribeInstances lists compute instances.
	DescribeInstances(ctx context.Context) ([]Instance, error)

	// DescribeVolumes lists block-storage volumes.
	DescribeVolumes(ctx context.Context) ([]Volume, error)

	// DescribeDBInstances lists managed database instances.
	DescribeDBInstances(ctx context.Context) ([]DBInstance, error)

	// ListBuckets lists object-storage buckets.
	ListBuckets(ctx context.Context) ([]Bucket, error)

	// DescribeVPCs lists virtual networks.
	DescribeVPCs(ctx context.Context) ([]VPC, error)

	// DescribeSubnets lists the subnets of a VPC.
	DescribeSubnets(ctx context.Context, vpcID string) ([]Subnet, error)

	// DescribeSecurityGroups lists security groups with inbound rules.
	DescribeSecurityGroups(ctx context.Context) ([]SecurityGroup, error)
}

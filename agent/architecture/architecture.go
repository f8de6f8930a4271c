// Package architecture implements the infrastructure intelligence agent.
// Generation is deterministic: a rule table keyed by scale and environment
// selects sizing and safety flags, a CloudFormation template is rendered,
// and cost/security/reliability estimates come from fixed tables. Assessment
// inspects live resources through the provider.
package architecture

import (
	"context"
	"fmt"

	"github.com/awsops/commandcenter/agent"
	"github.com/awsops/commandcenter/cloud"
)

// sensitivePorts are flagged high severity when exposed to 0.0.0.0/0:
// SSH, RDP, MySQL, PostgreSQL.
var sensitivePorts = map[int32]bool{22: true, 3389: true, 3306: true, 5432: true}

type (
	// Parameters is the resolved sizing for a generated architecture.
	Parameters struct {
		Environment        string `json:"environment"`
		InstanceType       string `json:"instance_type"`
		DesiredCapacity    int    `json:"desired_capacity"`
		DBInstanceClass    string `json:"db_instance_class"`
		DBEngine           string `json:"db_engine"`
		DBStorageGB        int    `json:"db_storage"`
		MultiAZ            bool   `json:"multi_az"`
		DeletionProtection bool   `json:"deletion_protection"`
	}

	// Generated is the architecture agent result payload for generation.
	Generated struct {
		Type                 string     `json:"type"`
		Scale                string     `json:"scale"`
		Template             string     `json:"cloudformation_template"`
		Parameters           Parameters `json:"parameters"`
		EstimatedMonthlyCost float64    `json:"estimated_monthly_cost"`
		SecurityScore        int        `json:"security_score"`
		ReliabilityScore     int        `json:"reliability_score"`
		Analysis             Analysis   `json:"analysis"`
	}

	// Analysis lists qualitative strengths and follow-ups of a design.
	Analysis struct {
		Strengths       []string `json:"strengths"`
		Recommendations []string `json:"recommendations"`
	}

	// Assessment is the result payload for assessing existing
	// infrastructure.
	Assessment struct {
		VPCAnalysis    []VPCFinding    `json:"vpc_analysis"`
		SecurityIssues []SecurityIssue `json:"security_issues"`
	}

	// VPCFinding summarizes the subnet balance of one VPC.
	VPCFinding struct {
		VPCID          string `json:"vpc_id"`
		PublicSubnets  int    `json:"public_subnets"`
		PrivateSubnets int    `json:"private_subnets"`
		Recommendation string `json:"recommendation"`
	}

	// SecurityIssue is one over-permissive ingress finding. Port is -1
	// when the rule opens all ports.
	SecurityIssue struct {
		GroupID        string `json:"security_group_id"`
		Port           int32  `json:"port"`
		Issue          string `json:"issue"`
		Severity       string `json:"severity"`
		Recommendation string `json:"recommendation"`
	}
)

// Options configures the agent.
type Options struct {
	// Retry bounds provider call retries during assessment.
	Retry cloud.RetryConfig
}

// Agent generates architectures and assesses existing infrastructure.
type Agent struct {
	provider cloud.Provider
	opts     Options
}

// New constructs the architecture agent. The provider is only used by the
// assess action; generation is pure.
func New(provider cloud.Provider, opts Options) *Agent {
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = cloud.DefaultRetryConfig()
	}
	return &Agent{provider: provider, opts: opts}
}

// Name implements agent.Agent.
func (a *Agent) Name() string { return agent.InfrastructureIntelligence }

// Invoke implements agent.Agent. Supported actions: "generate_architecture"
// (default when requirements are present) and "assess_existing".
func (a *Agent) Invoke(ctx context.Context, req agent.Request) (*agent.Result, error) {
	action := req.Action
	if action == "" && req.Requirements != nil {
		action = "generate_architecture"
	}
	switch action {
	case "generate_architecture", "generate":
		if req.Requirements == nil {
			return agent.Fail(a.Name(), cloud.ReasonInvalidParameters, "architecture requirements are required"), nil
		}
		gen, err := Generate(*req.Requirements)
		if err != nil {
			return agent.Fail(a.Name(), cloud.ReasonInvalidParameters, err.Error()), nil
		}
		return agent.OK(a.Name(), gen), nil
	case "", "assess_existing", "assess":
		return a.assess(ctx), nil
	default:
		return agent.Fail(a.Name(), cloud.ReasonInvalidParameters,
			fmt.Sprintf("unknown action %q; available: generate_architecture, assess_existing", action)), nil
	}
}

// Generate resolves requirements against the rule table and renders the
// template. It is exported for the coordinator's budget refinement loop,
// which regenerates at a smaller scale without going through an envelope.
func Generate(req agent.Requirements) (*Generated, error) {
	archType := req.Type
	if archType == "" {
		archType = TypeWebApp3Tier
	}
	switch archType {
	case TypeWebApp3Tier, TypeServerlessAPI, TypeMicroservices, TypeDataPipeline:
	default:
		return nil, fmt.Errorf("unknown architecture type %q", req.Type)
	}

	scale := req.Scale
	if scale == "" {
		scale = "medium"
	}
	env := req.Environment
	if env == "" {
		env = "prod"
	}
	switch scale {
	case "small", "medium", "large":
	default:
		return nil, fmt.Errorf("unknown scale %q", req.Scale)
	}
	switch env {
	case "dev", "staging", "prod":
	default:
		return nil, fmt.Errorf("unknown environment %q", req.Environment)
	}

	params := selectParameters(req, scale, env)
	tmpl, err := render(archType, params)
	if err != nil {
		return nil, err
	}

	gen := &Generated{
		Type:                 archType,
		Scale:                scale,
		Template:             tmpl,
		Parameters:           params,
		EstimatedMonthlyCost: estimateCost(archType, params),
		SecurityScore:        securityScore(archType),
		ReliabilityScore:     reliabilityScore(archType, params),
	}
	gen.Analysis = analyze(archType, params)
	return gen, nil
}

// selectParameters is the sizing rule table keyed by scale and environment.
func selectParameters(req agent.Requirements, scale, env string) Parameters {
	p := Parameters{Environment: env}

	switch scale {
	case "small":
		p.InstanceType = "t3.micro"
		if env == "prod" {
			p.InstanceType = "t3.small"
		}
		p.DesiredCapacity = 2
		p.DBInstanceClass = "db.t3.micro"
		p.DBStorageGB = 20
	case "large":
		p.InstanceType = "c5.xlarge"
		p.DesiredCapacity = 6
		p.DBInstanceClass = "db.r5.large"
		p.DBStorageGB = 100
	default:
		p.InstanceType = "t3.medium"
		p.DesiredCapacity = 3
		p.DBInstanceClass = "db.t3.small"
		p.DBStorageGB = 50
	}

	p.DBEngine = req.Database
	if p.DBEngine == "" {
		p.DBEngine = "mysql"
	}
	if env == "prod" {
		p.MultiAZ = true
		p.DeletionProtection = true
	}
	return p
}

// Simplified on-demand monthly prices per resource class.
var (
	instancePrices = map[string]float64{
		"t3.micro": 8.5, "t3.small": 17, "t3.medium": 34,
		"c5.large": 73, "c5.xlarge": 146,
	}
	dbPrices = map[string]float64{
		"db.t3.micro": 15, "db.t3.small": 30, "db.r5.large": 180,
	}
)

func estimateCost(archType string, p Parameters) float64 {
	switch archType {
	case TypeWebApp3Tier:
		cost, ok := instancePrices[p.InstanceType]
		if !ok {
			cost = instancePrices["t3.medium"]
		}
		cost *= float64(p.DesiredCapacity)
		db, ok := dbPrices[p.DBInstanceClass]
		if !ok {
			db = dbPrices["db.t3.small"]
		}
		cost += db
		cost += 23 // application load balancer
		cost += 50 // storage and data transfer
		return cost
	case TypeServerlessAPI:
		return 25
	case TypeMicroservices:
		return 120
	case TypeDataPipeline:
		return 45
	}
	return 0
}

func securityScore(archType string) int {
	scores := map[string]int{
		TypeWebApp3Tier:   85,
		TypeServerlessAPI: 90,
		TypeMicroservices: 80,
		TypeDataPipeline:  75,
	}
	if s, ok := scores[archType]; ok {
		return s
	}
	return 75
}

func reliabilityScore(archType string, p Parameters) int {
	switch archType {
	case TypeServerlessAPI:
		return 95
	case TypeWebApp3Tier:
		score := 80
		if p.MultiAZ {
			score += 10
		}
		if p.DesiredCapacity >= 2 {
			score += 5
		}
		if score > 100 {
			score = 100
		}
		return score
	}
	return 70
}

func analyze(archType string, p Parameters) Analysis {
	var an Analysis
	if archType == TypeWebApp3Tier {
		an.Strengths = append(an.Strengths,
			"Auto Scaling for elasticity",
			"Load balancer for traffic distribution",
			"Private subnets for application servers",
		)
		if p.MultiAZ {
			an.Strengths = append(an.Strengths, "Database Multi-AZ for disaster recovery")
		} else {
			an.Recommendations = append(an.Recommendations, "Enable Multi-AZ for production database")
		}
		if len(p.InstanceType) > 2 && p.InstanceType[:2] == "t3" {
			an.Recommendations = append(an.Recommendations, "Consider compute-optimized instances for CPU-intensive workloads")
		}
	}
	return an
}

// assess inspects existing infrastructure: subnet balance per VPC and
// over-permissive security group ingress.
func (a *Agent) assess(ctx context.Context) *agent.Result {
	assessment := &Assessment{}

	vpcRes := cloud.Call(ctx, a.opts.Retry, "ec2", "DescribeVpcs", a.provider.DescribeVPCs)
	if !vpcRes.Success {
		return agent.Fail(a.Name(), vpcRes.Err.Reason(), vpcRes.Err.Error())
	}
	for _, vpc := range vpcRes.Data {
		subRes := cloud.Call(ctx, a.opts.Retry, "ec2", "DescribeSubnets", func(ctx context.Context) ([]cloud.Subnet, error) {
			return a.provider.DescribeSubnets(ctx, vpc.ID)
		})
		if !subRes.Success {
			// Partial failure: keep assessing the remaining VPCs.
			continue
		}
		finding := VPCFinding{VPCID: vpc.ID}
		for _, subnet := range subRes.Data {
			if subnet.Public {
				finding.PublicSubnets++
			} else {
				finding.PrivateSubnets++
			}
		}
		if finding.PublicSubnets > 0 && finding.PrivateSubnets > 0 {
			finding.Recommendation = "Good architecture"
		} else {
			finding.Recommendation = "Consider adding private subnets for better security"
		}
		assessment.VPCAnalysis = append(assessment.VPCAnalysis, finding)
	}

	sgRes := cloud.Call(ctx, a.opts.Retry, "ec2", "DescribeSecurityGroups", a.provider.DescribeSecurityGroups)
	if !sgRes.Success {
		return agent.Fail(a.Name(), sgRes.Err.Reason(), sgRes.Err.Error())
	}
	for _, sg := range sgRes.Data {
		for _, rule := range sg.Ingress {
			if !openToWorld(rule) {
				continue
			}
			assessment.SecurityIssues = append(assessment.SecurityIssues, SecurityIssue{
				GroupID:        sg.ID,
				Port:           rule.FromPort,
				Issue:          portLabel(rule.FromPort) + " open to 0.0.0.0/0",
				Severity:       portSeverity(rule.FromPort),
				Recommendation: "Restrict source IP ranges",
			})
		}
	}

	return agent.OK(a.Name(), assessment)
}

func openToWorld(rule cloud.IngressRule) bool {
	for _, cidr := range rule.CIDRs {
		if cidr == "0.0.0.0/0" {
			return true
		}
	}
	return false
}

// portSeverity follows the sensitive-port policy: remote administration and
// database ports exposed to the world are high severity, anything else
// medium. A rule covering all ports necessarily covers a sensitive one.
func portSeverity(port int32) string {
	if port < 0 || sensitivePorts[port] {
		return "high"
	}
	return "medium"
}

func portLabel(port int32) string {
	if port < 0 {
		return "All ports"
	}
	return fmt.Sprintf("Port %d", port)
}

// Command opsctl runs one-shot analyses from the terminal and prints the
// result envelope as JSON. With -demo it runs against canned data and needs
// no credentials.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"goa.design/clue/log"

	"github.com/awsops/commandcenter/agent"
	"github.com/awsops/commandcenter/agent/architecture"
	"github.com/awsops/commandcenter/agent/cost"
	"github.com/awsops/commandcenter/agent/inventory"
	"github.com/awsops/commandcenter/cache"
	"github.com/awsops/commandcenter/cloud"
	"github.com/awsops/commandcenter/cloud/awsapi"
	"github.com/awsops/commandcenter/cloud/fixture"
	"github.com/awsops/commandcenter/config"
	"github.com/awsops/commandcenter/orchestrator"
)

func main() {
	var (
		configF = flag.String("config", "", "Path to YAML configuration file")
		demoF   = flag.Bool("demo", false, "Run against canned demo data")
		actionF = flag.String("action", "full", "Analysis to run: full, cost, operations, assess, design")
		typeF   = flag.String("type", architecture.TypeWebApp3Tier, "Architecture type for design")
		scaleF  = flag.String("scale", "medium", "Architecture scale for design")
		envF    = flag.String("env", "prod", "Target environment for design")
		budgetF = flag.Float64("budget", 0, "Monthly budget limit for design (0 disables)")
	)
	flag.Parse()

	ctx := log.Context(context.Background(), log.WithFormat(log.FormatTerminal))

	cfg, err := config.Load(*configF)
	if err != nil {
		log.Fatal(ctx, err)
	}
	if *demoF {
		cfg.Provider = "fixture"
	}

	coord, err := buildCoordinator(ctx, cfg)
	if err != nil {
		log.Fatal(ctx, err)
	}

	var res *agent.Result
	switch *actionF {
	case "full":
		res = coord.FullAnalysis(ctx)
	case "cost":
		res = coord.InvokeAgent(ctx, agent.CostIntelligence, agent.Request{Action: "analyze"})
	case "operations":
		res = coord.InvokeAgent(ctx, agent.OperationsIntelligence, agent.Request{})
	case "assess":
		res = coord.InvokeAgent(ctx, agent.InfrastructureIntelligence, agent.Request{Action: "assess_existing"})
	case "design":
		res = coord.SmartArchitectureDesign(ctx, agent.Requirements{
			Type:        *typeF,
			Scale:       *scaleF,
			Environment: *envF,
			BudgetLimit: *budgetF,
		})
	default:
		log.Fatal(ctx, fmt.Errorf("unknown action %q (valid: full, cost, operations, assess, design)", *actionF))
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		log.Fatal(ctx, err)
	}
	fmt.Println(string(out))
	if !res.Success {
		os.Exit(1)
	}
}

func buildCoordinator(ctx context.Context, cfg config.Config) (*orchestrator.Coordinator, error) {
	var provider cloud.Provider
	if cfg.Provider == "fixture" {
		provider = fixture.Demo()
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("load AWS configuration: %w", err)
		}
		provider = awsapi.New(awsCfg, awsapi.Options{RoleName: cfg.RoleName})
	}

	retry := cloud.RetryConfig{MaxAttempts: cfg.MaxRetries, BaseDelay: cfg.RetryBaseDelay}
	registry := agent.NewRegistry(
		cost.New(provider, cache.New(cfg.CacheTTL), cost.Options{
			WindowDays: cfg.CostWindowDays,
			Retry:      retry,
			CacheTTL:   cfg.CacheTTL,
		}),
		inventory.New(provider, inventory.Options{
			Workers:     cfg.ScanWorkers,
			ScanTimeout: cfg.ScanTimeout,
			Retry:       retry,
		}),
		architecture.New(provider, architecture.Options{Retry: retry}),
	)
	return orchestrator.New(registry), nil
}

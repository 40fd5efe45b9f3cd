package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oarkflow/guard"
	"github.com/oarkflow/guard/logger"
	"github.com/oarkflow/guard/stores"
	"gopkg.in/yaml.v3"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "convert":
		handleConvert()
	case "validate":
		handleValidate()
	case "stats":
		handleStats()
	case "check-access":
		handleCheckAccess()
	case "check-permission":
		handleCheckPermission()
	case "check-policy":
		handleCheckPolicy()
	case "compliance":
		handleCompliance()
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("guard - access control and security policy tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  guard convert <input> <output>                              - Convert between YAML and JSON")
	fmt.Println("  guard validate <file>                                       - Validate configuration")
	fmt.Println("  guard stats <file>                                          - Show configuration statistics")
	fmt.Println("  guard check-access <file> <type> <id> <user> [k=v ...]      - Evaluate the ACL")
	fmt.Println("  guard check-permission <file> <user> <resource> <level>     - Evaluate a permission level")
	fmt.Println("  guard check-policy <file> <policy> [k=v ...]                - Evaluate a security policy")
	fmt.Println("  guard compliance <file> <user> [k=v ...]                    - Run compliance checks")
	fmt.Println()
	fmt.Println("Attribute values are read as YAML scalars or flow lists, e.g. roles=[admin,dev] file_size_mb=12")
	fmt.Println("Set GUARD_VERBOSE=1 to log decisions to stderr.")
}

func handleConvert() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: guard convert <input> <output>")
		os.Exit(1)
	}
	inputFile, outputFile := os.Args[2], os.Args[3]

	cfg := mustLoad(inputFile)
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(outputFile), ".json") {
		data, err = cfg.ToJSON()
	} else {
		data, err = cfg.ToYAML()
	}
	if err != nil {
		fmt.Printf("Error encoding config: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(outputFile, data, 0o644); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Converted %s -> %s\n", inputFile, outputFile)
}

func handleValidate() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: guard validate <file>")
		os.Exit(1)
	}
	cfg := mustLoad(os.Args[2])
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Version: %d\n", cfg.Version)
	fmt.Printf("  Rules: %d\n", len(cfg.ACL.Rules))
	fmt.Printf("  Permission overrides: %d\n", len(cfg.Permissions.Overrides))
	fmt.Printf("  Policies: %d\n", len(cfg.Policies))
}

func handleStats() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: guard stats <file>")
		os.Exit(1)
	}
	cfg := mustLoad(os.Args[2])
	ctx := context.Background()
	engine, backends := mustEngine(ctx, cfg)
	defer closeAll(engine, backends)

	fmt.Printf("Backends\n")
	fmt.Printf("  Cache: %s\n", orDefault(cfg.Cache.Backend, guard.BackendMemory))
	fmt.Printf("  Audit: %s\n", orDefault(cfg.Audit.Backend, guard.BackendMemory))
	fmt.Printf("  Actors: %s\n", orDefault(cfg.Actors.Backend, guard.BackendMemory))

	acl := engine.ACL()
	fmt.Printf("\nACL: %d resource buckets\n", acl.Len())
	for _, key := range acl.Resources() {
		parts := strings.SplitN(key, ":", 2)
		rules := acl.GetRules(parts[0], parts[1])
		fmt.Printf("  %s: %d rules\n", key, len(rules))
		for _, r := range rules {
			fmt.Printf("    %-5s %s\n", r.Type, r.Principal)
		}
	}

	matrix := engine.Isolation().Matrix()
	fmt.Printf("\nPermission matrix\n")
	for _, class := range []guard.ActorClass{guard.ActorInternal, guard.ActorExternal} {
		for _, res := range matrix.ResourceTypes(class) {
			fmt.Printf("  %-8s %-8s %s\n", class, res, matrix.Default(class, res))
		}
	}

	fmt.Printf("\nPolicies\n")
	policies := engine.Policies().GetAllPolicies()
	for _, t := range engine.Policies().Types() {
		p := policies[t]
		fmt.Printf("  %-18s enabled=%v\n", t, p.Enabled)
	}
}

func handleCheckAccess() {
	if len(os.Args) < 6 {
		fmt.Println("Usage: guard check-access <file> <type> <id> <user> [k=v ...]")
		os.Exit(1)
	}
	cfg := mustLoad(os.Args[2])
	ctx := context.Background()
	engine, backends := mustEngine(ctx, cfg)
	defer closeAll(engine, backends)

	dec := engine.ExplainAccess(ctx, os.Args[3], os.Args[4], os.Args[5], mustAttrs(os.Args[6:]))
	finish(engine, backends, printDecision(dec.Allowed, dec.Reason))
}

func handleCheckPermission() {
	if len(os.Args) < 6 {
		fmt.Println("Usage: guard check-permission <file> <user> <resource> <level>")
		os.Exit(1)
	}
	required, err := guard.ParsePermissionLevel(os.Args[5])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	cfg := mustLoad(os.Args[2])
	ctx := context.Background()
	engine, backends := mustEngine(ctx, cfg)
	defer closeAll(engine, backends)

	userID, resource := os.Args[3], os.Args[4]
	allowed := engine.CheckPermission(ctx, userID, resource, required)
	level := engine.Isolation().EffectiveLevel(ctx, userID, resource)
	reason := fmt.Sprintf("%s user has %s, needs %s", engine.Isolation().ActorClass(ctx, userID), level, required)
	finish(engine, backends, printDecision(allowed, reason))
}

func handleCheckPolicy() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: guard check-policy <file> <policy> [k=v ...]")
		os.Exit(1)
	}
	cfg := mustLoad(os.Args[2])
	ctx := context.Background()
	engine, backends := mustEngine(ctx, cfg)
	defer closeAll(engine, backends)

	res := engine.EvaluatePolicy(ctx, guard.PolicyType(os.Args[3]), mustAttrs(os.Args[4:]))
	finish(engine, backends, printDecision(res.Allowed, res.Reason))
}

func handleCompliance() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: guard compliance <file> <user> [k=v ...]")
		os.Exit(1)
	}
	cfg := mustLoad(os.Args[2])
	ctx := context.Background()
	engine, backends := mustEngine(ctx, cfg)
	defer closeAll(engine, backends)

	report := engine.CheckCompliance(ctx, os.Args[3], mustAttrs(os.Args[4:]))
	if len(report.Results) == 0 {
		fmt.Println("No compliance checks apply to these attributes")
		return
	}
	for _, r := range report.Results {
		status := "ok"
		if !r.Compliant {
			status = "VIOLATION"
		}
		fmt.Printf("  %-15s %s\n", r.Check, status)
		for _, v := range r.Violations {
			fmt.Printf("    - %s\n", v)
		}
	}
	if report.Compliant {
		fmt.Println("COMPLIANT")
		return
	}
	fmt.Println("NON-COMPLIANT")
	finish(engine, backends, 2)
}

func mustLoad(filename string) *guard.Config {
	cfg, err := guard.NewConfigLoader().LoadFile(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func mustEngine(ctx context.Context, cfg *guard.Config) (*guard.Engine, *stores.Backends) {
	var log logger.Logger = logger.NewNullLogger()
	if os.Getenv("GUARD_VERBOSE") != "" {
		log = logger.NewPhusluLogger()
	}
	engine, backends, err := stores.NewEngine(ctx, cfg, guard.WithLogger(log))
	if err != nil {
		fmt.Printf("Error building engine: %v\n", err)
		os.Exit(1)
	}
	return engine, backends
}

func closeAll(engine *guard.Engine, backends *stores.Backends) {
	_ = engine.Close()
	_ = backends.Close()
}

// parseAttrs reads k=v pairs, decoding each value as a YAML scalar or flow list.
func parseAttrs(args []string) (guard.Attrs, error) {
	attrs := guard.Attrs{}
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("attribute %q is not k=v", arg)
		}
		var val any
		if err := yaml.Unmarshal([]byte(v), &val); err != nil {
			return nil, fmt.Errorf("attribute %s: %w", k, err)
		}
		if val == nil {
			val = v
		}
		attrs[k] = val
	}
	return attrs, nil
}

func mustAttrs(args []string) guard.Attrs {
	attrs, err := parseAttrs(args)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	return attrs
}

// printDecision prints the outcome and returns the process exit code.
func printDecision(allowed bool, reason string) int {
	if allowed {
		fmt.Printf("ALLOW (%s)\n", reason)
		return 0
	}
	fmt.Printf("DENY (%s)\n", reason)
	return 2
}

// finish flushes the engine before exiting with a non-zero code.
func finish(engine *guard.Engine, backends *stores.Backends, code int) {
	if code == 0 {
		return
	}
	closeAll(engine, backends)
	os.Exit(code)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Package config handles loading and validating BenchDash configuration.
//
// This package manages:
//   - Default values for every section
//   - Loading configuration from YAML files
//   - Overriding with BENCHDASH_* environment variables
//   - Validation of required fields and ranges
//
// Security Considerations:
//   - Broker passwords and InfluxDB tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/benchdash.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Telemetry.PollInterval)
//
// An empty path loads defaults plus environment overrides, which is enough
// to run against simulated boards.
package config

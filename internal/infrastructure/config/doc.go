// Package config handles loading and validating Gray Logic Stage configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with GRAYSTAGE_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token, JWT secret) should be
//     set via environment variables
//   - An empty JWT secret leaves event injection unauthenticated
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Stage.Manifest)
package config

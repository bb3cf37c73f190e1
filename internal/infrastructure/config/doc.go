// Package config handles loading and validating cync-lan-core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (CYNC_LAN_*)
//   - Validation of required fields
//   - Default value handling
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config

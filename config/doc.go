// Package config provides application configuration management.
//
// The config package handles loading and validation of the application's
// configuration from YAML files and PLOTBOX_-prefixed environment variables.
// It covers server settings, sandbox limits, the run ledger location and the
// per-language image, script file name and blocked keyword lists.
//
// Usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Sandbox backend: %s\n", cfg.Sandbox.Backend)
package config

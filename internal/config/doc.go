// Package config provides configuration management for the message router.
//
// Configuration is loaded from environment variables and validated on startup.
// All configuration options have sensible defaults for development. Routing
// policy rules and the template catalog are loaded separately from the YAML
// files named by POLICY_FILE and TEMPLATE_FILE.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg)
package config

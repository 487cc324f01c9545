// Package config provides loading and environment overlay for the service
// configuration: a Default() baseline, optional JSON file load, and CHATQ_*
// environment variables on top.
//
// Example:
//
//	config.LoadDotenv()
//	cfg, err := config.Load("/etc/chatqueue.json")
//	if err != nil { ... }
//	config.FromEnv(&cfg)
package config

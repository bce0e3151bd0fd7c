// Command aegis runs the agent coordination service: the gateway's
// capability registry and discovery API plus the principal's orchestration
// API, served over HTTP with a separate Prometheus metrics listener.
//
// Usage:
//
//	aegis serve [--config config.yaml]   start the service
//	aegis migrate <up|down|status|...>   manage the registry database schema
//	aegis health [--addr URL]            probe a running instance
//	aegis version                        print version information
package main

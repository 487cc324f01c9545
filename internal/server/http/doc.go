// Package httpserver exposes the webhook intake and the queue ops surface
// over JSON/HTTP: platform webhooks, stats, on-demand lease recovery,
// dead-letter browsing with optional CEL filters, health, and Prometheus
// metrics.
package httpserver

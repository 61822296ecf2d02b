// Package api hosts the operator HTTP surface started alongside a crawl run.
// Routes:
//   - GET /healthz and /readyz for liveness and dependency probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/run for the live run counters.
package api

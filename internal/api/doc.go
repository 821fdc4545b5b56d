// Package api hosts the status server operators use while a harvest runs.
// Routes:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/run for the run summary, /v1/run/windows?stage= for windows.
package api

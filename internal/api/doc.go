// Package api hosts the operator HTTP surface that runs alongside a
// collection or ingestion run:
//   - GET /healthz and /readyz for probes; readiness runs the registered checks.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/run for the progress of the current run.
package api

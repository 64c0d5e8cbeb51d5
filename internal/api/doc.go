// Package api hosts the optional status server that runs alongside a crawl.
// Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /status for the live dispatcher snapshot.
//   - GET /status/namespaces/{ns} for one namespace's outcome.
package api

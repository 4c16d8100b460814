// Package prometheus serves goToken engine metrics in the Prometheus text
// exposition format.
//
// Counters are exported as labeled families, for example
//
//	gotoken_validations_total{outcome="expired"} 4
//	gotoken_revocations_total{trigger="group"} 1
//
// and validation latency as the gotoken_validate_latency_seconds histogram. Nothing
// is registered globally; mount [Exporter.Handler] where the scraper expects it.
package prometheus

// Package internaldefs holds the metric families, help strings and bucket bounds
// shared by the Prometheus and OTel exporters.
//
// Engine counters are grouped by operation: the eight validation outcomes become one
// gotoken_validations_total family with an outcome label, and so on.
package internaldefs

// Package otel reports goToken engine metrics through an OpenTelemetry meter.
//
// Each counter family becomes one Int64ObservableCounter whose data points carry
// the family's label as an attribute (result, outcome or trigger). Validation
// latency is reported as cumulative gauges keyed by an "le" attribute. All
// instruments are fed by a single callback that reads
// [goToken.Engine.MetricsSnapshot].
package otel

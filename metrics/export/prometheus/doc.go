// Package prometheus exposes authcore metrics to Prometheus scrapes.
//
// [Exporter] implements prometheus.Collector over the engine's lock-free
// metric snapshot, emitting const counters and const histograms on each
// scrape. [Exporter.Handler] serves a private registry.
//
// # What this package must NOT do
//
//   - Register with the global default registry.
//   - Mutate engine state.
package prometheus

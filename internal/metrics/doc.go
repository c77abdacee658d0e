// Package metrics provides Prometheus instrumentation for the cache
// engine. The collector registers lookup, latency, eviction, promotion,
// and occupancy metrics on a private registry; the engine itself never
// binds a port, so applications that want an HTTP endpoint wrap
// Collector.Registry() with promhttp themselves.
package metrics

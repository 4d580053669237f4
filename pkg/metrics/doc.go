/*
Package metrics defines and registers the Prometheus instrumentation for the
oneclient core: event engine throughput, metadata and helper cache hit
rates, transport buffer depth, scheduler activity, and session lifecycle
outcomes. Metrics are registered against the default Prometheus registry at
package init and exposed via Handler(), normally mounted by pkg/diag.

Timer is a small helper for the common "start now, observe duration into a
histogram later" pattern used throughout the core's operation call sites.
*/
package metrics

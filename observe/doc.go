// Package observe provides observability primitives for decorated calls.
//
// It offers a JSON structured Logger, OpenTelemetry tracing and metrics
// wrappers keyed by CallMeta, and a Middleware that applies all three to a
// CallFunc. Exporter selection lives in the exporters subpackage.
//
// Nothing here performs the calls it observes; the resilience package wires
// Middleware around its decorated callables.
package observe

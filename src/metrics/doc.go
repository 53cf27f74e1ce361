// Package metrics holds the instruments reported by the consensus core.
//
// A Registry is created once and passed to the components that report, so
// tests can build isolated instances. Nop returns a Registry backed by the
// OpenTelemetry no-op meter; components behave identically with or without a
// real sink.
package metrics

// Package metrics provides build observability hooks for photobuilder.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics never need nil checks at call sites:
//
//	svc := build.NewService(cfg, build.WithRecorder(metrics.NewPrometheusRecorder(reg)))
//
// The Prometheus implementation can be scraped through HTTPHandler (the
// preview server mounts it at /metrics) or dumped after a one-shot CLI run
// with WriteTextfile for the node_exporter textfile collector.
package metrics

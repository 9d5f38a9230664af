// Package monitor exposes the metrics of the database process over HTTP.
//
// The Monitor serves /metrics in the Prometheus text format (all metrics registered with
// github.com/VictoriaMetrics/metrics, including the bridge server's request and stream
// metrics) and /healthz backed by a HealthFunc. It is optional and only started when a
// metrics endpoint is configured. With debug enabled every request is logged.
package monitor

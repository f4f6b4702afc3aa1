// Package publish delivers poller updates to the outside world: Prometheus
// gauges behind a /metrics handler and MQTT state topics.
package publish

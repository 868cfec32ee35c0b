// Package service is the thin façade over the inference engine: frame
// ingest, result retrieval, cleaning-task binding, status reporting and
// lifecycle. It is an explicit instance passed by handle; nothing in the
// package is process-global. Domain events are optionally published to NATS
// and silently disabled when no connection is configured.
package service

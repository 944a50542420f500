// Package ingest reads instrument measurements from Prometheus text
// exposition format, the convention for scale/instrument exporters. Each
// sample of the configured metric becomes one Measurement; the scope key is
// built from configured labels (instrument, workstation, technician) and
// exposition timestamps are honoured when present.
package ingest

package main

import (
	"os"

	"github.com/prometheus/common/expfmt"

	"metabostat/internal/errors"
	"metabostat/internal/metrics"
)

// writeMetrics dumps the run's registry in the Prometheus text format, suitable for the
// node_exporter textfile collector
func writeMetrics(path string, recorder *metrics.Recorder) error {
	families, err := recorder.Registry().Gather()
	if err != nil {
		return errors.Wrap(err, "gather metrics")
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.IOError(path, err)
	}
	defer f.Close()

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(f, mf); err != nil {
			return errors.IOError(path, err)
		}
	}
	return nil
}

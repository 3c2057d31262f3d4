// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// pipelineRunsTotal counts full pipeline runs by outcome.
	// Labels: status (completed, failed)
	pipelineRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowdiff",
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Total analysis pipeline runs by outcome",
	}, []string{"status"})

	// pipelineFilesTotal counts files analyzed by language.
	pipelineFilesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowdiff",
		Subsystem: "pipeline",
		Name:      "files_total",
		Help:      "Total files analyzed by language",
	}, []string{"language"})

	// pipelineSymbolsTotal counts symbols extracted by language.
	pipelineSymbolsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowdiff",
		Subsystem: "pipeline",
		Name:      "symbols_total",
		Help:      "Total symbols extracted by language",
	}, []string{"language"})

	// pipelineDurationSeconds measures end-to-end pipeline duration.
	pipelineDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "flowdiff",
		Subsystem: "pipeline",
		Name:      "duration_seconds",
		Help:      "End-to-end analysis pipeline duration",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})
)

// recordRun records one completed or failed pipeline run.
func recordRun(status string, durationSec float64) {
	pipelineRunsTotal.WithLabelValues(status).Inc()
	pipelineDurationSeconds.Observe(durationSec)
}

// recordLanguage records per-language file and symbol counts for one run.
func recordLanguage(language string, files, symbols int) {
	pipelineFilesTotal.WithLabelValues(language).Add(float64(files))
	pipelineSymbolsTotal.WithLabelValues(language).Add(float64(symbols))
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package core

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for symbol analysis.
var (
	tracer = otel.Tracer("aleutian.flowdiff")
	meter  = otel.Meter("aleutian.flowdiff")
)

// Metrics for per-file analysis operations.
var (
	analyzeLatency   metric.Float64Histogram
	analyzeTotal     metric.Int64Counter
	symbolsExtracted metric.Int64Histogram
	analyzeErrors    metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		analyzeLatency, err = meter.Float64Histogram(
			"flowdiff_analyze_duration_seconds",
			metric.WithDescription("Duration of per-file symbol extraction"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		analyzeTotal, err = meter.Int64Counter(
			"flowdiff_analyze_total",
			metric.WithDescription("Total number of per-file analysis operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		symbolsExtracted, err = meter.Int64Histogram(
			"flowdiff_symbols_extracted",
			metric.WithDescription("Number of symbols extracted per file"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		analyzeErrors, err = meter.Int64Counter(
			"flowdiff_analyze_errors_total",
			metric.WithDescription("Total number of per-file analysis failures"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// RecordAnalyzeMetrics records metrics for one per-file analysis.
//
// Thread Safety: safe for concurrent use.
func RecordAnalyzeMetrics(ctx context.Context, language string, duration time.Duration, symbolCount int, success bool) {
	if err := initMetrics(); err != nil {
		return // Silently skip if metrics init failed
	}

	attrs := metric.WithAttributes(
		attribute.String("language", language),
		attribute.Bool("success", success),
	)

	analyzeLatency.Record(ctx, duration.Seconds(), attrs)
	analyzeTotal.Add(ctx, 1, attrs)

	if success {
		symbolsExtracted.Record(ctx, int64(symbolCount),
			metric.WithAttributes(attribute.String("language", language)),
		)
	} else {
		analyzeErrors.Add(ctx, 1,
			metric.WithAttributes(attribute.String("language", language)),
		)
	}
}

// StartAnalyzeSpan creates a span for a per-file analysis operation.
// The caller must call span.End().
func StartAnalyzeSpan(ctx context.Context, language, filePath string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Analyzer.BuildSymbolTable",
		trace.WithAttributes(
			attribute.String("flowdiff.language", language),
			attribute.String("flowdiff.file", filePath),
		),
	)
}

// SetAnalyzeSpanResult sets result attributes on an analysis span.
func SetAnalyzeSpanResult(span trace.Span, symbolCount int) {
	span.SetAttributes(
		attribute.Int("flowdiff.symbol_count", symbolCount),
	)
}

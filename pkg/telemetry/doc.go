// Package telemetry provides logging, tracing and metrics for genprop.
//
// Logging uses zerolog, tracing uses OpenTelemetry and metrics use a private
// Prometheus registry. All three are bundled in a Telemetry value that travels
// through a context.Context.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	cfg.Metrics.ListenAddress = ":9090"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	if err := tel.StartMetricsServer(); err != nil {
//	    return err
//	}
//	ctx = tel.WithContext(ctx)
//
// Code that receives ctx reads the logger back with FromContext. Without a
// Telemetry in the context every helper degrades to a no-op, so library code
// can be instrumented unconditionally.
//
// # Samples
//
// Each sample processed by a result table build runs inside a sample context:
//
//	sctx := telemetry.WithSampleContext(ctx, "genome-A")
//	flushed, err := work(sctx)
//	telemetry.EndSampleContext(sctx, flushed, err)
//
// This opens a "sample.assign" span, tags the logger with the sample name and
// records genprop_samples_assigned_total, genprop_sample_assignment_duration_seconds
// and genprop_cache_identifiers_flushed_total when the sample ends.
//
// # Exporters
//
// Tracing supports "otlp" (gRPC), "stdout" and "none". When tracing is
// disabled spans are never sampled.
package telemetry

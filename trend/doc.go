// Package trend turns a driver's race history into a lap-pace trend.
//
// The pipeline has four stages:
//   - Resolver: looks up (and caches for RecordTTL) the fastest known lap for a
//     car/track combination, fanning out in bounded groups of BatchSize.
//   - Collector: joins the ordered race history with resolved records and the
//     driver's own best race lap per subsession, producing percentage-over-record
//     points.
//   - Smooth: robust LOESS (tricube neighborhoods, bisquare robustness rounds)
//     evaluated on a fixed-resolution grid and lightly post-averaged.
//   - Engine: wires the above to a HistoryStore and a Gateway and renders the
//     result with the chart package.
//
// Partial upstream failures never surface as errors: a failing chunk yields no
// rows, a failing record lookup is cached as "not found", and a failing
// session lookup drops that race from the series.
package trend

// Package crawler defines the core types, interfaces, and error taxonomy shared
// by the namespace title crawler: namespaces, page batches, per-namespace
// results, and the aggregate report.
package crawler

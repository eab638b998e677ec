// Package adapter defines how hashsync pulls raw event candidates out of an
// external source.
//
// An Adapter fetches one source and returns loosely normalized RawEvents plus
// an optional structural signature used for change detection. Per-record parse
// problems are reported in FetchResult.Errors; only a failure to reach or read
// the source is returned as an error. Adapters are looked up by the source's
// type through a Registry.
//
// The json_feed adapter ships with hashsync. Site-specific HTML, calendar and
// spreadsheet adapters register the same way.
package adapter

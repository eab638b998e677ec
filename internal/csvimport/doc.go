// Package csvimport reconciles externally kept attendance spreadsheets with
// a kennel's roster and events.
//
// The pipeline is Parse, MatchNames, MatchColumns and BuildRecords. Each step
// is a pure function over its inputs; Importer wires them to the store.
package csvimport

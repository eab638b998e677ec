// Package scrape runs one source's adapter and merges the resulting
// candidates into the event store.
//
// Each candidate is normalized, fingerprinted, resolved to a kennel, and
// create-or-updated by its natural key inside its own transaction, so one bad
// candidate never stops the rest of the run. Unresolved tags, tags that resolve
// to kennels the source is not linked to, per-field fill rates, and a
// structural hash are recorded in the run's scrape log and handed to a
// RunObserver (the anomaly detector). Only a failed fetch marks a run
// unsuccessful.
//
// A per-source file lock keeps two scrapes of the same source from
// interleaving; different sources scrape concurrently.
package scrape

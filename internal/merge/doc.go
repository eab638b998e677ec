// Package merge consolidates a duplicate kennel into its canonical twin.
//
// Every table that references a kennel is declared once in the ownership
// graph with the policy applied to the source kennel's rows: reassign them,
// dedupe colliding rows and then reassign the rest, or delete them. A merge
// walks the graph inside a single transaction and finishes by deleting the
// source kennel and proving nothing still references it.
package merge

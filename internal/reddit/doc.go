// Package reddit defines the records, errors and collaborator interfaces shared
// by the collection and ingestion pipeline: authors, submissions and their
// flattened comment trees, plus the stats reported at the end of each phase.
package reddit

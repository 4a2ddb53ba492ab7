// Package artifact locates, renames and publishes the file a run produced.
//
// After a container exits, the Resolver lists the run's scratch directory,
// selects exactly one artifact (the fixed name for the requested kind, else
// the first file in name order with a png or html extension), renames it to
// a fresh <uuid>.<ext> id and purges everything else. Publish then moves it
// into the served output root. Store hands out scratch directories, either
// one per run under .runs/ or a single lock-protected .shared/ directory.
package artifact

// Package feed is the change stream over the document store: per-collection
// create/update/delete events carrying the full document, with an in-process
// broker and a Redis pub/sub transport for multi-instance deployments.
package feed

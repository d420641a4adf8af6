// Package api exposes the HTTP front-end of the router daemon: batch
// submission and queries, commitment lookups and discards, pause control,
// interface introspection and the metrics endpoint.
package api

// Package store provides the Redis and Kafka backed implementations of the
// tracking record store, the migration state store and the tracking mirror.
package store

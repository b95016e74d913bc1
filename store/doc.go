// Package store provides the task status store: a TTL'd key-value
// view of each task's lifecycle plus its retained result. Redis backs
// production; an in-memory implementation backs tests and local runs.
package store

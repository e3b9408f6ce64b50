// ABOUTME: Decode cache package
// ABOUTME: Memoizes decoded prompt audio by payload identity
// Package cache stores decoded buffers so repeated prompts are decoded once.
//
// Eviction is by insertion order, not recency: when an insert would exceed
// the maximum, the oldest 20% of entries (at least one) are removed first.
package cache

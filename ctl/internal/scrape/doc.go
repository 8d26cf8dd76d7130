// Package scrape reads a rulstack-server /metrics endpoint and condenses the
// rulstack_* families into a Stats value for rulctl stats.
package scrape

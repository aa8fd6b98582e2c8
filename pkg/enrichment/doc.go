// Package enrichment decides when search results deserve an eager product
// detail fetch and runs those fetches with bounded concurrency.
package enrichment

// Package pagination provides parallel batch fetching for paginated
// datasets such as rover photo archives.
//
// The upstream reports the total page count alongside the first page; this
// package fans the remaining pages out across a worker pool and assembles
// the results.
//
// Example usage:
//
//	config := pagination.DefaultConfig()
//	fetcher := pagination.NewBatchFetcher(spacedataClient, config)
//	results, err := fetcher.FetchAllPages(ctx, "/mars-photos/api/v1/rovers/curiosity/photos")
//
// The batch fetcher:
//   - Fetches the first page to determine total pages
//   - Spawns a worker pool (default 4 workers)
//   - Distributes remaining pages across workers
//   - Collects results with progress logging
//   - Handles errors gracefully (returns partial data)
//
// Concurrency here multiplies quota consumption: every page fetch counts
// against the credential's hourly window, so MaxConcurrency should stay
// small for DEMO_KEY-class credentials.
package pagination

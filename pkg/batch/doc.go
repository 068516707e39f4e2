// Package batch provides parallel chunked fetching of large id lists.
//
// The catalog API accepts any number of ids in get_items, but a filtered
// view can return thousands of ids and a single huge request is slow and
// fragile. This package splits the ids into fixed-size chunks, fetches them
// with a bounded worker pool and reassembles the results in id order.
//
// Example usage:
//
//	fetcher := batch.NewFetcher(apiClient.GetItems, batch.DefaultConfig())
//	items, err := fetcher.FetchAll(ctx, ids)
//
// The fetcher:
//   - Issues a single call when the ids fit in one chunk
//   - Runs at most MaxConcurrency chunk calls at a time
//   - Fails the whole fetch on the first chunk error and cancels the rest
//   - Preserves the order of the input ids across chunks
package batch

// Package tasks groups a user's saved tracks by the genres of their primary artists and
// turns one genre into a playlist.
//
// # Pipeline
//
// The [GenreEngine] runs the stages in order:
//
//  1. [Fetcher] : lazily pages through the saved-track listing
//     - [StrategyManual] requests limit/offset pages until one is empty or fails
//     - [StrategyStream] follows the API's next links
//     - an optional limit caps the number of entries
//
//  2. [Aggregator] : one goroutine per saved entry, bounded by an errgroup limit
//     - every entry is appended to its primary artist in the shared [ArtistIndex]
//     - the first entry seen for an artist resolves that artist's genres
//
//  3. [Resolver] : artist lookups with rate limiting and bounded retries
//     - exponential backoff with jitter per [RetryPolicy]
//     - auth failures, unknown artists and cancellation are not retried
//
//  4. [BuildGenreIndex] : files tracks under every genre of their artist, or under
//     models.UnknownGenre
//
//  5. [Submitter] : creates the playlist and appends tracks in batches of at most 100
//
// [GenreEngine.Scan] short-circuits stages 1-3 when the snapshot store holds a previous result.
//
// # Progress Reporting
//
// Long-running operations accept an optional channel of [ProgressUpdate] values. Sends use
// select with default so a slow reader never stalls the pipeline.
package tasks

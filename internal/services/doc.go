// Package services implements [Library], the upstream surface of the genre pipeline, on the Spotify Web API.
//
// # Spotify Implementation
//
// [SpotifyService] wraps a [spotify.Client] built over an [oauth2] HTTP client.
// Expired access tokens are refreshed by the oauth2 transport and every new token is
// reported through the callback set with [SpotifyService.SetTokenRefreshCallback], so the
// CLI can persist it to the config file.
//
// # Paging
//
// Saved tracks can be read two ways:
//   - [SpotifyService.SavedTracks] : one limit/offset page per call
//   - [SpotifyService.SavedTrackPages] : a lazy sequence that follows the API's next links
//
// # Error Handling
//
// Every upstream error is classified once, at this boundary:
//   - 401, 403 and token refresh failures : [shared.ErrAuthFailed]
//   - 404 : [shared.ErrNotFound]
//   - 429 : [shared.ErrRateLimited]
//   - 5xx and network errors : [shared.ErrTransientUpstream]
//   - anything else : [shared.ErrAPIRequest]
//
// Context cancellation is passed through unchanged.
package services

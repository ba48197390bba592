// Package models defines the entities that flow through the genrefy pipeline.
//
// Upstream data:
//   - [Track] : a saved track with its ordered artist ids
//   - [Artist] : an artist with the genre labels the service assigns it
//   - [User] and [Playlist] : the account and the playlist created for a genre
//
// Pipeline data:
//   - [SavedEntry] : a fetched track paired with its primary artist, numbered by library position
//   - [ArtistRecord] : the cached snapshot element {id, genres, tracks}
//   - [GenreCount] : one row of the per-genre summary
//   - [PlaylistRun] : the history record of a created playlist
//
// Tracks whose primary artist has no genres are grouped under [UnknownGenre].
package models

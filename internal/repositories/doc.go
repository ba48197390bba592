// Package repositories implements SQLite persistence for the genre pipeline.
//
// Key Implementations:
//   - [ArtistRepository] : the artist/genre/track snapshot, an alternative to the JSON file
//     that satisfies [snapshot.Store]
//   - [RunRepository] : history of playlists created by previous runs
//
// Writes that replace several rows happen inside one transaction so a failed save
// leaves the previous snapshot intact. Genre lists are stored as JSON text; a row whose
// genres cannot be decoded is reported as [shared.ErrCorruptData].
package repositories

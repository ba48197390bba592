// Package ui implements the interactive genre picker used by `genrefy create --pick`.
//
// The picker walks through three views:
//  1. [ScanView] : runs the scan and shows its progress updates
//  2. [GenreListView] : a filterable list of genres with track and batch counts
//  3. [ConfirmView] : confirms the playlist about to be created
//
// The [Model] implements bubbletea's Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates flow through a channel from the scan, read one at a time by a tea.Cmd.
//
// Quitting at any point yields shared.ErrCancelled from [Model.Selection].
package ui

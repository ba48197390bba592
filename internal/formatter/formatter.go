// package formatter renders the per-genre summary, dry-run plans and run history (text, JSON, CSV, Markdown)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/genrefy/internal/models"
	"github.com/desertthunder/genrefy/internal/shared"
)

// Format selects an output encoding.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
)

// ParseFormat validates a --format value. An empty value means text; "md" is accepted for Markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
	}
}

// FormatFromPath guesses the format from a file extension, falling back to text.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".csv":
		return FormatCSV
	case ".md", ".markdown":
		return FormatMarkdown
	default:
		return FormatText
	}
}

// GenreSummaryToCSV renders counts with columns: genre, tracks
func GenreSummaryToCSV(counts []models.GenreCount) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"genre", "tracks"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, c := range counts {
		if err := writer.Write([]string{c.Genre, strconv.Itoa(c.Tracks)}); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// GenreSummaryToMarkdown renders counts as a Markdown table under a heading.
func GenreSummaryToMarkdown(counts []models.GenreCount) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Liked songs by genre\n\n")
	fmt.Fprintf(&buf, "**Genres**: %d\n", len(counts))
	fmt.Fprintf(&buf, "**Track placements**: %d\n\n", totalTracks(counts))

	buf.WriteString("| Genre | Tracks |\n")
	buf.WriteString("|---|---:|\n")
	for _, c := range counts {
		fmt.Fprintf(&buf, "| %s | %d |\n", strings.ReplaceAll(c.Genre, "|", `\|`), c.Tracks)
	}
	return buf.Bytes(), nil
}

// GenreSummaryToText renders counts as aligned columns, one genre per line.
func GenreSummaryToText(counts []models.GenreCount) ([]byte, error) {
	var buf bytes.Buffer

	width := len("GENRE")
	for _, c := range counts {
		width = max(width, lipgloss.Width(c.Genre))
	}

	fmt.Fprintf(&buf, "%s  %s\n", pad("GENRE", width), "TRACKS")
	for _, c := range counts {
		fmt.Fprintf(&buf, "%s  %6d\n", pad(c.Genre, width), c.Tracks)
	}
	fmt.Fprintf(&buf, "\n%d genres, %d track placements\n", len(counts), totalTracks(counts))
	return buf.Bytes(), nil
}

// GenreSummary renders counts in format.
func GenreSummary(counts []models.GenreCount, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		if counts == nil {
			counts = []models.GenreCount{}
		}
		data, err := shared.MarshalJSON(counts, true)
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case FormatCSV:
		return GenreSummaryToCSV(counts)
	case FormatMarkdown:
		return GenreSummaryToMarkdown(counts)
	case FormatText, "":
		return GenreSummaryToText(counts)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}
}

// WriteGenreSummary renders counts in format to w.
func WriteGenreSummary(w io.Writer, counts []models.GenreCount, format Format) error {
	data, err := GenreSummary(counts, format)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// WriteSummaryFile writes counts to path, choosing the format from the extension when format is empty.
func WriteSummaryFile(path string, counts []models.GenreCount, format Format) error {
	if format == "" {
		format = FormatFromPath(path)
	}

	data, err := GenreSummary(counts, format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write summary file: %w", err)
	}
	return nil
}

// WriteBatchPlan describes a dry run. Only text and JSON are supported.
func WriteBatchPlan(w io.Writer, plan *models.BatchPlan, format Format) error {
	var buf bytes.Buffer

	switch format {
	case FormatJSON:
		data, err := shared.MarshalJSON(plan, true)
		if err != nil {
			return err
		}
		buf.Write(data)
		buf.WriteByte('\n')
	case FormatText, "":
		fmt.Fprintf(&buf, "Genre: %s\n", plan.Genre)
		fmt.Fprintf(&buf, "Playlist: %s\n", plan.PlaylistName)
		fmt.Fprintf(&buf, "Tracks: %d\n", plan.TrackCount)
		fmt.Fprintf(&buf, "Batches: %d\n", len(plan.BatchSizes))
		for i, n := range plan.BatchSizes {
			fmt.Fprintf(&buf, "  %d. %d tracks\n", i+1, n)
		}
	default:
		return fmt.Errorf("%w: format %q is not supported for plans", shared.ErrInvalidArgument, format)
	}

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// WriteRuns lists playlist runs, newest first as given.
func WriteRuns(w io.Writer, runs []*models.PlaylistRun, format Format) error {
	var buf bytes.Buffer

	switch format {
	case FormatJSON:
		if runs == nil {
			runs = []*models.PlaylistRun{}
		}
		data, err := shared.MarshalJSON(runs, true)
		if err != nil {
			return err
		}
		buf.Write(data)
		buf.WriteByte('\n')
	case FormatCSV:
		writer := csv.NewWriter(&buf)
		writer.Write([]string{"created_at", "genre", "playlist_id", "playlist_name", "tracks", "batches", "failed_batches", "status"})
		for _, r := range runs {
			writer.Write([]string{
				r.CreatedAt.Format(time.RFC3339),
				r.Genre,
				r.PlaylistID,
				r.PlaylistName,
				strconv.Itoa(r.TrackCount),
				strconv.Itoa(r.BatchCount),
				strconv.Itoa(r.FailedBatches),
				string(r.Status),
			})
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return fmt.Errorf("CSV writer error: %w", err)
		}
	case FormatText, "":
		if len(runs) == 0 {
			buf.WriteString("No playlists created yet.\n")
			break
		}
		for i, r := range runs {
			fmt.Fprintf(&buf, "%d. %s (%s)\n", i+1, r.PlaylistName, r.Status)
			fmt.Fprintf(&buf, "   Genre: %s\n", r.Genre)
			fmt.Fprintf(&buf, "   Playlist ID: %s\n", r.PlaylistID)
			fmt.Fprintf(&buf, "   Tracks: %d in %d batches", r.TrackCount, r.BatchCount)
			if r.FailedBatches > 0 {
				fmt.Fprintf(&buf, " (%d failed)", r.FailedBatches)
			}
			buf.WriteString("\n")
			fmt.Fprintf(&buf, "   Created: %s\n", r.CreatedAt.Local().Format("2006-01-02 15:04"))
		}
	default:
		return fmt.Errorf("%w: format %q is not supported for history", shared.ErrInvalidArgument, format)
	}

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func totalTracks(counts []models.GenreCount) int {
	n := 0
	for _, c := range counts {
		n += c.Tracks
	}
	return n
}

func pad(s string, width int) string {
	if gap := width - lipgloss.Width(s); gap > 0 {
		return s + strings.Repeat(" ", gap)
	}
	return s
}

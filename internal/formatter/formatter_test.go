package formatter

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/genrefy/internal/models"
	"github.com/desertthunder/genrefy/internal/shared"
	th "github.com/desertthunder/genrefy/internal/testing"
)

var sampleCounts = []models.GenreCount{
	{Genre: "indie rock", Tracks: 70},
	{Genre: "música popular brasileira", Tracks: 12},
	{Genre: models.UnknownGenre, Tracks: 3},
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{"csv", FormatCSV, false},
		{"md", FormatMarkdown, false},
		{"markdown", FormatMarkdown, false},
		{"yaml", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v", tt.in, err)
			continue
		}
		if tt.wantErr && !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	for path, want := range map[string]Format{
		"genres.json": FormatJSON,
		"genres.CSV":  FormatCSV,
		"genres.md":   FormatMarkdown,
		"genres.txt":  FormatText,
		"genres":      FormatText,
	} {
		if got := FormatFromPath(path); got != want {
			t.Errorf("FormatFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestGenreSummary(t *testing.T) {
	t.Run("Text", func(t *testing.T) {
		data, err := GenreSummaryToText(sampleCounts)
		if err != nil {
			t.Fatalf("GenreSummaryToText failed: %v", err)
		}

		lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
		if !strings.HasPrefix(lines[0], "GENRE") {
			t.Errorf("missing header, got %q", lines[0])
		}
		if !strings.Contains(lines[1], "indie rock") || !strings.HasSuffix(lines[1], "70") {
			t.Errorf("unexpected first row %q", lines[1])
		}
		if !strings.Contains(string(data), "3 genres, 85 track placements") {
			t.Errorf("missing totals, got %s", data)
		}

		col := strings.Index(lines[1], "70")
		if idx := strings.LastIndex(lines[3], "3"); idx != col+1 {
			t.Errorf("counts are not right-aligned: %q vs %q", lines[1], lines[3])
		}
	})

	t.Run("CSV", func(t *testing.T) {
		data, err := GenreSummaryToCSV(sampleCounts)
		if err != nil {
			t.Fatalf("GenreSummaryToCSV failed: %v", err)
		}
		want := "genre,tracks\nindie rock,70\nmúsica popular brasileira,12\nunknown genre,3\n"
		if string(data) != want {
			t.Errorf("got %q, want %q", data, want)
		}
	})

	t.Run("Markdown", func(t *testing.T) {
		data, err := GenreSummaryToMarkdown([]models.GenreCount{{Genre: "a|b", Tracks: 1}})
		if err != nil {
			t.Fatalf("GenreSummaryToMarkdown failed: %v", err)
		}
		output := string(data)
		if !strings.Contains(output, "| Genre | Tracks |") || !strings.Contains(output, `| a\|b | 1 |`) {
			t.Errorf("unexpected markdown %s", output)
		}
	})

	t.Run("JSON", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteGenreSummary(&buf, sampleCounts, FormatJSON); err != nil {
			t.Fatalf("WriteGenreSummary failed: %v", err)
		}

		var decoded []models.GenreCount
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(decoded) != 3 || decoded[0] != sampleCounts[0] {
			t.Errorf("unexpected decoded counts %+v", decoded)
		}

		buf.Reset()
		if err := WriteGenreSummary(&buf, nil, FormatJSON); err != nil {
			t.Fatal(err)
		}
		if strings.TrimSpace(buf.String()) != "[]" {
			t.Errorf("expected an empty array, got %q", buf.String())
		}
	})

	t.Run("Unknown Format", func(t *testing.T) {
		if err := WriteGenreSummary(&bytes.Buffer{}, sampleCounts, "yaml"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("Write Failure", func(t *testing.T) {
		if err := WriteGenreSummary(&th.FWriter{}, sampleCounts, FormatText); err == nil {
			t.Error("expected write error")
		}
	})
}

func TestWriteSummaryFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("Format From Extension", func(t *testing.T) {
		path := filepath.Join(dir, "genres.csv")
		if err := WriteSummaryFile(path, sampleCounts, ""); err != nil {
			t.Fatalf("WriteSummaryFile failed: %v", err)
		}
		th.AssertFileExists(t, path)
		if content := th.MustReadFile(t, path); !strings.HasPrefix(content, "genre,tracks") {
			t.Errorf("expected CSV, got %q", content)
		}
	})

	t.Run("Explicit Format", func(t *testing.T) {
		path := filepath.Join(dir, "genres.out")
		if err := WriteSummaryFile(path, sampleCounts, FormatMarkdown); err != nil {
			t.Fatalf("WriteSummaryFile failed: %v", err)
		}
		if content := th.MustReadFile(t, path); !strings.HasPrefix(content, "# Liked songs by genre") {
			t.Errorf("expected Markdown, got %q", content)
		}
	})

	t.Run("Missing Directory", func(t *testing.T) {
		if err := WriteSummaryFile(filepath.Join(dir, "nope", "genres.txt"), sampleCounts, ""); err == nil {
			t.Error("expected error")
		}
	})
}

func TestWriteBatchPlan(t *testing.T) {
	plan := &models.BatchPlan{Genre: "shoegaze", PlaylistName: "shoegaze · liked songs", TrackCount: 150, BatchSizes: []int{100, 50}}

	t.Run("Text", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteBatchPlan(&buf, plan, FormatText); err != nil {
			t.Fatalf("WriteBatchPlan failed: %v", err)
		}
		output := buf.String()
		for _, want := range []string{"Genre: shoegaze", "Tracks: 150", "Batches: 2", "1. 100 tracks", "2. 50 tracks"} {
			if !strings.Contains(output, want) {
				t.Errorf("output missing %q:\n%s", want, output)
			}
		}
	})

	t.Run("JSON", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteBatchPlan(&buf, plan, FormatJSON); err != nil {
			t.Fatalf("WriteBatchPlan failed: %v", err)
		}
		if !strings.Contains(buf.String(), `"batches": [`) {
			t.Errorf("unexpected JSON %s", buf.String())
		}
	})

	t.Run("Unsupported", func(t *testing.T) {
		if err := WriteBatchPlan(&bytes.Buffer{}, plan, FormatCSV); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("Write Failure", func(t *testing.T) {
		w := th.NewLimitedWriter(0, 0, &bytes.Buffer{})
		if err := WriteBatchPlan(&w, plan, FormatText); err == nil {
			t.Error("expected write error")
		}
	})
}

func TestWriteRuns(t *testing.T) {
	runs := []*models.PlaylistRun{
		{
			ID: "r2", Genre: "shoegaze", PlaylistID: "pl-2", PlaylistName: "shoegaze · liked songs",
			TrackCount: 150, BatchCount: 2, FailedBatches: 1, Status: models.RunPartial,
			CreatedAt: time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC),
		},
		{
			ID: "r1", Genre: "dub", PlaylistID: "pl-1", PlaylistName: "dub · liked songs",
			TrackCount: 12, BatchCount: 1, Status: models.RunCompleted,
			CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		},
	}

	t.Run("Text", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteRuns(&buf, runs, FormatText); err != nil {
			t.Fatal(err)
		}
		output := buf.String()
		if !strings.Contains(output, "1. shoegaze · liked songs (partial)") || !strings.Contains(output, "(1 failed)") {
			t.Errorf("unexpected output:\n%s", output)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteRuns(&buf, nil, FormatText); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "No playlists") {
			t.Errorf("unexpected output %q", buf.String())
		}
	})

	t.Run("CSV", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteRuns(&buf, runs, FormatCSV); err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 3 || !strings.HasPrefix(lines[1], "2024-05-02T10:00:00Z,shoegaze,pl-2") {
			t.Errorf("unexpected CSV:\n%s", buf.String())
		}
	})

	t.Run("JSON", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteRuns(&buf, runs, FormatJSON); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), `"playlist_id": "pl-2"`) {
			t.Errorf("unexpected JSON %s", buf.String())
		}
	})
}

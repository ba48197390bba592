package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/genrefy/internal/models"
	"github.com/desertthunder/genrefy/internal/shared"
)

var _ list.Item = genreItem{}

// genreItem wraps [models.GenreCount] to implement [list.Item].
type genreItem struct {
	count     models.GenreCount
	batchSize int
}

func (i genreItem) FilterValue() string { return i.count.Genre }
func (i genreItem) Title() string       { return i.count.Genre }
func (i genreItem) Description() string {
	if i.count.Tracks == 1 {
		return "1 track"
	}
	return fmt.Sprintf("%d tracks • %d batches", i.count.Tracks, batchCount(i.count.Tracks, i.batchSize))
}

func genreItems(counts []models.GenreCount, batchSize int) []list.Item {
	items := make([]list.Item, len(counts))
	for i, c := range counts {
		items[i] = genreItem{count: c, batchSize: batchSize}
	}
	return items
}

func batchCount(tracks, size int) int {
	if size < 1 || size > shared.MaxBatchSize {
		size = shared.MaxBatchSize
	}
	return (tracks + size - 1) / size
}

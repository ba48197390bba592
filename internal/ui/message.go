package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/genrefy/internal/tasks"
)

// MsgKind enumerates all message types in the picker.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgProgressUpdate MsgKind = iota
	MsgScanComplete
)

type scanOutcome struct {
	result *tasks.ScanResult
	err    error
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// scanCompleteMsg is the constructor for [MsgScanComplete]
func scanCompleteMsg(result *tasks.ScanResult, err error) Msg {
	return Msg{kind: MsgScanComplete, data: scanOutcome{result: result, err: err}}
}

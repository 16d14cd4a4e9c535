package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpinner_Update(t *testing.T) {
	t.Run("init ticks", func(t *testing.T) {
		assert.NotNil(t, NewSpinner("Connecting...").Init())
	})

	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune{'q'}},
		{Type: tea.KeyEsc},
		{Type: tea.KeyCtrlC},
	} {
		t.Run("quit on "+key.String(), func(t *testing.T) {
			model, cmd := NewSpinner("Connecting...").Update(key)
			sm := model.(SpinnerModel)
			assert.True(t, sm.quitting)
			assert.NotNil(t, cmd)
			assert.Contains(t, sm.View(), "Cancelled")
		})
	}

	t.Run("done", func(t *testing.T) {
		model, cmd := NewSpinner("Connecting...").Update(SpinnerDoneMsg{Result: "Connected"})
		sm := model.(SpinnerModel)
		assert.True(t, sm.done)
		assert.NotNil(t, cmd)
		assert.Contains(t, sm.View(), "Connected")
	})

	t.Run("done with error", func(t *testing.T) {
		model, _ := NewSpinner("Connecting...").Update(SpinnerDoneMsg{Result: "Connection failed", Err: errors.New("refused")})
		assert.Contains(t, model.View(), "Connection failed")
	})

	t.Run("tick", func(t *testing.T) {
		s := NewSpinner("Connecting...")
		model, _ := s.Update(spinner.TickMsg{ID: s.spinner.ID()})
		assert.Contains(t, model.View(), "Connecting...")
	})

	t.Run("ignores other messages", func(t *testing.T) {
		model, cmd := NewSpinner("Connecting...").Update("noise")
		assert.Nil(t, cmd)
		assert.False(t, model.(SpinnerModel).done)
	})
}

func TestSpin_NonTerminal(t *testing.T) {
	var out bytes.Buffer
	assert.False(t, IsTerminal(&out))

	require.NoError(t, Spin(&out, "Migrating...", func() (string, error) {
		return "Table created", nil
	}))
	assert.Contains(t, out.String(), "Table created")

	out.Reset()
	err := Spin(&out, "Migrating...", func() (string, error) {
		return "Migration failed", errors.New("permission denied")
	})
	assert.EqualError(t, err, "permission denied")
	assert.Contains(t, out.String(), "Migration failed")
}

func TestTable(t *testing.T) {
	tbl := NewTable("ID", "State")
	assert.Equal(t, "", NewTable().Render())

	tbl.AddRow("saga-1", "RUNNING")
	tbl.AddRow("saga-2")
	tbl.AddRow("saga-3", "COMPLETED", "ignored")
	assert.Equal(t, 3, tbl.Len())

	out := tbl.Render()
	for _, want := range []string{"ID", "State", "saga-1", "RUNNING", "saga-2", "saga-3", "COMPLETED"} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "ignored")
	assert.Greater(t, strings.Count(out, "\n"), 3)
}

func TestStatusBadge(t *testing.T) {
	for _, status := range []string{"COMPLETED", "RUNNING", "COMPENSATING", "ROLLED BACK", "FAILED", "unknown"} {
		assert.Contains(t, StatusBadge(status), status)
	}
}

func TestSimpleBanner(t *testing.T) {
	out := SimpleBanner()
	assert.Contains(t, out, "tram")
	assert.Contains(t, out, "saga orchestration")
}

func TestListItems(t *testing.T) {
	out := ListItems([]string{"postgres", "kafka"})
	assert.Contains(t, out, "postgres")
	assert.Contains(t, out, "kafka")
	assert.Equal(t, 2, strings.Count(out, "\n"))
	assert.Empty(t, ListItems(nil))
}

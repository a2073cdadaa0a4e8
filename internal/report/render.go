package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/ppiankov/uicheck/internal/model"
)

// Renderer writes reports to disk and summaries to a terminal
type Renderer struct {
	relation lipgloss.Style
	missing  lipgloss.Style
}

// NewRenderer creates a renderer with the default terminal styles
func NewRenderer() *Renderer {
	return &Renderer{
		relation: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		missing:  lipgloss.NewStyle().Faint(true),
	}
}

// WriteJSON writes the report as indented JSON. The file appears under its
// final name only once fully written.
func (r *Renderer) WriteJSON(report model.Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp report: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write temp report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp report: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("chmod temp report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename report: %w", err)
	}
	return nil
}

// ReadJSON loads a previously written report
func ReadJSON(path string) (model.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var report model.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return report, nil
}

// WriteSummary prints one line per violated relation with its sample size
// and how many samples lack an explanation
func (r *Renderer) WriteSummary(w io.Writer, report model.Report) error {
	names := make([]string, 0, len(report))
	for name := range report {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		entries := report[name]
		missing := 0
		for _, e := range entries {
			if e.Inference == nil {
				missing++
			}
		}
		line := fmt.Sprintf("%s  %d sampled", r.relation.Render(name), len(entries))
		if missing > 0 {
			line += r.missing.Render(fmt.Sprintf(" (%d unexplained)", missing))
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

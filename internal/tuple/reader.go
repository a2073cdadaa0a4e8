// Package tuple reads Soufflé tuple files: one row per line, columns
// separated by tabs, no quoting.
package tuple

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrArityMismatch is wrapped by every ArityError
var ErrArityMismatch = errors.New("tuple arity mismatch")

// errStop ends ForEach early without error
var errStop = errors.New("stop")

// ArityError reports a row whose column count differs from the schema
type ArityError struct {
	Path string
	Line int
	Want int
	Got  int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("%s:%d: %s: want %d columns, got %d", e.Path, e.Line, ErrArityMismatch, e.Want, e.Got)
}

func (e *ArityError) Unwrap() error {
	return ErrArityMismatch
}

// ForEach streams the rows of a tuple file. Empty lines are skipped. Every
// row must have exactly arity columns.
func ForEach(path string, arity int, fn func(row []string) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open tuples: %w", err)
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		row := strings.Split(line, "\t")
		if len(row) != arity {
			return &ArityError{Path: path, Line: n, Want: arity, Got: len(row)}
		}
		if err := fn(row); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", path, err)
	}
	return nil
}

// Head returns at most limit rows from the start of a tuple file.
// Rows past the limit are neither read nor validated.
func Head(path string, arity, limit int) ([][]string, error) {
	var rows [][]string
	if limit <= 0 {
		return rows, nil
	}

	err := ForEach(path, arity, func(row []string) error {
		rows = append(rows, row)
		if len(rows) >= limit {
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, err
	}
	return rows, nil
}

// List maps relation names to tuple files with the given extension in dir,
// returned sorted by relation name. dir must exist.
func List(dir, ext string) ([]File, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("list tuples: %w", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*"+ext))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", dir, err)
	}

	files := make([]File, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, File{
			Relation: strings.TrimSuffix(filepath.Base(m), ext),
			Path:     m,
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Relation < files[j].Relation })
	return files, nil
}

// File is a relation's tuple file
type File struct {
	Relation string
	Path     string
}

// NonEmpty reports whether the file holds anything besides whitespace
func NonEmpty(path string) (bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("open tuples: %w", err)
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			return true, nil
		}
	}
	return false, scanner.Err()
}

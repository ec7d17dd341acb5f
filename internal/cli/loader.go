package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/roach88/flexstream/internal/query"
)

// LoadMode controls how errors are handled while loading query files.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadError reports a query file that could not be loaded.
type LoadError struct {
	Code    string
	Path    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error { return e.Err }

var queryExts = []string{".yaml", ".yml", ".json", ".cue"}

// FindQueryFiles expands paths into query files. A directory contributes
// its query files (non-recursive, sorted); a file is taken as is.
func FindQueryFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeNotFound, Path: p, Message: "path not found", Err: err}
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeNotFound, Path: p, Message: "cannot read directory", Err: err}
		}
		for _, e := range entries {
			if !e.IsDir() && slices.Contains(queryExts, filepath.Ext(e.Name())) {
				files = append(files, filepath.Join(p, e.Name()))
			}
		}
	}
	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no query files found in %v", paths)}
	}
	return files, nil
}

// LoadQueries loads every query from paths. Query ids must be unique
// across files. In LoadModeCollectAll every file is attempted and all
// errors are returned.
func LoadQueries(paths []string, mode LoadMode) ([]query.Query, []error) {
	files, err := FindQueryFiles(paths)
	if err != nil {
		return nil, []error{err}
	}

	var (
		all  []query.Query
		errs []error
	)
	for _, f := range files {
		qs, err := query.LoadFile(f)
		if err != nil {
			code := ErrCodeLoadFailed
			if query.IsValidationError(err) {
				code = ErrCodeInvalidQuery
			}
			errs = append(errs, &LoadError{Code: code, Path: f, Message: err.Error(), Err: err})
			if mode == LoadModeFailFast {
				return nil, errs
			}
			continue
		}
		all = append(all, qs...)
	}
	if len(errs) > 0 {
		return nil, errs
	}
	if err := query.ValidateAll(all); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeInvalidQuery, Message: err.Error(), Err: err}}
	}
	return all, nil
}

// loadQueriesOrFail is LoadQueries in fail-fast mode as a single error.
func loadQueriesOrFail(paths []string) ([]query.Query, error) {
	qs, errs := LoadQueries(paths, LoadModeFailFast)
	if len(errs) > 0 {
		return nil, WrapExitError(ExitCommandError, "failed to load queries", errors.Join(errs...))
	}
	return qs, nil
}

package preflight

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"creditscan/internal/config"
	"creditscan/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name    string
	Passed  bool
	// Skipped marks an optional dependency that is absent.
	Skipped bool
	Detail  string
}

// RunAll executes all preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))
	results = append(results, CheckDirectoryAccess("Temp directory", cfg.Paths.TempDir))
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}
	for _, root := range cfg.Paths.LibraryRoots {
		results = append(results, CheckDirectoryReadable("Library root", root))
	}
	results = append(results, CheckPlexDatabase(ctx, cfg.Paths.PlexDB))

	statuses := CheckSystemDeps(cfg)
	missing := make(map[string]bool)
	for _, status := range deps.Missing(statuses) {
		missing[status.Name] = true
	}
	for _, status := range statuses {
		result := Result{Name: status.Name, Passed: !missing[status.Name], Detail: status.Command}
		switch {
		case missing[status.Name]:
			result.Detail = fmt.Sprintf("%s (%s)", status.Detail, strings.ToLower(status.Description))
		case !status.Available:
			result.Skipped = true
			result.Detail = status.Detail
		}
		results = append(results, result)
	}
	return results
}

// Failed returns the failed results as a single error, or nil.
func Failed(results []Result) error {
	var errs []error
	for _, r := range results {
		if !r.Passed {
			errs = append(errs, fmt.Errorf("%s: %s", r.Name, r.Detail))
		}
	}
	return errors.Join(errs...)
}

package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FindScenarios returns the scenario files under path: path itself when it
// is a file, every *.yaml and *.yml below it when it is a directory.
func FindScenarios(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".yaml", ".yml":
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// SuiteResult summarises a set of scenario runs.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Failures []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure is one scenario that failed to load, run or pass.
type ScenarioFailure struct {
	Scenario string   `json:"scenario"`
	Path     string   `json:"path"`
	Errors   []string `json:"errors"`
}

// OK reports whether every scenario passed.
func (r *SuiteResult) OK() bool {
	return r.Failed == 0
}

// RunSuite loads and runs every scenario in paths. Load and execution
// errors count as failures; RunSuite itself only fails on cancellation.
func RunSuite(ctx context.Context, paths []string, opts ...Option) (*SuiteResult, error) {
	sr := &SuiteResult{}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return sr, err
		}
		sr.Total++

		scenario, err := LoadScenario(path)
		if err != nil {
			sr.fail(ScenarioFailure{Path: path, Errors: []string{err.Error()}})
			continue
		}

		res, err := Run(ctx, scenario, opts...)
		if err != nil {
			sr.fail(ScenarioFailure{Scenario: scenario.Name, Path: path, Errors: []string{err.Error()}})
			continue
		}
		if !res.Pass {
			sr.fail(ScenarioFailure{Scenario: scenario.Name, Path: path, Errors: res.Errors})
			continue
		}
		sr.Passed++
	}
	return sr, nil
}

func (r *SuiteResult) fail(f ScenarioFailure) {
	r.Failed++
	r.Failures = append(r.Failures, f)
}

// String summarises the run in one line.
func (r *SuiteResult) String() string {
	return fmt.Sprintf("%d scenarios: %d passed, %d failed", r.Total, r.Passed, r.Failed)
}

// Package report holds the error policy shared by dump and restore and the
// summary a run ends with.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Status uint8

const (
	Clean Status = iota
	Partial
	Aborted
)

var statusNames = [...]string{
	Clean:   "clean",
	Partial: "partial",
	Aborted: "aborted",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", s)
}

func (s Status) MarshalYAML() (any, error) {
	return s.String(), nil
}

// ExitCode maps a status to the process exit code: 0 for a clean run, 2 when
// some records were skipped and 1 when the run was aborted.
func (s Status) ExitCode() int {
	switch s {
	case Clean:
		return 0
	case Partial:
		return 2
	}
	return 1
}

// Failure identifies the key (dump) or line (restore) a failure belongs to.
type Failure struct {
	Key     string `yaml:"key,omitempty"`
	Line    int    `yaml:"line,omitempty"`
	Content string `yaml:"content,omitempty"`
	Error   string `yaml:"error"`
}

func (f Failure) String() string {
	switch {
	case f.Line > 0:
		return fmt.Sprintf("line %d: %s", f.Line, f.Error)
	case f.Key != "":
		return fmt.Sprintf("key %q: %s", f.Key, f.Error)
	}
	return f.Error
}

// Summary counts what a dump or restore run did.
type Summary struct {
	Operation string    `yaml:"operation"`
	Started   time.Time `yaml:"started"`
	Finished  time.Time `yaml:"finished"`
	Status    Status    `yaml:"status"`

	// Records is the number of records written (dump) or applied (restore).
	Records int `yaml:"records"`
	// Vanished counts keys that expired or were deleted between
	// enumeration and reading.
	Vanished int `yaml:"vanished,omitempty"`
	// Retries counts optimistic reads that had to be repeated.
	Retries int `yaml:"retries,omitempty"`
	// Flushes is the number of pipeline executions during restore.
	Flushes int `yaml:"flushes,omitempty"`

	Skipped  []Failure `yaml:"skipped,omitempty"`
	AbortErr *Failure  `yaml:"aborted,omitempty"`
}

func New(operation string) *Summary {
	return &Summary{Operation: operation, Started: time.Now()}
}

func (s *Summary) Skip(f Failure) {
	s.Skipped = append(s.Skipped, f)
	if s.Status == Clean {
		s.Status = Partial
	}
}

func (s *Summary) Abort(f Failure) {
	s.AbortErr = &f
	s.Status = Aborted
}

// Finish stamps the end time. A non-nil err that did not already go through
// Abort (a connection failure, say) marks the run aborted.
func (s *Summary) Finish(err error) {
	s.Finished = time.Now()

	if err != nil && s.Status != Aborted {
		s.Abort(Failure{Error: err.Error()})
	}
}

func (s *Summary) Elapsed() time.Duration {
	if s.Finished.IsZero() {
		return time.Since(s.Started)
	}
	return s.Finished.Sub(s.Started)
}

func (s *Summary) WriteYAML(w io.Writer) error {
	return WriteYAML(w, s)
}

// WriteYAML encodes each summary as its own YAML document.
func WriteYAML(w io.Writer, sums ...*Summary) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	for _, s := range sums {
		if err := enc.Encode(s); err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}
	}
	return enc.Close()
}

// Save writes the summary as YAML to path, creating parent directories.
func (s *Summary) Save(path string) error {
	return Save(path, s)
}

func Save(path string, sums ...*Summary) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := WriteYAML(f, sums...); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Worst returns the most severe status among sums.
func Worst(sums ...*Summary) Status {
	status := Clean
	for _, s := range sums {
		if s != nil && s.Status > status {
			status = s.Status
		}
	}
	return status
}

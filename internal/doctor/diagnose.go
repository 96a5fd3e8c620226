// Package doctor checks that a huntdedup installation can run: storage,
// configuration and the hunt corpus.
package doctor

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/a-marczewski/huntdedup/internal/config"
	"github.com/a-marczewski/huntdedup/internal/corpus"
	"github.com/a-marczewski/huntdedup/internal/storage"
)

const (
	StatusPass = "pass"
	StatusWarn = "warn"
	StatusFail = "fail"
)

// Diagnostics holds diagnostic information
type Diagnostics struct {
	Checks []CheckResult `json:"checks"`
	Issues []string      `json:"issues"`
	Status string        `json:"status"`
}

// CheckResult represents the result of a single check
type CheckResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Runner runs diagnostic checks
type Runner struct {
	config *config.Config
	db     *storage.DB
}

// NewRunner creates a new diagnostic runner
func NewRunner(cfg *config.Config, db *storage.DB) *Runner {
	return &Runner{
		config: cfg,
		db:     db,
	}
}

// RunAll runs all diagnostic checks
func (d *Runner) RunAll() *Diagnostics {
	var results []CheckResult
	results = append(results, d.checkDatabase()...)
	results = append(results, d.checkDirectories()...)
	results = append(results, d.checkConfiguration())
	results = append(results, d.checkCorpus())

	var issues []string
	for _, result := range results {
		if result.Status == StatusFail {
			issues = append(issues, result.Message)
		}
	}

	status := "healthy"
	if len(issues) > 0 {
		status = "issues_found"
	}

	return &Diagnostics{
		Checks: results,
		Issues: issues,
		Status: status,
	}
}

func pass(name, message string) CheckResult {
	return CheckResult{Name: name, Status: StatusPass, Message: message}
}

func fail(name string, format string, args ...any) CheckResult {
	return CheckResult{Name: name, Status: StatusFail, Message: fmt.Sprintf(format, args...)}
}

// checkDatabase pings the database and verifies its schema and integrity.
func (d *Runner) checkDatabase() []CheckResult {
	if d.db == nil {
		return []CheckResult{fail("database_connectivity", "Database is not open")}
	}
	conn := d.db.GetConnection()

	if err := conn.Ping(); err != nil {
		return []CheckResult{fail("database_connectivity", "Cannot connect to database: %v", err)}
	}
	results := []CheckResult{pass("database_connectivity", "Database connection successful")}

	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		results = append(results, fail("database_schema", "Cannot read schema version: %v", err))
	} else if version != storage.SchemaVersion {
		results = append(results, fail("database_schema", "Schema version %d, expected %d", version, storage.SchemaVersion))
	} else {
		results = append(results, pass("database_schema", fmt.Sprintf("Schema version %d", version)))
	}

	var integrity string
	if err := conn.QueryRow("PRAGMA integrity_check").Scan(&integrity); err != nil {
		results = append(results, fail("database_integrity", "Database integrity check failed: %v", err))
	} else if integrity != "ok" {
		results = append(results, fail("database_integrity", "Database integrity check reported: %s", integrity))
	} else {
		results = append(results, pass("database_integrity", "Database integrity check passed"))
	}

	return results
}

// checkDirectories verifies the state directory and its log directory are writable.
func (d *Runner) checkDirectories() []CheckResult {
	dir := d.config.HuntDedupDir
	if dir == "" {
		return []CheckResult{{Name: "state_directory", Status: StatusWarn, Message: "No state directory configured"}}
	}

	var results []CheckResult
	for _, sub := range []string{dir, filepath.Join(dir, "logs")} {
		name := filepath.Base(sub) + "_directory"
		info, err := os.Stat(sub)
		switch {
		case os.IsNotExist(err):
			results = append(results, CheckResult{Name: name, Status: StatusWarn, Message: fmt.Sprintf("Directory does not exist: %s", sub)})
		case err != nil:
			results = append(results, fail(name, "Cannot access %s: %v", sub, err))
		case !info.IsDir():
			results = append(results, fail(name, "Not a directory: %s", sub))
		default:
			if err := testDirectoryPermissions(sub); err != nil {
				results = append(results, fail(name, "Insufficient permissions for %s: %v", sub, err))
			} else {
				results = append(results, pass(name, fmt.Sprintf("Writable: %s", sub)))
			}
		}
	}
	return results
}

// testDirectoryPermissions tests if we can write to a directory
func testDirectoryPermissions(dir string) error {
	f, err := os.CreateTemp(dir, ".permission_test")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

func (d *Runner) checkConfiguration() CheckResult {
	if err := d.config.Validate(); err != nil {
		return fail("configuration", "Configuration validation failed: %v", err)
	}
	return pass("configuration", "Configuration is valid")
}

func (d *Runner) checkCorpus() CheckResult {
	if d.config.CorpusPath == "" {
		return CheckResult{Name: "corpus", Status: StatusWarn, Message: "No corpus configured; candidates are only checked against each other"}
	}
	records, err := corpus.Load(d.config.CorpusPath)
	if err != nil {
		return fail("corpus", "Cannot load corpus: %v", err)
	}
	return pass("corpus", fmt.Sprintf("Loaded %d hunts from %s", len(records), d.config.CorpusPath))
}

// PrintReport writes a formatted diagnostic report
func (d *Diagnostics) PrintReport(w io.Writer) {
	fmt.Fprintf(w, "=== huntdedup Diagnostic Report ===\n")
	fmt.Fprintf(w, "Status: %s\n\n", d.Status)

	if len(d.Issues) > 0 {
		fmt.Fprintf(w, "Issues Found:\n")
		for i, issue := range d.Issues {
			fmt.Fprintf(w, "  %d. %s\n", i+1, issue)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Detailed Checks:\n")
	for _, check := range d.Checks {
		statusSymbol := "✓"
		if check.Status == StatusFail {
			statusSymbol = "✗"
		} else if check.Status == StatusWarn {
			statusSymbol = "!"
		}
		fmt.Fprintf(w, "  %s %s: %s\n", statusSymbol, check.Name, check.Message)
	}
}

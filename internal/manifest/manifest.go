// Package manifest describes which tables are synchronized and in which
// dependency tier.
//
// Tables in the sequential tier are referenced by foreign keys from later
// tables and are applied one at a time in declared order. Tables in the
// parallel tier have no dependents and are applied concurrently once the
// sequential tier has finished.
package manifest

import (
	"fmt"
	"strings"
)

// Tier is a dependency tier.
type Tier int

const (
	// Sequential tables are applied one at a time, in order.
	Sequential Tier = iota
	// Parallel tables are applied concurrently.
	Parallel
)

func (t Tier) String() string {
	switch t {
	case Sequential:
		return "sequential"
	case Parallel:
		return "parallel"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// TableSpec is one synchronized table.
type TableSpec struct {
	Name string
	// AuditColumn pins the column used for change detection. Empty means the
	// detector probes the configured audit columns.
	AuditColumn string
	Tier        Tier
}

// Manifest is the ordered set of synchronized tables.
type Manifest struct {
	Sequential []TableSpec
	Parallel   []TableSpec
}

// DefaultSequential and DefaultParallel are the school database tables in
// dependency order.
var (
	DefaultSequential = []string{
		"users",
		"advisers",
		"admins",
		"courses",
		"students",
	}
	DefaultParallel = []string{
		"student_courses",
		"class_assignments",
		"assignment_submissions",
		"student_course_grades",
		"student_achievements",
		"announcements",
		"announcement_views",
		"messages",
		"conversations",
		"support_tickets",
		"ticket_comments",
	}
)

// Default returns the manifest of the school database.
func Default() Manifest {
	m, err := New(DefaultSequential, DefaultParallel)
	if err != nil {
		panic(err)
	}
	return m
}

// New builds a manifest from table entries. An entry is either "table" or
// "table:audit_column".
func New(sequential, parallel []string) (Manifest, error) {
	var m Manifest
	seen := make(map[string]bool)

	add := func(entries []string, tier Tier) ([]TableSpec, error) {
		specs := make([]TableSpec, 0, len(entries))
		for _, entry := range entries {
			spec, err := ParseSpec(entry)
			if err != nil {
				return nil, err
			}
			if seen[spec.Name] {
				return nil, fmt.Errorf("table %q listed more than once", spec.Name)
			}
			seen[spec.Name] = true
			spec.Tier = tier
			specs = append(specs, spec)
		}
		return specs, nil
	}

	var err error
	if m.Sequential, err = add(sequential, Sequential); err != nil {
		return Manifest{}, err
	}
	if m.Parallel, err = add(parallel, Parallel); err != nil {
		return Manifest{}, err
	}
	if m.Len() == 0 {
		return Manifest{}, fmt.Errorf("manifest has no tables")
	}
	return m, nil
}

// ParseSpec parses "table" or "table:audit_column".
func ParseSpec(entry string) (TableSpec, error) {
	name, audit, _ := strings.Cut(strings.TrimSpace(entry), ":")
	name = strings.TrimSpace(name)
	audit = strings.TrimSpace(audit)
	if name == "" {
		return TableSpec{}, fmt.Errorf("empty table name in %q", entry)
	}
	return TableSpec{Name: name, AuditColumn: audit}, nil
}

// Len returns the number of tables.
func (m Manifest) Len() int { return len(m.Sequential) + len(m.Parallel) }

// Tables returns every table, sequential tier first.
func (m Manifest) Tables() []TableSpec {
	out := make([]TableSpec, 0, m.Len())
	out = append(out, m.Sequential...)
	return append(out, m.Parallel...)
}

// Names returns every table name, sequential tier first.
func (m Manifest) Names() []string {
	tables := m.Tables()
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}
	return names
}

// Lookup returns the spec of the named table.
func (m Manifest) Lookup(name string) (TableSpec, bool) {
	for _, t := range m.Tables() {
		if t.Name == name {
			return t, true
		}
	}
	return TableSpec{}, false
}

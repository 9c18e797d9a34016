package store

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported database drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// dialect captures the SQL differences between the supported drivers.
type dialect struct {
	driver      string
	quoteChar   byte
	numberedArg bool
}

var dialects = map[string]dialect{
	DriverMySQL:    {driver: "mysql", quoteChar: '`'},
	DriverPostgres: {driver: "postgres", quoteChar: '"', numberedArg: true},
	DriverSQLite:   {driver: "sqlite", quoteChar: '"'},
}

// NormalizeDriver maps driver aliases to a supported driver name.
func NormalizeDriver(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mysql", "mariadb":
		return DriverMySQL, nil
	case "postgres", "postgresql", "pg":
		return DriverPostgres, nil
	case "sqlite", "sqlite3":
		return DriverSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", name)
	}
}

func dialectFor(driver string) (dialect, error) {
	name, err := NormalizeDriver(driver)
	if err != nil {
		return dialect{}, err
	}
	return dialects[name], nil
}

// ValidIdentifier reports whether name can be used as a table or column name.
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

func (d dialect) quote(name string) (string, error) {
	if !ValidIdentifier(name) {
		return "", fmt.Errorf("invalid identifier %q", name)
	}
	q := string(d.quoteChar)
	return q + name + q, nil
}

// query accumulates a statement and its arguments.
type query struct {
	d    dialect
	sb   strings.Builder
	args []any
	err  error
}

func (d dialect) newQuery() *query {
	return &query{d: d}
}

func (q *query) raw(s string) *query {
	q.sb.WriteString(s)
	return q
}

func (q *query) ident(name string) *query {
	quoted, err := q.d.quote(name)
	if err != nil && q.err == nil {
		q.err = err
	}
	q.sb.WriteString(quoted)
	return q
}

func (q *query) arg(v any) *query {
	q.args = append(q.args, v)
	if q.d.numberedArg {
		q.sb.WriteString("$" + strconv.Itoa(len(q.args)))
	} else {
		q.sb.WriteByte('?')
	}
	return q
}

func (q *query) in(values []int64) *query {
	q.sb.WriteByte('(')
	for i, v := range values {
		if i > 0 {
			q.sb.WriteString(", ")
		}
		q.arg(v)
	}
	q.sb.WriteByte(')')
	return q
}

func (q *query) build() (string, []any, error) {
	return q.sb.String(), q.args, q.err
}

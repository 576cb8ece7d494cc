package provision

import (
	"context"
	"fmt"
	"strings"

	"github.com/stackpilot/stackpilot/runner"
)

// Execer submits single SQL statements to the data store as the superuser.
// database selects the database to connect to; empty means the maintenance
// database. Each statement is independently submitted; there are no
// multi-statement transactions in provisioning.
type Execer interface {
	Exec(ctx context.Context, database, sql string) error
	Query(ctx context.Context, database, sql string) (string, error)
}

// QuoteIdent quotes a SQL identifier, doubling embedded quotes. Identifiers
// are never interpolated raw into statements.
func QuoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// QuoteLiteral quotes a SQL string literal, doubling embedded quotes.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// PSQL runs statements through the psql binary inside the database
// container via a runner. The database unit needs no exposed SQL port for
// provisioning this way.
type PSQL struct {
	Runner    runner.Runner
	SuperUser string
	// MaintenanceDB is used when no database is specified (default "postgres")
	MaintenanceDB string
}

func (p *PSQL) database(db string) string {
	if db != "" {
		return db
	}
	if p.MaintenanceDB != "" {
		return p.MaintenanceDB
	}
	return "postgres"
}

func (p *PSQL) run(ctx context.Context, database, sql string) (runner.Result, error) {
	return p.Runner.Run(ctx, runner.Command{
		Name: "psql",
		Args: []string{
			"-v", "ON_ERROR_STOP=1",
			"-U", p.SuperUser,
			"-d", p.database(database),
			"-tA",
			"-c", sql,
		},
	})
}

// Exec submits a statement and fails on non-zero psql exit.
func (p *PSQL) Exec(ctx context.Context, database, sql string) error {
	res, err := p.run(ctx, database, sql)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("psql exited with code %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// Query submits a statement and returns its unaligned tuple output.
func (p *PSQL) Query(ctx context.Context, database, sql string) (string, error) {
	res, err := p.run(ctx, database, sql)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("psql exited with code %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return strings.TrimSpace(res.Stdout), nil
}

package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExecer records every statement and answers catalog queries from a
// small in-memory state.
type fakeExecer struct {
	roles      map[string]bool
	databases  map[string]bool
	extensions map[string]bool
	failExts   map[string]bool

	executed []string
	queried  []string
	execErr  error
}

func newFakeExecer() *fakeExecer {
	return &fakeExecer{
		roles:      map[string]bool{},
		databases:  map[string]bool{},
		extensions: map[string]bool{},
		failExts:   map[string]bool{},
	}
}

func (f *fakeExecer) Exec(_ context.Context, _ string, sql string) error {
	f.executed = append(f.executed, sql)
	if f.execErr != nil {
		return f.execErr
	}
	switch {
	case strings.HasPrefix(sql, "CREATE ROLE "):
		f.roles[identBetween(sql, "CREATE ROLE ")] = true
	case strings.HasPrefix(sql, "CREATE DATABASE "):
		f.databases[identBetween(sql, "CREATE DATABASE ")] = true
	case strings.HasPrefix(sql, "CREATE EXTENSION IF NOT EXISTS "):
		name := identBetween(sql, "CREATE EXTENSION IF NOT EXISTS ")
		if f.failExts[name] {
			return fmt.Errorf("could not open extension control file %q", name)
		}
		f.extensions[name] = true
	}
	return nil
}

func (f *fakeExecer) Query(_ context.Context, _ string, sql string) (string, error) {
	f.queried = append(f.queried, sql)
	check := func(m map[string]bool, marker string) string {
		name := literalBetween(sql, marker)
		if m[name] {
			return "1"
		}
		return ""
	}
	switch {
	case strings.Contains(sql, "pg_roles"):
		return check(f.roles, "rolname = "), nil
	case strings.Contains(sql, "pg_database"):
		return check(f.databases, "datname = "), nil
	case strings.Contains(sql, "pg_extension"):
		return check(f.extensions, "extname = "), nil
	}
	return "", nil
}

func identBetween(sql, prefix string) string {
	rest := strings.TrimPrefix(sql, prefix)
	rest = strings.TrimPrefix(rest, `"`)
	if i := strings.IndexAny(rest, `" `); i >= 0 {
		return rest[:i]
	}
	return rest
}

func literalBetween(sql, marker string) string {
	i := strings.Index(sql, marker)
	if i < 0 {
		return ""
	}
	rest := strings.TrimPrefix(sql[i+len(marker):], "'")
	if j := strings.Index(rest, "'"); j >= 0 {
		return rest[:j]
	}
	return rest
}

func testTarget() Target {
	return Target{
		Database:        "appdb",
		User:            "appuser",
		Password:        "secret",
		Extensions:      []string{"pgcrypto", "uuid-ossp"},
		MetricsUser:     "metrics",
		MetricsPassword: "metricspw",
	}
}

func TestProvisionFreshStore(t *testing.T) {
	exec := newFakeExecer()
	engine := &Engine{Exec: exec, Target: testTarget()}

	outcome, err := engine.Provision(context.Background())
	require.NoError(t, err)
	assert.Len(t, outcome.Steps, 5)
	for _, step := range outcome.Steps {
		assert.NoError(t, step.Err)
		assert.False(t, step.AlreadyExisted, step.Name)
	}
	assert.Empty(t, outcome.FailedExtensions)
	assert.ElementsMatch(t, []string{"pgcrypto", "uuid-ossp"}, outcome.InstalledExtensions)

	joined := strings.Join(exec.executed, "\n")
	assert.Contains(t, joined, `CREATE ROLE "appuser" WITH LOGIN PASSWORD 'secret'`)
	assert.Contains(t, joined, `CREATE DATABASE "appdb" OWNER "appuser"`)
	assert.Contains(t, joined, `CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`)
	assert.Contains(t, joined, `GRANT pg_monitor TO "metrics"`)
}

func TestProvisionConvergesOnExistingObjects(t *testing.T) {
	exec := newFakeExecer()
	exec.roles["appuser"] = true
	exec.databases["appdb"] = true
	engine := &Engine{Exec: exec, Target: testTarget()}

	outcome, err := engine.Provision(context.Background())
	require.NoError(t, err)

	byName := map[string]StepResult{}
	for _, step := range outcome.Steps {
		byName[step.Name] = step
	}
	assert.True(t, byName["ensure-primary-role"].AlreadyExisted)
	assert.True(t, byName["ensure-database"].AlreadyExisted)

	joined := strings.Join(exec.executed, "\n")
	assert.Contains(t, joined, `ALTER ROLE "appuser" WITH LOGIN PASSWORD 'secret'`)
	assert.Contains(t, joined, `ALTER DATABASE "appdb" OWNER TO "appuser"`)
	assert.NotContains(t, joined, `CREATE ROLE "appuser"`)
	assert.NotContains(t, joined, `CREATE DATABASE "appdb"`)
}

func TestProvisionSecondRunIsIdempotent(t *testing.T) {
	exec := newFakeExecer()
	engine := &Engine{Exec: exec, Target: testTarget()}

	_, err := engine.Provision(context.Background())
	require.NoError(t, err)

	_, err = engine.Provision(context.Background())
	require.NoError(t, err)
	joined := strings.Join(exec.executed, "\n")
	// the second pass must go through ALTER, never a second CREATE
	assert.Equal(t, 1, strings.Count(joined, `CREATE ROLE "appuser"`))
	assert.Equal(t, 1, strings.Count(joined, `CREATE DATABASE "appdb"`))
	assert.Equal(t, 1, strings.Count(joined, `ALTER ROLE "appuser" WITH LOGIN PASSWORD`))
}

func TestProvisionExtensionFailureIsNotFatal(t *testing.T) {
	exec := newFakeExecer()
	exec.failExts["uuid-ossp"] = true
	engine := &Engine{Exec: exec, Target: testTarget()}

	outcome, err := engine.Provision(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"uuid-ossp"}, outcome.FailedExtensions)
	assert.Equal(t, []string{"pgcrypto"}, outcome.InstalledExtensions)
	assert.Contains(t, outcome.Warnings()[0], "uuid-ossp")

	// the metrics role step still ran after the failed extension
	joined := strings.Join(exec.executed, "\n")
	assert.Contains(t, joined, `GRANT pg_monitor TO "metrics"`)
}

func TestProvisionRoleStepFailureAborts(t *testing.T) {
	exec := newFakeExecer()
	exec.execErr = errors.New("connection reset")
	engine := &Engine{Exec: exec, Target: testTarget()}

	outcome, err := engine.Provision(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ensure-primary-role")
	assert.Len(t, outcome.Steps, 1)
}

func TestProvisionSkipsMetricsRoleWhenUnset(t *testing.T) {
	exec := newFakeExecer()
	target := testTarget()
	target.MetricsUser = ""
	engine := &Engine{Exec: exec, Target: target}

	_, err := engine.Provision(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, strings.Join(exec.executed, "\n"), "pg_monitor")
}

func TestQuoting(t *testing.T) {
	assert.Equal(t, `"uuid-ossp"`, QuoteIdent("uuid-ossp"))
	assert.Equal(t, `"a""b"`, QuoteIdent(`a"b`))
	assert.Equal(t, `'it''s'`, QuoteLiteral("it's"))
}

type fakeAuth struct{ err error }

func (f fakeAuth) Check(context.Context, string) error { return f.err }

func TestVerifyCredentialMismatchHint(t *testing.T) {
	engine := &Engine{
		Exec:   newFakeExecer(),
		Auth:   fakeAuth{err: &pgconn.PgError{Code: "28P01", Message: "password authentication failed"}},
		Target: testTarget(),
	}
	_, err := engine.Verify(context.Background(), "postgres://x", nil)
	require.Error(t, err)
	var verr *VerifyError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Hint, "predate this run")
}

func TestVerifyUnreachableHint(t *testing.T) {
	engine := &Engine{
		Exec:   newFakeExecer(),
		Auth:   fakeAuth{err: errors.New("dial tcp: connection refused")},
		Target: testTarget(),
	}
	_, err := engine.Verify(context.Background(), "postgres://x", nil)
	require.Error(t, err)
	var verr *VerifyError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Hint, "unreachable")
}

func TestVerifyReportsMissingExtensions(t *testing.T) {
	exec := newFakeExecer()
	exec.extensions["pgcrypto"] = true
	engine := &Engine{Exec: exec, Auth: fakeAuth{}, Target: testTarget()}

	missing, err := engine.Verify(context.Background(), "postgres://x", []string{"pgcrypto", "uuid-ossp"})
	require.Error(t, err)
	assert.Equal(t, []string{"uuid-ossp"}, missing)
}

func TestVerifyPasses(t *testing.T) {
	exec := newFakeExecer()
	exec.extensions["pgcrypto"] = true
	engine := &Engine{Exec: exec, Auth: fakeAuth{}, Target: testTarget()}

	missing, err := engine.Verify(context.Background(), "postgres://x", []string{"pgcrypto"})
	require.NoError(t, err)
	assert.Empty(t, missing)
}

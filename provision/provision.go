// Package provision brings a fresh or partially-initialized PostgreSQL
// instance to the desired end state using only idempotent operations. It
// may run against a store that already has objects from a prior partial
// run; "already exists" is convergence, not failure.
//
// Object existence is decided by querying the catalog up front rather than
// by matching error message text, so a step either creates the object or
// alters it to the configured value.
package provision

import (
	"context"
	"fmt"

	"github.com/stackpilot/stackpilot/common"
)

// Target describes the desired end state of the data store.
type Target struct {
	// Database is the application database, owned by User
	Database string
	// User is the primary application role
	User string
	// Password is the primary role credential. The configured value always
	// wins: an existing role's password is reset to it on every run, so a
	// changed configuration converges (see stored-credential policy in the
	// README).
	Password string
	// Extensions are installed one by one, each independently tolerant
	Extensions []string
	// MetricsUser is the read-only monitoring role
	MetricsUser string
	// MetricsPassword is the monitoring role credential
	MetricsPassword string
}

// StepResult records the outcome of one provisioning step.
type StepResult struct {
	Name string
	// AlreadyExisted is informational: the object predated this run
	AlreadyExisted bool
	Err            error
}

// Outcome is the result of a full provisioning pass.
type Outcome struct {
	Steps []StepResult
	// FailedExtensions lists extensions that could not be installed. These
	// are warnings: the application may still partially function.
	FailedExtensions []string
	// InstalledExtensions lists extensions confirmed installed this run
	InstalledExtensions []string
}

// Warnings renders the non-fatal problems for the final report.
func (o *Outcome) Warnings() []string {
	var w []string
	for _, ext := range o.FailedExtensions {
		w = append(w, fmt.Sprintf("extension %s failed to install", ext))
	}
	return w
}

// Engine executes the provisioning sequence against one target.
type Engine struct {
	Exec   Execer
	Auth   Authenticator
	Target Target
}

// NewEngine creates a provisioning engine with the pgx-based authenticator.
func NewEngine(exec Execer, target Target) *Engine {
	return &Engine{Exec: exec, Auth: PgxAuthenticator{}, Target: target}
}

// Provision runs the ordered step sequence. The returned error is non-nil
// only for outright failures (a role, database or grant step erroring for a
// reason other than "already satisfied"); extension sub-failures are
// recorded in the Outcome and do not abort the pass.
func (e *Engine) Provision(ctx context.Context) (*Outcome, error) {
	outcome := &Outcome{}

	steps := []struct {
		name string
		run  func(context.Context, *Outcome) (bool, error)
	}{
		{"ensure-primary-role", e.ensurePrimaryRole},
		{"ensure-database", e.ensureDatabase},
		{"grant-privileges", e.grantPrivileges},
		{"install-extensions", e.installExtensions},
		{"ensure-metrics-role", e.ensureMetricsRole},
	}

	for _, step := range steps {
		existed, err := step.run(ctx, outcome)
		outcome.Steps = append(outcome.Steps, StepResult{
			Name:           step.name,
			AlreadyExisted: existed,
			Err:            err,
		})
		if err != nil {
			return outcome, fmt.Errorf("provisioning step %s: %w", step.name, err)
		}
		if existed {
			common.Logger.Info("provision: ", step.name, " already satisfied")
		} else {
			common.Logger.Info("provision: ", step.name, " done")
		}
	}

	return outcome, nil
}

// ensurePrimaryRole creates the primary role, or resets its credential to
// the configured value when it already exists.
func (e *Engine) ensurePrimaryRole(ctx context.Context, _ *Outcome) (bool, error) {
	exists, err := e.roleExists(ctx, e.Target.User)
	if err != nil {
		return false, err
	}
	if exists {
		err = e.Exec.Exec(ctx, "", fmt.Sprintf(
			"ALTER ROLE %s WITH LOGIN PASSWORD %s",
			QuoteIdent(e.Target.User), QuoteLiteral(e.Target.Password)))
		return true, err
	}
	err = e.Exec.Exec(ctx, "", fmt.Sprintf(
		"CREATE ROLE %s WITH LOGIN PASSWORD %s",
		QuoteIdent(e.Target.User), QuoteLiteral(e.Target.Password)))
	return false, err
}

// ensureDatabase creates the application database owned by the primary
// role, or transfers ownership when it already exists.
func (e *Engine) ensureDatabase(ctx context.Context, _ *Outcome) (bool, error) {
	out, err := e.Exec.Query(ctx, "", fmt.Sprintf(
		"SELECT 1 FROM pg_database WHERE datname = %s", QuoteLiteral(e.Target.Database)))
	if err != nil {
		return false, err
	}
	if out == "1" {
		err = e.Exec.Exec(ctx, "", fmt.Sprintf(
			"ALTER DATABASE %s OWNER TO %s",
			QuoteIdent(e.Target.Database), QuoteIdent(e.Target.User)))
		return true, err
	}
	err = e.Exec.Exec(ctx, "", fmt.Sprintf(
		"CREATE DATABASE %s OWNER %s",
		QuoteIdent(e.Target.Database), QuoteIdent(e.Target.User)))
	return false, err
}

// grantPrivileges grants the primary role full access to the database and
// schema, including default privileges so objects created later inherit
// the correct grants.
func (e *Engine) grantPrivileges(ctx context.Context, _ *Outcome) (bool, error) {
	db := QuoteIdent(e.Target.Database)
	user := QuoteIdent(e.Target.User)

	statements := []struct {
		database string
		sql      string
	}{
		{"", fmt.Sprintf("GRANT ALL PRIVILEGES ON DATABASE %s TO %s", db, user)},
		{e.Target.Database, fmt.Sprintf("GRANT ALL ON SCHEMA public TO %s", user)},
		{e.Target.Database, fmt.Sprintf("ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT ALL ON TABLES TO %s", user)},
		{e.Target.Database, fmt.Sprintf("ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT ALL ON SEQUENCES TO %s", user)},
	}
	for _, st := range statements {
		if err := e.Exec.Exec(ctx, st.database, st.sql); err != nil {
			return false, err
		}
	}
	return false, nil
}

// installExtensions installs each configured extension. One extension
// failing does not abort the remaining ones; failures are recorded and
// surfaced as warnings.
func (e *Engine) installExtensions(ctx context.Context, outcome *Outcome) (bool, error) {
	for _, ext := range e.Target.Extensions {
		err := e.Exec.Exec(ctx, e.Target.Database, fmt.Sprintf(
			"CREATE EXTENSION IF NOT EXISTS %s", QuoteIdent(ext)))
		if err != nil {
			common.Logger.Warn("provision: extension ", ext, " failed: ", err)
			outcome.FailedExtensions = append(outcome.FailedExtensions, ext)
			continue
		}
		outcome.InstalledExtensions = append(outcome.InstalledExtensions, ext)
	}
	return false, nil
}

// ensureMetricsRole creates the monitoring role with connect and the
// pg_monitor capability only, independent of the primary role.
func (e *Engine) ensureMetricsRole(ctx context.Context, _ *Outcome) (bool, error) {
	if e.Target.MetricsUser == "" {
		return true, nil
	}
	exists, err := e.roleExists(ctx, e.Target.MetricsUser)
	if err != nil {
		return false, err
	}
	role := QuoteIdent(e.Target.MetricsUser)
	if exists {
		if err := e.Exec.Exec(ctx, "", fmt.Sprintf(
			"ALTER ROLE %s WITH LOGIN PASSWORD %s",
			role, QuoteLiteral(e.Target.MetricsPassword))); err != nil {
			return true, err
		}
	} else {
		if err := e.Exec.Exec(ctx, "", fmt.Sprintf(
			"CREATE ROLE %s WITH LOGIN PASSWORD %s",
			role, QuoteLiteral(e.Target.MetricsPassword))); err != nil {
			return false, err
		}
	}
	grants := []string{
		fmt.Sprintf("GRANT CONNECT ON DATABASE %s TO %s", QuoteIdent(e.Target.Database), role),
		fmt.Sprintf("GRANT pg_monitor TO %s", role),
	}
	for _, sql := range grants {
		if err := e.Exec.Exec(ctx, "", sql); err != nil {
			return exists, err
		}
	}
	return exists, nil
}

func (e *Engine) roleExists(ctx context.Context, role string) (bool, error) {
	out, err := e.Exec.Query(ctx, "", fmt.Sprintf(
		"SELECT 1 FROM pg_roles WHERE rolname = %s", QuoteLiteral(role)))
	if err != nil {
		return false, err
	}
	return out == "1", nil
}

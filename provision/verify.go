package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Authenticator checks that a set of credentials actually works against
// the running store.
type Authenticator interface {
	Check(ctx context.Context, dsn string) error
}

// PgxAuthenticator opens a real connection and runs a trivial query.
type PgxAuthenticator struct{}

func (PgxAuthenticator) Check(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	var one int
	if err := conn.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return err
	}
	return nil
}

// VerifyError carries a diagnostic hint alongside the underlying cause, so
// the operator can tell a credential problem from an unreachable store.
type VerifyError struct {
	Hint string
	Err  error
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("%v (%s)", e.Err, e.Hint)
}

func (e *VerifyError) Unwrap() error { return e.Err }

// Verify confirms the provisioned state end to end: the primary role can
// log in to the application database, and every extension in
// expectExtensions is actually present. Callers pass the extensions that
// installed successfully; ones that already failed are reported as
// warnings elsewhere and are not re-checked here.
func (e *Engine) Verify(ctx context.Context, dsn string, expectExtensions []string) ([]string, error) {
	if err := e.Auth.Check(ctx, dsn); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && (pgErr.Code == "28P01" || pgErr.Code == "28000") {
			return nil, &VerifyError{
				Hint: "authentication failed: the role may predate this run with a different password; check the configured credentials",
				Err:  err,
			}
		}
		return nil, &VerifyError{
			Hint: "store unreachable: the database container may not be accepting connections",
			Err:  err,
		}
	}

	var missing []string
	for _, ext := range expectExtensions {
		out, err := e.Exec.Query(ctx, e.Target.Database, fmt.Sprintf(
			"SELECT 1 FROM pg_extension WHERE extname = %s", QuoteLiteral(ext)))
		if err != nil {
			return missing, &VerifyError{
				Hint: "extension presence check failed",
				Err:  err,
			}
		}
		if strings.TrimSpace(out) != "1" {
			missing = append(missing, ext)
		}
	}
	if len(missing) > 0 {
		return missing, &VerifyError{
			Hint: "extensions reported installed are not present",
			Err:  fmt.Errorf("missing extensions: %s", strings.Join(missing, ", ")),
		}
	}
	return nil, nil
}

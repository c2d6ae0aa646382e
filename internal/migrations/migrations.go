// Package migrations applies the embedded schema for the SQL store drivers.
package migrations

import (
	"embed"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
)

//go:embed postgres/*.sql mysql/*.sql
var files embed.FS

const (
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
)

// Up applies every pending migration. An already current schema is not an
// error.
func Up(dialect, databaseURL string) error {
	m, err := open(dialect, databaseURL)
	if err != nil {
		return err
	}
	defer closeMigrate(m)

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "apply migrations")
	}
	return nil
}

// Down rolls back steps migrations, or all of them when steps <= 0.
func Down(dialect, databaseURL string, steps int) error {
	m, err := open(dialect, databaseURL)
	if err != nil {
		return err
	}
	defer closeMigrate(m)

	if steps > 0 {
		err = m.Steps(-steps)
	} else {
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "roll back migrations")
	}
	return nil
}

// Version reports the applied version and whether the last run left the
// schema dirty.
func Version(dialect, databaseURL string) (uint, bool, error) {
	m, err := open(dialect, databaseURL)
	if err != nil {
		return 0, false, err
	}
	defer closeMigrate(m)

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func open(dialect, databaseURL string) (*migrate.Migrate, error) {
	target, err := migrateURL(dialect, databaseURL)
	if err != nil {
		return nil, err
	}
	src, err := iofs.New(files, dialect)
	if err != nil {
		return nil, errors.Wrap(err, "open embedded migrations")
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, target)
	if err != nil {
		return nil, errors.Wrapf(err, "connect %s", dialect)
	}
	return m, nil
}

// migrateURL converts the DSN the store drivers take into the URL form
// golang-migrate expects: pgx5:// for Postgres, mysql:// around the
// go-sql-driver DSN for MySQL.
func migrateURL(dialect, databaseURL string) (string, error) {
	databaseURL = strings.TrimSpace(databaseURL)
	if databaseURL == "" {
		return "", errors.New("database url is required")
	}
	switch dialect {
	case DialectPostgres:
		for _, prefix := range []string{"postgres://", "postgresql://"} {
			if strings.HasPrefix(databaseURL, prefix) {
				return "pgx5://" + strings.TrimPrefix(databaseURL, prefix), nil
			}
		}
		if strings.HasPrefix(databaseURL, "pgx5://") {
			return databaseURL, nil
		}
		return "", errors.Errorf("unsupported postgres url %q", redact(databaseURL))
	case DialectMySQL:
		if strings.HasPrefix(databaseURL, "mysql://") {
			return databaseURL, nil
		}
		return "mysql://" + databaseURL, nil
	default:
		return "", errors.Errorf("no migrations for driver %q", dialect)
	}
}

func redact(url string) string {
	if at := strings.LastIndex(url, "@"); at >= 0 {
		return "***" + url[at:]
	}
	return url
}

func closeMigrate(m *migrate.Migrate) {
	_, _ = m.Close()
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/blackwell-systems/envtrack/internal/environment"
	"github.com/blackwell-systems/envtrack/internal/pkgs"
)

// Export implements environment.Exporter by saving env.
func (s *Store) Export(ctx context.Context, env *environment.Environment) error {
	return s.SaveEnvironment(ctx, env)
}

// SaveEnvironment writes env in one transaction. History entries already
// stored are kept; only new ones are appended. The declared package set and
// the dependency snapshot are replaced.
func (s *Store) SaveEnvironment(ctx context.Context, env *environment.Environment) error {
	history := env.History()
	deps := env.Dependencies()
	now := s.now().UTC().Format(time.RFC3339Nano)

	channels, err := json.Marshal(nonNil(history.Channels))
	if err != nil {
		return fmt.Errorf("failed to marshal channels: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO environments (id, name, channels, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, channels = excluded.channels, updated_at = excluded.updated_at
	`, env.ID, env.Name, string(channels), now, now)
	if err != nil {
		return fmt.Errorf("failed to save environment %s: %w", env.Name, notInitialized(err))
	}

	var stored int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM history_entries WHERE env_id = ?`, env.ID).Scan(&stored); err != nil {
		return fmt.Errorf("failed to count history entries: %w", err)
	}
	if stored > history.Len() {
		return fmt.Errorf("refusing to save %s: stored history has %d entries, environment has %d", env.Name, stored, history.Len())
	}

	for seq := stored; seq < history.Len(); seq++ {
		if err := insertEntry(ctx, tx, env.ID, seq, history.Entries[seq]); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM history_packages WHERE env_id = ?`, env.ID); err != nil {
		return fmt.Errorf("failed to clear declared packages: %w", err)
	}
	for _, eco := range pkgs.Ecosystems {
		for _, p := range history.Declared(eco) {
			var requested sql.NullString
			requested.String, requested.Valid = history.Requested[eco][p.Name]
			_, err := tx.ExecContext(ctx, `
				INSERT INTO history_packages (env_id, ecosystem, name, version, channel, requested)
				VALUES (?, ?, ?, ?, ?, ?)
			`, env.ID, string(eco), p.Name, p.Version, p.Channel, requested)
			if err != nil {
				return fmt.Errorf("failed to insert declared package %s: %w", p.Name, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM dependencies WHERE env_id = ?`, env.ID); err != nil {
		return fmt.Errorf("failed to clear dependencies: %w", err)
	}
	for _, eco := range pkgs.Ecosystems {
		for _, d := range deps.Sorted(eco) {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO dependencies (env_id, ecosystem, name, version, channel, direct)
				VALUES (?, ?, ?, ?, ?, ?)
			`, env.ID, string(eco), d.Name, d.Version, d.Channel, d.Direct)
			if err != nil {
				return fmt.Errorf("failed to insert dependency %s: %w", d.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit environment %s: %w", env.Name, err)
	}
	return nil
}

func insertEntry(ctx context.Context, tx *sql.Tx, envID string, seq int, e environment.Entry) error {
	packagesJSON, err := json.Marshal(nonNil(e.Packages))
	if err != nil {
		return fmt.Errorf("failed to marshal entry packages: %w", err)
	}
	depsJSON, err := json.Marshal(e.Dependencies)
	if err != nil {
		return fmt.Errorf("failed to marshal entry dependencies: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO history_entries (env_id, seq, kind, ecosystem, log, action, packages, dependencies, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		envID,
		seq,
		string(e.Kind),
		string(e.Ecosystem),
		e.Log,
		e.Action,
		string(packagesJSON),
		string(depsJSON),
		e.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert history entry %d: %w", seq+1, err)
	}
	return nil
}

// LoadEnvironment restores the environment called name. opts are passed to
// environment.Load so the caller can attach handlers and exporters.
func (s *Store) LoadEnvironment(ctx context.Context, name string, opts ...environment.Option) (*environment.Environment, error) {
	var id, channelsJSON string
	err := s.db.QueryRowContext(ctx, `SELECT id, channels FROM environments WHERE name = ?`, name).Scan(&id, &channelsJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get environment %s: %w", name, notInitialized(err))
	}

	history := environment.NewHistory()
	if err := json.Unmarshal([]byte(channelsJSON), &history.Channels); err != nil {
		return nil, fmt.Errorf("failed to unmarshal channels for %s: %w", name, err)
	}
	if history.Entries, err = s.entries(ctx, id); err != nil {
		return nil, err
	}
	if err := s.declared(ctx, id, history); err != nil {
		return nil, err
	}
	deps, err := s.dependencies(ctx, id)
	if err != nil {
		return nil, err
	}

	return environment.Load(id, name, deps, history, opts...), nil
}

func (s *Store) entries(ctx context.Context, envID string) ([]environment.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, ecosystem, log, action, packages, dependencies, timestamp
		FROM history_entries
		WHERE env_id = ?
		ORDER BY seq
	`, envID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history entries: %w", err)
	}
	defer rows.Close()

	var entries []environment.Entry
	for rows.Next() {
		var e environment.Entry
		var kind, eco, packagesJSON, depsJSON, timestamp string
		if err := rows.Scan(&kind, &eco, &e.Log, &e.Action, &packagesJSON, &depsJSON, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history entry row: %w", err)
		}
		e.Kind = environment.Kind(kind)
		e.Ecosystem = pkgs.Ecosystem(eco)

		if err := json.Unmarshal([]byte(packagesJSON), &e.Packages); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entry packages: %w", err)
		}
		if err := json.Unmarshal([]byte(depsJSON), &e.Dependencies); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entry dependencies: %w", err)
		}
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, timestamp); err != nil {
			return nil, fmt.Errorf("failed to parse entry timestamp: %w", err)
		}

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history entries: %w", err)
	}
	return entries, nil
}

func (s *Store) declared(ctx context.Context, envID string, history *environment.History) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ecosystem, name, version, channel, requested
		FROM history_packages
		WHERE env_id = ?
	`, envID)
	if err != nil {
		return fmt.Errorf("failed to query declared packages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var eco string
		var p pkgs.Package
		var version, channel, requested sql.NullString
		if err := rows.Scan(&eco, &p.Name, &version, &channel, &requested); err != nil {
			return fmt.Errorf("failed to scan declared package row: %w", err)
		}
		p.Version = version.String
		p.Channel = channel.String

		e := pkgs.Ecosystem(eco)
		if history.Packages[e] == nil {
			history.Packages[e] = make(map[string]pkgs.Package)
		}
		history.Packages[e][p.Name] = p
		if requested.Valid {
			if history.Requested[e] == nil {
				history.Requested[e] = make(map[string]string)
			}
			history.Requested[e][p.Name] = requested.String
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating declared packages: %w", err)
	}
	return nil
}

func (s *Store) dependencies(ctx context.Context, envID string) (environment.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ecosystem, name, version, channel, direct
		FROM dependencies
		WHERE env_id = ?
	`, envID)
	if err != nil {
		return nil, fmt.Errorf("failed to query dependencies: %w", err)
	}
	defer rows.Close()

	deps := environment.Snapshot{}
	for rows.Next() {
		var eco string
		var d environment.Dependency
		var channel sql.NullString
		if err := rows.Scan(&eco, &d.Name, &d.Version, &channel, &d.Direct); err != nil {
			return nil, fmt.Errorf("failed to scan dependency row: %w", err)
		}
		d.Channel = channel.String

		e := pkgs.Ecosystem(eco)
		if deps[e] == nil {
			deps[e] = make(map[string]environment.Dependency)
		}
		deps[e][d.Name] = d
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dependencies: %w", err)
	}
	return deps, nil
}

// ListEnvironments returns every stored environment ordered by name.
func (s *Store) ListEnvironments(ctx context.Context) ([]*EnvironmentSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.name, e.created_at, e.updated_at, COUNT(h.seq)
		FROM environments e
		LEFT JOIN history_entries h ON h.env_id = e.id
		GROUP BY e.id
		ORDER BY e.name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list environments: %w", notInitialized(err))
	}
	defer rows.Close()

	var out []*EnvironmentSummary
	for rows.Next() {
		var sum EnvironmentSummary
		var createdAt, updatedAt string
		if err := rows.Scan(&sum.ID, &sum.Name, &createdAt, &updatedAt, &sum.Entries); err != nil {
			return nil, fmt.Errorf("failed to scan environment row: %w", err)
		}
		if sum.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at for %s: %w", sum.Name, err)
		}
		if sum.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
			return nil, fmt.Errorf("failed to parse updated_at for %s: %w", sum.Name, err)
		}
		out = append(out, &sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating environments: %w", err)
	}
	return out, nil
}

// DeleteEnvironment removes the environment called name and everything
// recorded for it.
func (s *Store) DeleteEnvironment(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM environments WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete environment %s: %w", name, notInitialized(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

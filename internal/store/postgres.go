package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blackboard-protocol/blackboard/internal/models"
)

// PostgresStore handles PostgreSQL database operations for projects.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool
// and ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	store := &PostgresStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *PostgresStore) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			name TEXT UNIQUE NOT NULL,
			channel_id TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)
	`)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateProject creates a new project with a fresh project id and
// channel id. Returns ErrProjectExists if the name is taken.
func (s *PostgresStore) CreateProject(ctx context.Context, name string) (*models.Project, error) {
	existing, err := s.GetProjectByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrProjectExists
	}

	project := &models.Project{
		ID:        uuid.NewString(),
		Name:      name,
		ChannelID: uuid.NewString(),
		CreatedAt: time.Now().UnixMilli(),
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO projects (id, name, channel_id, created_at)
		VALUES ($1, $2, $3, $4)
	`, project.ID, project.Name, project.ChannelID, project.CreatedAt)
	if err != nil {
		return nil, err
	}

	return project, nil
}

// GetProject retrieves a project by id.
func (s *PostgresStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	return s.scanProject(s.pool.QueryRow(ctx, `
		SELECT id, name, channel_id, created_at
		FROM projects WHERE id = $1
	`, id))
}

// GetProjectByName retrieves a project by name.
func (s *PostgresStore) GetProjectByName(ctx context.Context, name string) (*models.Project, error) {
	return s.scanProject(s.pool.QueryRow(ctx, `
		SELECT id, name, channel_id, created_at
		FROM projects WHERE name = $1
	`, name))
}

func (s *PostgresStore) scanProject(row pgx.Row) (*models.Project, error) {
	project := &models.Project{}
	err := row.Scan(&project.ID, &project.Name, &project.ChannelID, &project.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return project, nil
}

// ListProjects returns all projects, newest first.
func (s *PostgresStore) ListProjects(ctx context.Context) ([]models.Project, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, channel_id, created_at
		FROM projects ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.ChannelID, &p.CreatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// DeleteProject removes a project. Returns false if it did not exist.
func (s *PostgresStore) DeleteProject(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

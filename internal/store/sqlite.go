package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/blackboard-protocol/blackboard/internal/models"
)

// SQLiteStore handles SQLite database operations for projects.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/blackboard.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/blackboard.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT UNIQUE NOT NULL,
		channel_id TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_projects_name ON projects(name);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateProject creates a new project with a fresh project id and
// channel id. Returns ErrProjectExists if the name is taken.
func (s *SQLiteStore) CreateProject(ctx context.Context, name string) (*models.Project, error) {
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

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, channel_id, created_at)
		VALUES (?, ?, ?, ?)
	`, project.ID, project.Name, project.ChannelID, project.CreatedAt)
	if err != nil {
		return nil, err
	}

	return project, nil
}

// GetProject retrieves a project by id.
func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	return s.scanProject(s.db.QueryRowContext(ctx, `
		SELECT id, name, channel_id, created_at
		FROM projects WHERE id = ?
	`, id))
}

// GetProjectByName retrieves a project by name.
func (s *SQLiteStore) GetProjectByName(ctx context.Context, name string) (*models.Project, error) {
	return s.scanProject(s.db.QueryRowContext(ctx, `
		SELECT id, name, channel_id, created_at
		FROM projects WHERE name = ?
	`, name))
}

func (s *SQLiteStore) scanProject(row *sql.Row) (*models.Project, error) {
	project := &models.Project{}
	err := row.Scan(&project.ID, &project.Name, &project.ChannelID, &project.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return project, nil
}

// ListProjects returns all projects, newest first.
func (s *SQLiteStore) ListProjects(ctx context.Context) ([]models.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
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
func (s *SQLiteStore) DeleteProject(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

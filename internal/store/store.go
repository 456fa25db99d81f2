package store

import (
	"context"

	"github.com/blackboard-protocol/blackboard/internal/models"
)

// ProjectStore defines the interface for persistent project metadata.
// Both PostgresStore and SQLiteStore implement this interface.
type ProjectStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Project operations
	CreateProject(ctx context.Context, name string) (*models.Project, error)
	GetProject(ctx context.Context, id string) (*models.Project, error)
	GetProjectByName(ctx context.Context, name string) (*models.Project, error)
	ListProjects(ctx context.Context) ([]models.Project, error)
	DeleteProject(ctx context.Context, id string) (bool, error)
}

// Package registry persists the directory state served by the hub: projects
// and the application instances registered under them.
package registry

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrProjectNotFound  = errors.New("project not found")
	ErrInstanceNotFound = errors.New("instance not found")
)

// Instance phases. An instance's StatusURL stays empty until the supervisor
// reports it healthy.
const (
	PhasePending  = "pending"
	PhaseStarting = "starting"
	PhaseRunning  = "running"
	PhaseStopped  = "stopped"
	PhaseFailed   = "failed"
)

// Project groups application instances.
type Project struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Instance is a registered application instance. StatusURL is the empty
// string until the instance has a reachable network address.
type Instance struct {
	ID        string    `db:"id" json:"id"`
	ProjectID string    `db:"project_id" json:"projectId"`
	Name      string    `db:"name" json:"name"`
	BinPath   string    `db:"bin_path" json:"binPath"`
	StatusURL string    `db:"status_url" json:"statusUrl"`
	Phase     string    `db:"phase" json:"phase"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Registry provides access to the directory database.
type Registry struct {
	db *sqlx.DB
}

// Open opens (creating if necessary) the registry database at the given
// path and initializes the schema.
func Open(path string) (*Registry, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}

	r := &Registry{db: db}
	if err := r.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// Close closes the underlying database.
func (r *Registry) Close() error {
	return r.db.Close()
}

// DB exposes the underlying database handle so other hub components, such
// as the session manager, can share it.
func (r *Registry) DB() *sqlx.DB {
	return r.db
}

func (r *Registry) initSchema() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS projects_v1 (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			created_at TIMESTAMP NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create projects table: %w", err)
	}

	_, err = r.db.Exec(`
		CREATE TABLE IF NOT EXISTS instances_v1 (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL REFERENCES projects_v1(id),
			name TEXT NOT NULL,
			bin_path TEXT NOT NULL,
			status_url TEXT NOT NULL DEFAULT '',
			phase TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMP NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create instances table: %w", err)
	}

	_, err = r.db.Exec(`CREATE INDEX IF NOT EXISTS idx_instances_project ON instances_v1(project_id)`)
	if err != nil {
		return fmt.Errorf("failed to create instances project index: %w", err)
	}
	return nil
}

// CreateProject registers a new project with a generated ID.
func (r *Registry) CreateProject(name string) (*Project, error) {
	project := &Project{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	_, err := r.db.Exec(
		`INSERT INTO projects_v1 (id, name, created_at) VALUES ($1, $2, $3)`,
		project.ID, project.Name, project.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create project %s: %w", name, err)
	}
	return project, nil
}

// DefaultProject returns the project named "default", creating it on first
// use. The hub serves this as the caller's current project context.
func (r *Registry) DefaultProject() (*Project, error) {
	var project Project
	err := r.db.Get(&project, `SELECT id, name, created_at FROM projects_v1 WHERE name = 'default'`)
	if err == nil {
		return &project, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up default project: %w", err)
	}
	return r.CreateProject("default")
}

// GetProject retrieves a project by ID.
func (r *Registry) GetProject(id string) (*Project, error) {
	var project Project
	err := r.db.Get(&project, `SELECT id, name, created_at FROM projects_v1 WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project %s: %w", id, err)
	}
	return &project, nil
}

// CreateInstance registers a new instance under a project. The instance
// starts in the pending phase with no status URL.
func (r *Registry) CreateInstance(projectID, name, binPath string) (*Instance, error) {
	if _, err := r.GetProject(projectID); err != nil {
		return nil, err
	}

	instance := &Instance{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Name:      name,
		BinPath:   binPath,
		Phase:     PhasePending,
		CreatedAt: time.Now().UTC(),
	}
	_, err := r.db.Exec(
		`INSERT INTO instances_v1 (id, project_id, name, bin_path, status_url, phase, created_at)
		 VALUES ($1, $2, $3, $4, '', $5, $6)`,
		instance.ID, instance.ProjectID, instance.Name, instance.BinPath, instance.Phase, instance.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create instance %s: %w", name, err)
	}
	return instance, nil
}

// GetInstance retrieves an instance by ID.
func (r *Registry) GetInstance(id string) (*Instance, error) {
	var instance Instance
	err := r.db.Get(&instance,
		`SELECT id, project_id, name, bin_path, status_url, phase, created_at
		 FROM instances_v1 WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInstanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instance %s: %w", id, err)
	}
	return &instance, nil
}

// ListInstances returns all instances of a project in registration order.
// The order is stable because identifier matching treats it as
// authoritative.
func (r *Registry) ListInstances(projectID string) ([]Instance, error) {
	instances := []Instance{}
	err := r.db.Select(&instances,
		`SELECT id, project_id, name, bin_path, status_url, phase, created_at
		 FROM instances_v1 WHERE project_id = $1 ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances for project %s: %w", projectID, err)
	}
	return instances, nil
}

// SetInstanceStatus updates an instance's phase and status URL.
func (r *Registry) SetInstanceStatus(id, statusURL, phase string) error {
	result, err := r.db.Exec(
		`UPDATE instances_v1 SET status_url = $1, phase = $2 WHERE id = $3`,
		statusURL, phase, id)
	if err != nil {
		return fmt.Errorf("failed to update status for instance %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrInstanceNotFound
	}
	return nil
}

// DeleteInstance removes an instance from the registry.
func (r *Registry) DeleteInstance(id string) error {
	result, err := r.db.Exec(`DELETE FROM instances_v1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete instance %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrInstanceNotFound
	}
	return nil
}

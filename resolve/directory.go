package resolve

import "context"

// Project identifies the caller's project context in the directory service.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// InstanceStatus is the runtime status of an application instance. URL is
// the empty string until the instance has a reachable network address.
type InstanceStatus struct {
	URL   string `json:"url"`
	Phase string `json:"phase"`
}

// Instance is a running deployment of an application as reported by the
// directory service.
type Instance struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Status InstanceStatus `json:"status"`
}

// Directory is the directory-service capability the resolver consumes. It
// must already be authenticated; the resolver never touches credentials.
// The order of the slice returned by ListInstances is authoritative for
// identifier matching.
type Directory interface {
	// CurrentProject resolves the caller's project context.
	CurrentProject(ctx context.Context) (Project, error)
	// ListInstances lists all application instances registered under the
	// given project.
	ListInstances(ctx context.Context, projectID string) ([]Instance, error)
}

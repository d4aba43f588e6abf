package registry

import (
	"errors"
	"testing"
)

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open registry: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestDefaultProject(t *testing.T) {
	r := openTestRegistry(t)

	first, err := r.DefaultProject()
	if err != nil {
		t.Fatalf("DefaultProject failed: %v", err)
	}
	if first.Name != "default" {
		t.Errorf("project name = %q, want default", first.Name)
	}

	second, err := r.DefaultProject()
	if err != nil {
		t.Fatalf("second DefaultProject failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("DefaultProject created a new project: %s vs %s", second.ID, first.ID)
	}
}

func TestInstanceLifecycle(t *testing.T) {
	r := openTestRegistry(t)
	project, err := r.DefaultProject()
	if err != nil {
		t.Fatalf("DefaultProject failed: %v", err)
	}

	created, err := r.CreateInstance(project.ID, "quickstart", "dist/bin/quickstart")
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	if created.Phase != PhasePending || created.StatusURL != "" {
		t.Errorf("new instance must be pending with no URL, got phase=%q url=%q", created.Phase, created.StatusURL)
	}

	got, err := r.GetInstance(created.ID)
	if err != nil {
		t.Fatalf("GetInstance failed: %v", err)
	}
	if got.Name != "quickstart" || got.BinPath != "dist/bin/quickstart" {
		t.Errorf("unexpected instance: %+v", got)
	}

	if err := r.SetInstanceStatus(created.ID, "http://localhost:10001", PhaseRunning); err != nil {
		t.Fatalf("SetInstanceStatus failed: %v", err)
	}
	got, err = r.GetInstance(created.ID)
	if err != nil {
		t.Fatalf("GetInstance after update failed: %v", err)
	}
	if got.StatusURL != "http://localhost:10001" || got.Phase != PhaseRunning {
		t.Errorf("status not updated: %+v", got)
	}

	if err := r.DeleteInstance(created.ID); err != nil {
		t.Fatalf("DeleteInstance failed: %v", err)
	}
	if _, err := r.GetInstance(created.ID); !errors.Is(err, ErrInstanceNotFound) {
		t.Errorf("expected ErrInstanceNotFound after delete, got %v", err)
	}
}

func TestListInstancesOrder(t *testing.T) {
	r := openTestRegistry(t)
	project, err := r.DefaultProject()
	if err != nil {
		t.Fatalf("DefaultProject failed: %v", err)
	}

	names := []string{"alpha", "beta", "gamma"}
	for _, name := range names {
		if _, err := r.CreateInstance(project.ID, name, "bin/"+name); err != nil {
			t.Fatalf("CreateInstance(%s) failed: %v", name, err)
		}
	}

	instances, err := r.ListInstances(project.ID)
	if err != nil {
		t.Fatalf("ListInstances failed: %v", err)
	}
	if len(instances) != len(names) {
		t.Fatalf("got %d instances, want %d", len(instances), len(names))
	}
	for i, name := range names {
		if instances[i].Name != name {
			t.Errorf("instance %d = %q, want %q (registration order must be stable)", i, instances[i].Name, name)
		}
	}
}

func TestNotFoundErrors(t *testing.T) {
	r := openTestRegistry(t)

	if _, err := r.GetProject("nope"); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("GetProject: expected ErrProjectNotFound, got %v", err)
	}
	if _, err := r.GetInstance("nope"); !errors.Is(err, ErrInstanceNotFound) {
		t.Errorf("GetInstance: expected ErrInstanceNotFound, got %v", err)
	}
	if err := r.SetInstanceStatus("nope", "", PhaseFailed); !errors.Is(err, ErrInstanceNotFound) {
		t.Errorf("SetInstanceStatus: expected ErrInstanceNotFound, got %v", err)
	}
	if err := r.DeleteInstance("nope"); !errors.Is(err, ErrInstanceNotFound) {
		t.Errorf("DeleteInstance: expected ErrInstanceNotFound, got %v", err)
	}
	if _, err := r.CreateInstance("nope", "x", "bin/x"); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("CreateInstance: expected ErrProjectNotFound, got %v", err)
	}
}

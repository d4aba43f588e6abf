package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Helias/lightning/resolve"
)

// CurrentProject implements resolve.Directory by querying the hub for the
// caller's project context.
func (c *Client) CurrentProject(ctx context.Context) (resolve.Project, error) {
	var project resolve.Project

	resp, err := c.do(ctx, "GET", "/api/v1/projects/current")
	if err != nil {
		return project, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return project, WrapHTTPError(resp, "failed to resolve current project")
	}
	if err := json.NewDecoder(resp.Body).Decode(&project); err != nil {
		return project, NewErrorWithCause(ErrorTypeAPI, "failed to decode project response", err)
	}
	return project, nil
}

// ListInstances implements resolve.Directory by listing the application
// instances registered under a project. The hub's listing order is
// preserved.
func (c *Client) ListInstances(ctx context.Context, projectID string) ([]resolve.Instance, error) {
	resp, err := c.do(ctx, "GET", fmt.Sprintf("/api/v1/projects/%s/instances", projectID))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, WrapHTTPError(resp, fmt.Sprintf("failed to list instances for project %s", projectID))
	}

	var instances []resolve.Instance
	if err := json.NewDecoder(resp.Body).Decode(&instances); err != nil {
		return nil, NewErrorWithCause(ErrorTypeAPI, "failed to decode instances response", err)
	}
	return instances, nil
}

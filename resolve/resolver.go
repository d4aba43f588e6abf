// Package resolve locates the live network endpoint of a running application
// instance and fetches its command manifest.
//
// Resolution works through an ordered set of strategies: a direct URL is
// queried as-is, an absent identifier is first tried against the local app
// server, and anything else (or a local server that isn't running) is looked
// up in the directory service. The first strategy that yields a result
// short-circuits the rest.
package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultLocalPort is the well-known port the local app server listens on.
const DefaultLocalPort = 7501

// commandsPath is the manifest endpoint exposed by every app server.
const commandsPath = "/api/v1/commands"

// Manifest is the command manifest document returned by an app server. It
// is treated as an opaque payload and passed through unmodified.
type Manifest = json.RawMessage

// Resolver resolves application identifiers to live endpoints. It holds no
// state between calls and is safe to use from multiple call sites, provided
// the underlying HTTP client is reentrant.
type Resolver struct {
	directory  Directory
	httpClient *http.Client
	localPort  int
}

// Option represents a functional option for configuring the Resolver.
type Option func(*Resolver)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Resolver) {
		r.httpClient = client
	}
}

// WithLocalPort overrides the well-known local app server port.
func WithLocalPort(port int) Option {
	return func(r *Resolver) {
		r.localPort = port
	}
}

// NewResolver creates a Resolver. The directory client must already be
// authenticated; it is only consulted for the remote-lookup strategy, so it
// may be nil when callers resolve direct URLs or local instances only.
func NewResolver(directory Directory, options ...Option) *Resolver {
	r := &Resolver{
		directory:  directory,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		localPort:  DefaultLocalPort,
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// Resolve determines the endpoint URL of the application identified by id
// and fetches its command manifest.
//
// When the identifier matches nothing at all, Resolve returns ("", nil, nil)
// rather than an error; the distinct failure modes (unreachable endpoint,
// missing identifier, instance still starting) are reported as
// RemoteProtocolError, InputError and NotReadyError respectively.
//
// Network calls are made one at a time, never concurrently, and are not
// retried. Callers needing resilience must wrap Resolve themselves.
func (r *Resolver) Resolve(ctx context.Context, id Identifier) (string, Manifest, error) {
	// 1: A direct URL is queried as-is, without consulting the directory.
	if id.Kind == KindURL {
		manifest, err := r.fetchManifest(ctx, id.Value)
		if err != nil {
			return "", nil, err
		}
		return id.Value, manifest, nil
	}

	// 2: With no identifier, try the local app server first. A transport
	// failure means no local instance is running and falls through to the
	// directory lookup; a reachable server that answers with an error does
	// not.
	failedLocally := false
	if id.Kind == KindUnspecified {
		localURL := fmt.Sprintf("http://localhost:%d", r.localPort)
		manifest, err := r.fetchManifest(ctx, localURL)
		switch {
		case err == nil:
			return localURL, manifest, nil
		case IsRemoteProtocolError(err):
			return "", nil, err
		default:
			failedLocally = true
		}
	}

	// 3: An explicit reference, or a local miss, is looked up remotely.
	if id.Kind == KindReference || failedLocally {
		if r.directory == nil {
			return "", nil, fmt.Errorf("no directory client configured for remote lookup")
		}

		project, err := r.directory.CurrentProject(ctx)
		if err != nil {
			return "", nil, fmt.Errorf("failed to resolve project context: %w", err)
		}
		instances, err := r.directory.ListInstances(ctx, project.ID)
		if err != nil {
			return "", nil, fmt.Errorf("failed to list instances for project %s: %w", project.ID, err)
		}

		if id.Kind == KindUnspecified {
			names := make([]string, 0, len(instances))
			for _, instance := range instances {
				names = append(names, instance.Name)
			}
			return "", nil, &InputError{KnownNames: names}
		}

		// Exact, case-sensitive match on id or name; first match in the
		// listing order wins.
		for _, instance := range instances {
			if instance.ID != id.Value && instance.Name != id.Value {
				continue
			}
			if instance.Status.URL == "" {
				return "", nil, &NotReadyError{Ref: id.Value}
			}
			manifest, err := r.fetchManifest(ctx, instance.Status.URL)
			if err != nil {
				return "", nil, err
			}
			return instance.Status.URL, manifest, nil
		}
	}

	// Nothing matched. This is a silent not-found, not an error.
	return "", nil, nil
}

// fetchManifest GETs {baseURL}/api/v1/commands and returns the body. A
// transport-level failure is returned as-is; a response with a non-OK status
// becomes a RemoteProtocolError carrying the body.
func (r *Resolver) fetchManifest(ctx context.Context, baseURL string) (Manifest, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", baseURL+commandsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest request for %s: %w", baseURL, err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("manifest request to %s failed: %w", baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest response from %s: %w", baseURL, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &RemoteProtocolError{
			URL:        baseURL,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	return Manifest(body), nil
}

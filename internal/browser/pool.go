package browser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

const (
	chromeImage = "browserless/chrome:latest"
	chromePort  = "3000/tcp"
	managedBy   = "pagestitch"
)

// Container is a running headless Chrome container
type Container struct {
	ID      string
	HostID  string
	Port    string
	HTTPURL string
}

// Pool launches headless Chrome in docker containers
type Pool struct {
	client       *client.Client
	readyTimeout time.Duration
}

// NewPool connects to the docker daemon from the environment
func NewPool() (*Pool, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &Pool{
		client:       cli,
		readyTimeout: 10 * time.Second,
	}, nil
}

// Launch starts one Chrome container and waits until its DevTools endpoint
// answers.
func (p *Pool) Launch(ctx context.Context, hostID string) (*Container, error) {
	containerConfig := &container.Config{
		Image: chromeImage,
		Labels: map[string]string{
			"host-id":    hostID,
			"managed-by": managedBy,
		},
		Env: []string{
			"CONNECTION_TIMEOUT=-1",
			"MAX_CONCURRENT_SESSIONS=10",
			"PREBOOT_CHROME=true",
			"KEEP_ALIVE=true",
			"EXIT_ON_HEALTH_FAILURE=false",
		},
		ExposedPorts: nat.PortSet{
			chromePort: struct{}{},
		},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			chromePort: []nat.PortBinding{
				{
					HostIP:   "127.0.0.1",
					HostPort: "0",
				},
			},
		},
		ShmSize: 1 << 30,
	}

	name := fmt.Sprintf("pagestitch-%s", shortID(hostID))
	resp, err := p.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	if err := p.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	inspect, err := p.client.ContainerInspect(ctx, resp.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}
	bindings := inspect.NetworkSettings.Ports[chromePort]
	if len(bindings) == 0 {
		return nil, fmt.Errorf("container %s exposes no DevTools port", shortID(resp.ID))
	}
	port := bindings[0].HostPort

	c := &Container{
		ID:      resp.ID,
		HostID:  hostID,
		Port:    port,
		HTTPURL: fmt.Sprintf("http://127.0.0.1:%s", port),
	}
	if err := p.waitReady(ctx, c); err != nil {
		_ = p.Stop(context.WithoutCancel(ctx), c.ID)
		return nil, fmt.Errorf("browser failed to become ready: %w", err)
	}
	return c, nil
}

// Stop stops and removes a container
func (p *Pool) Stop(ctx context.Context, containerID string) error {
	timeout := 10
	if err := p.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	if err := p.client.ContainerRemove(ctx, containerID, container.RemoveOptions{}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// Sweep removes containers left behind by an earlier process
func (p *Pool) Sweep(ctx context.Context) (int, error) {
	list, err := p.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", "managed-by="+managedBy)),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list containers: %w", err)
	}
	for _, c := range list {
		if err := p.client.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil {
			return 0, fmt.Errorf("failed to remove container %s: %w", shortID(c.ID), err)
		}
	}
	return len(list), nil
}

// IsHealthy reports whether the container is still running
func (p *Pool) IsHealthy(ctx context.Context, containerID string) bool {
	inspect, err := p.client.ContainerInspect(ctx, containerID)
	if err != nil {
		return false
	}
	return inspect.State.Running
}

// EnsureImage pulls the Chrome image when it is missing
func (p *Pool) EnsureImage(ctx context.Context) error {
	images, err := p.client.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return err
	}
	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == chromeImage {
				return nil
			}
		}
	}

	reader, err := p.client.ImagePull(ctx, chromeImage, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

// Close closes the docker client
func (p *Pool) Close() error {
	return p.client.Close()
}

// waitReady polls /json/version until Chrome answers
func (p *Pool) waitReady(ctx context.Context, c *Container) error {
	ctx, cancel := context.WithTimeout(ctx, p.readyTimeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.HTTPURL+"/json/version", nil)
		if err != nil {
			return err
		}
		if resp, err := http.DefaultClient.Do(req); err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("no answer from %s: %w", c.HTTPURL, ctx.Err())
		case <-ticker.C:
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

package docker

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// Fake Client
// =============================================================================

// fakeClient is an in-memory Client. Errors can be injected per operation.
type fakeClient struct {
	mu sync.Mutex

	containers map[string]*ContainerInfo // by name
	networks   map[string]NetworkInfo
	volumes    map[string]VolumeInfo
	images     map[string]bool

	pulled  []string
	built   []BuildSpec
	created []ContainerSpec
	started []string
	removed []string
	logs    string

	errs map[string]error // op name → error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		containers: make(map[string]*ContainerInfo),
		networks:   make(map[string]NetworkInfo),
		volumes:    make(map[string]VolumeInfo),
		images:     make(map[string]bool),
		errs:       make(map[string]error),
	}
}

func (f *fakeClient) fail(op string) error {
	return f.errs[op]
}

func (f *fakeClient) CreateContainer(_ context.Context, spec ContainerSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("CreateContainer"); err != nil {
		return "", err
	}
	if _, ok := f.containers[spec.Name]; ok {
		return "", NewDockerError("CreateContainer", "container", spec.Name, "exists", ErrContainerAlreadyExists)
	}
	f.created = append(f.created, spec)
	f.containers[spec.Name] = &ContainerInfo{
		ID:     "id-" + spec.Name,
		Name:   spec.Name,
		Image:  spec.Image,
		Status: ContainerStatusCreated,
		Labels: spec.Labels,
	}
	return "id-" + spec.Name, nil
}

func (f *fakeClient) byID(id string) *ContainerInfo {
	for _, c := range f.containers {
		if c.ID == id || c.Name == id {
			return c
		}
	}
	return nil
}

func (f *fakeClient) StartContainer(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("StartContainer"); err != nil {
		return err
	}
	c := f.byID(id)
	if c == nil {
		return NewDockerError("StartContainer", "container", id, "not found", ErrContainerNotFound)
	}
	f.started = append(f.started, c.Name)
	c.Status = ContainerStatusRunning
	return nil
}

func (f *fakeClient) StopContainer(_ context.Context, id string, _ *time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.byID(id)
	if c == nil {
		return NewDockerError("StopContainer", "container", id, "not found", ErrContainerNotFound)
	}
	c.Status = ContainerStatusExited
	return nil
}

func (f *fakeClient) RemoveContainer(_ context.Context, id string, _ RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("RemoveContainer"); err != nil {
		return err
	}
	c := f.byID(id)
	if c == nil {
		return NewDockerError("RemoveContainer", "container", id, "not found", ErrContainerNotFound)
	}
	f.removed = append(f.removed, c.Name)
	delete(f.containers, c.Name)
	return nil
}

func (f *fakeClient) InspectContainer(_ context.Context, id string) (*ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("InspectContainer"); err != nil {
		return nil, err
	}
	c := f.byID(id)
	if c == nil {
		return nil, NewDockerError("InspectContainer", "container", id, "not found", ErrContainerNotFound)
	}
	info := *c
	return &info, nil
}

func (f *fakeClient) ListContainers(_ context.Context, opts ListOptions) ([]ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("ListContainers"); err != nil {
		return nil, err
	}
	var out []ContainerInfo
	for _, c := range f.containers {
		if strings.Contains(c.Name, opts.Filters["name"]) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeClient) ContainerLogs(context.Context, string, LogOptions) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(f.logs)), nil
}

func (f *fakeClient) CreateNetwork(_ context.Context, spec NetworkSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.networks[spec.Name]; ok {
		return "", NewDockerError("CreateNetwork", "network", spec.Name, "exists", ErrNetworkAlreadyExists)
	}
	f.networks[spec.Name] = NetworkInfo{ID: "net-" + spec.Name, Name: spec.Name, Labels: spec.Labels}
	return "net-" + spec.Name, nil
}

func (f *fakeClient) RemoveNetwork(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("RemoveNetwork"); err != nil {
		return err
	}
	if _, ok := f.networks[name]; !ok {
		return NewDockerError("RemoveNetwork", "network", name, "not found", ErrNetworkNotFound)
	}
	delete(f.networks, name)
	return nil
}

func (f *fakeClient) ListNetworks(_ context.Context, opts ListOptions) ([]NetworkInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("ListNetworks"); err != nil {
		return nil, err
	}
	var out []NetworkInfo
	for _, n := range f.networks {
		if strings.Contains(n.Name, opts.Filters["name"]) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeClient) CreateVolume(_ context.Context, spec VolumeSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumes[spec.Name] = VolumeInfo{Name: spec.Name, Labels: spec.Labels}
	return spec.Name, nil
}

func (f *fakeClient) RemoveVolume(_ context.Context, name string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("RemoveVolume"); err != nil {
		return err
	}
	if _, ok := f.volumes[name]; !ok {
		return NewDockerError("RemoveVolume", "volume", name, "not found", ErrVolumeNotFound)
	}
	delete(f.volumes, name)
	return nil
}

func (f *fakeClient) ListVolumes(_ context.Context, opts ListOptions) ([]VolumeInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("ListVolumes"); err != nil {
		return nil, err
	}
	var out []VolumeInfo
	for _, v := range f.volumes {
		if strings.Contains(v.Name, opts.Filters["name"]) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeClient) PullImage(_ context.Context, image string, _ PullOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("PullImage"); err != nil {
		return err
	}
	f.pulled = append(f.pulled, image)
	f.images[image] = true
	return nil
}

func (f *fakeClient) ImageExists(_ context.Context, image string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.images[image], nil
}

func (f *fakeClient) BuildImage(_ context.Context, spec BuildSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.built = append(f.built, spec)
	f.images[spec.Tag] = true
	return nil
}

func (f *fakeClient) Ping(context.Context) error { return f.fail("Ping") }
func (f *fakeClient) Close() error             { return nil }

var _ Client = (*fakeClient)(nil)

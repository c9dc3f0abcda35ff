package adminsched

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wisbric/pdpsync/internal/httpclient"
)

// AdminConfig addresses the admin API for one organization/site pair.
type AdminConfig struct {
	Host  string // e.g. "https://admin.hlx.page"
	Org   string
	Site  string
	Ref   string // git ref, defaults to "main"
	Token string // AEM_ADMIN_API_AUTH_TOKEN, sent via the x-auth-token header
}

func (c AdminConfig) ref() string {
	if c.Ref == "" {
		return "main"
	}
	return c.Ref
}

// isMock reports whether this config should use the in-memory stub instead
// of calling a real admin API.
func (c AdminConfig) isMock() bool {
	return c.Org == "mock" || c.Site == "mock"
}

// routeFor maps a queue to its admin API route and delete flag. Preview and
// UnpublishPreview both address the "preview" route; Publish and
// UnpublishLive both address the "live" route — the two routes are shared
// by their materialize/delete pair.
func routeFor(q QueueName) (route string, delete bool) {
	switch q {
	case QueuePreview:
		return "preview", false
	case QueuePublish:
		return "live", false
	case QueueUnpublishLive:
		return "live", true
	case QueueUnpublishPreview:
		return "preview", true
	default:
		return "preview", false
	}
}

// batchRequest is the bulk-job submission body.
type batchRequest struct {
	ForceUpdate bool     `json:"forceUpdate"`
	Paths       []string `json:"paths"`
	Delete      bool     `json:"delete,omitempty"`
}

type submitResponse struct {
	Job struct {
		Topic string `json:"topic"`
		Name  string `json:"name"`
		State string `json:"state"`
		Links struct {
			Self string `json:"self"`
		} `json:"links"`
	} `json:"job"`
}

type jobStatusResponse struct {
	State string `json:"state"`
	Data  struct {
		Resources []struct {
			Path   string `json:"path"`
			Status int    `json:"status"`
		} `json:"resources"`
	} `json:"data"`
	Links struct {
		Details string `json:"details"`
	} `json:"links"`
}

// adminClient issues bulk-job submissions and polls their status through
// the shared httpclient.Client.
type adminClient struct {
	cfg  AdminConfig
	http *httpclient.Client
}

func newAdminClient(cfg AdminConfig, http *httpclient.Client) *adminClient {
	return &adminClient{cfg: cfg, http: http}
}

func (a *adminClient) authHeaders() map[string]string {
	h := map[string]string{"Content-Type": "application/json"}
	if a.cfg.Token != "" {
		h["x-auth-token"] = a.cfg.Token
	}
	return h
}

// submit starts a bulk job for the given paths on the given route.
func (a *adminClient) submit(ctx context.Context, queue QueueName, paths []string) (JobHandle, error) {
	if a.cfg.isMock() {
		return JobHandle{Topic: string(queue), Name: "mock-job", State: "stopped"}, nil
	}

	route, del := routeFor(queue)
	body, err := json.Marshal(batchRequest{ForceUpdate: true, Paths: paths, Delete: del})
	if err != nil {
		return JobHandle{}, fmt.Errorf("encoding batch request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/%s/%s/*", a.cfg.Host, route, a.cfg.Org, a.cfg.Site, a.cfg.ref())
	raw, err := a.http.Do(ctx, "admin.submit_batch", httpclient.Request{
		Method:  "POST",
		URL:     url,
		Headers: a.authHeaders(),
		Body:    body,
	})
	if err != nil {
		return JobHandle{}, err
	}

	var resp submitResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return JobHandle{}, fmt.Errorf("decoding batch submission: %w", err)
	}
	return JobHandle{
		Topic:       resp.Job.Topic,
		Name:        resp.Job.Name,
		State:       resp.Job.State,
		DetailsLink: resp.Job.Links.Self,
	}, nil
}

// poll fetches the current job status. Callers retry until State == "stopped".
func (a *adminClient) poll(ctx context.Context, job JobHandle) (JobHandle, []PathOutcome, error) {
	if a.cfg.isMock() {
		return JobHandle{Topic: job.Topic, Name: job.Name, State: "stopped"}, nil, nil
	}

	url := fmt.Sprintf("%s/job/%s/%s/details", a.cfg.Host, job.Topic, job.Name)
	raw, err := a.http.Do(ctx, "admin.poll_job", httpclient.Request{
		Method:  "GET",
		Headers: a.authHeaders(),
		URL:     url,
	})
	if err != nil {
		return JobHandle{}, nil, err
	}

	var resp jobStatusResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return JobHandle{}, nil, fmt.Errorf("decoding job status: %w", err)
	}

	outcomes := make([]PathOutcome, 0, len(resp.Data.Resources))
	for _, r := range resp.Data.Resources {
		outcomes = append(outcomes, PathOutcome{Path: r.Path, Status: r.Status})
	}
	return JobHandle{Topic: job.Topic, Name: job.Name, State: resp.State}, outcomes, nil
}

// mockDelay is the simulated submission latency used by isMock configs, so
// tests exercise the same in-flight/pending concurrency machinery as
// production without reaching the network.
const mockDelay = time.Second

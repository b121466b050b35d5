package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/3leaps/streamctl/pkg/application"
	"github.com/3leaps/streamctl/pkg/enums"
)

// ErrNoEndpoint is returned when an application has nothing to poll.
var ErrNoEndpoint = errors.New("application has no job endpoint")

// StateFetcher reports the current cluster-side state of an application.
type StateFetcher interface {
	FetchState(ctx context.Context, app *application.Application) (enums.AppState, error)
}

// StateFetcherFunc adapts a function to StateFetcher.
type StateFetcherFunc func(ctx context.Context, app *application.Application) (enums.AppState, error)

func (f StateFetcherFunc) FetchState(ctx context.Context, app *application.Application) (enums.AppState, error) {
	return f(ctx, app)
}

// StaticFetcher serves states from a fixed map keyed by application id.
// Applications missing from the map report StateLost.
type StaticFetcher map[string]enums.AppState

func (s StaticFetcher) FetchState(_ context.Context, app *application.Application) (enums.AppState, error) {
	if st, ok := s[app.ID]; ok {
		return st, nil
	}
	return enums.StateLost, nil
}

// JobManagerFetcher asks a Flink JobManager REST endpoint for the job
// status. The job status names line up with the AppState names.
type JobManagerFetcher struct {
	Client *http.Client
}

// NewJobManagerFetcher returns a fetcher with the given request timeout.
func NewJobManagerFetcher(timeout time.Duration) *JobManagerFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &JobManagerFetcher{Client: &http.Client{Timeout: timeout}}
}

type jobStatus struct {
	State string `json:"state"`
}

func (f *JobManagerFetcher) FetchState(ctx context.Context, app *application.Application) (enums.AppState, error) {
	if app.JobManagerURL == "" || app.JobID == "" {
		return 0, fmt.Errorf("%s: %w", app.ID, ErrNoEndpoint)
	}
	url := strings.TrimRight(app.JobManagerURL, "/") + "/jobs/" + app.JobID

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch job status: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// The JobManager no longer knows the job.
		return enums.StateLost, nil
	case resp.StatusCode != http.StatusOK:
		return 0, fmt.Errorf("fetch job status: unexpected status %d", resp.StatusCode)
	}

	var body jobStatus
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode job status: %w", err)
	}
	return enums.ParseAppState(body.State)
}

package usecase

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	statsdomain "inboxstats-backend/internal/stats/domain"
	"inboxstats-backend/pkg/config"
	"inboxstats-backend/pkg/gmail"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// rateLimitedGmail throttles every message fetch made during the first
// listing, then serves normally.
type rateLimitedGmail struct {
	total      int
	listCalls  atomic.Int32
	fetches    atomic.Int32
	throttled  atomic.Int32
	allArrived chan struct{}
	once       sync.Once
}

func (g *rateLimitedGmail) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.URL.Path == "/gmail/v1/users/me/messages" {
		g.listCalls.Add(1)
		refs := make([]string, g.total)
		for i := range refs {
			refs[i] = fmt.Sprintf(`{"id":"m%d","threadId":"t%d"}`, i, i)
		}
		_, _ = fmt.Fprintf(w, `{"messages":[%s]}`, strings.Join(refs, ","))
		return
	}

	id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	g.fetches.Add(1)
	if g.listCalls.Load() == 1 {
		// Hold the first wave until every fetch is in flight so each one is throttled.
		if g.throttled.Add(1) == int32(g.total) {
			g.once.Do(func() { close(g.allArrived) })
		}
		select {
		case <-g.allArrived:
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"Too many concurrent requests for user","errors":[{"reason":"rateLimitExceeded"}]}}`))
		return
	}

	_, _ = fmt.Fprintf(w, `{
		"id":%q,"threadId":"t","labelIds":["INBOX"],"sizeEstimate":10,"internalDate":"1700000000000",
		"payload":{"mimeType":"text/plain","headers":[{"name":"From","value":"a@example.com"},{"name":"Subject","value":"hi"}]}
	}`, id)
}

func TestPublishAllEmailsRecoversFromGmailRateLimit(t *testing.T) {
	backend := &rateLimitedGmail{total: fetchConcurrency, allArrived: make(chan struct{})}
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	svc, err := gmailapi.NewService(context.Background(),
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"),
	)
	require.NoError(t, err)

	ingestor := &fakeIngestor{}
	runs := &memRunRepo{runs: map[string]statsdomain.LoadRun{}}
	cfg := &config.Config{
		LoadPageSize:   200,
		LoadRetryDelay: 5 * time.Millisecond,
		LoadMaxRetries: 1,
	}
	uc := NewLoadUsecase(&fakeFactory{client: gmail.NewClientFromService(svc)}, ingestor, runs, nil, nil, cfg)

	resp, err := uc.PublishAllEmails(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Pages)

	assert.Len(t, ingestor.published(), fetchConcurrency)
	assert.Equal(t, int32(2), backend.listCalls.Load())
	assert.Equal(t, int32(fetchConcurrency), backend.throttled.Load())
	assert.Greater(t, backend.fetches.Load(), int32(fetchConcurrency))
	assert.Equal(t, statsdomain.LoadRunCompleted, runs.only(t).Status)
}

package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/HamedShams/sprint-insights/internal/config"
	"github.com/HamedShams/sprint-insights/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(config.Config{
		JiraBaseURL:     srv.URL,
		JiraPAT:         "secret",
		JiraPageSize:    2,
		JiraMaxRetries:  3,
		HTTPTimeout:     time.Second,
		JiraSprintField: "customfield_10020",
		JiraPointsField: "customfield_10016",
	}, zerolog.Nop())
	c.initialWait = time.Millisecond
	return c
}

// pagedValues serves items as an Agile-style paged "values" collection.
func pagedValues(items []map[string]any, withIsLast bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
		size, _ := strconv.Atoi(r.URL.Query().Get("maxResults"))
		end := min(start+size, len(items))
		if start > len(items) {
			start = end
		}
		body := map[string]any{"startAt": start, "maxResults": size, "values": items[start:end]}
		if withIsLast {
			body["isLast"] = end >= len(items)
		}
		_ = json.NewEncoder(w).Encode(body)
	}
}

func TestFetchCollectionPagesInOrderAndDedups(t *testing.T) {
	items := []map[string]any{
		{"id": "1", "key": "A", "name": "Alpha"},
		{"id": "2", "key": "B", "name": "Beta"},
		{"id": "2", "key": "B", "name": "Beta again"},
		{"id": "3", "key": "C", "name": "Gamma"},
		{"id": "4", "key": "D", "name": "Delta"},
	}
	var calls atomic.Int32
	h := pagedValues(items, true)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		h(w, r)
	}))

	projects, err := c.Projects(context.Background())
	require.NoError(t, err)
	keys := make([]string, len(projects))
	for i, p := range projects {
		keys[i] = p.Key
	}
	assert.Equal(t, []string{"A", "B", "C", "D"}, keys)
	assert.Equal(t, "Beta", projects[1].Name, "first occurrence wins")
	assert.EqualValues(t, 3, calls.Load())
}

func TestFetchCollectionStopsOnShortPage(t *testing.T) {
	items := []map[string]any{{"id": 10}, {"id": 11}, {"id": 12}}
	var calls atomic.Int32
	h := pagedValues(items, false)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		h(w, r)
	}))

	var ids []string
	for rec, err := range c.FetchCollection(context.Background(), ResBoards, nil, 2) {
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}
	assert.Equal(t, []string{"10", "11", "12"}, ids)
	assert.EqualValues(t, 2, calls.Load())
}

func TestFetchCollectionShortPageDoesNotOverrideServerMarkers(t *testing.T) {
	items := []map[string]any{{"id": 20}, {"id": 21}, {"id": 22}}
	// the server caps maxResults at 1 while the client asks for 2
	capped := func(marker string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			start, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
			end := min(start+1, len(items))
			body := map[string]any{"startAt": start, "maxResults": 1, "values": items[start:end]}
			switch marker {
			case "isLast":
				body["isLast"] = end >= len(items)
			case "total":
				body["total"] = len(items)
			}
			_ = json.NewEncoder(w).Encode(body)
		}
	}

	for _, marker := range []string{"isLast", "total"} {
		t.Run(marker, func(t *testing.T) {
			var calls atomic.Int32
			h := capped(marker)
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				h(w, r)
			}))

			var ids []string
			for rec, err := range c.FetchCollection(context.Background(), ResBoards, nil, 2) {
				require.NoError(t, err)
				ids = append(ids, rec.ID)
			}
			assert.Equal(t, []string{"20", "21", "22"}, ids)
			assert.EqualValues(t, 3, calls.Load())
		})
	}
}

func TestFetchCollectionIsRestartable(t *testing.T) {
	c := newTestClient(t, pagedValues([]map[string]any{{"id": 1}, {"id": 2}, {"id": 3}}, true))
	seq := c.FetchCollection(context.Background(), ResBoards, nil, 2)

	first := 0
	for range seq {
		first++
		break
	}
	again := 0
	for _, err := range seq {
		require.NoError(t, err)
		again++
	}
	assert.Equal(t, 1, first)
	assert.Equal(t, 3, again)
}

func TestRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			fmt.Fprint(w, `{"id": 7, "name": "Team board", "type": "scrum", "location": {"projectId": 10001}}`)
		}
	}))

	b, err := c.Board(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, domain.Board{ID: 7, Name: "Team board", Type: "scrum", ProjectID: "10001"}, b)

	st := c.Stats()
	assert.EqualValues(t, 3, st.Requests)
	assert.EqualValues(t, 2, st.Retries)
	assert.EqualValues(t, 1, st.RateLimited)
	assert.EqualValues(t, 0, st.Failed)
}

func TestNonTransientStatusFailsFast(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"errorMessages":["Board does not exist"]}`, http.StatusNotFound)
	}))

	_, err := c.Board(context.Background(), 99)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRejected)
	assert.NotErrorIs(t, err, ErrUnavailable)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, 1, apiErr.Attempts)
	assert.False(t, apiErr.Transient())
	assert.Contains(t, apiErr.Body, "Board does not exist")
	assert.EqualValues(t, 1, calls.Load())
}

func TestRetryBudgetExhausted(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := c.Sprints(context.Background(), 5)
	assert.ErrorIs(t, err, ErrUnavailable)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "sprints", apiErr.Resource)
	assert.Equal(t, 4, apiErr.Attempts)
	assert.True(t, apiErr.Transient())
	assert.EqualValues(t, 4, calls.Load())
}

func TestAttemptTimeoutIsTransient(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
			return
		}
		fmt.Fprint(w, `{"values": [], "isLast": true}`)
	}))
	c.timeout = 50 * time.Millisecond

	boards, err := c.Boards(context.Background(), "LT")
	require.NoError(t, err)
	assert.Empty(t, boards)
	assert.EqualValues(t, 2, calls.Load())
}

func TestCancelledContextStopsRetrying(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Projects(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClientIsSafeForConcurrentUse(t *testing.T) {
	c := newTestClient(t, pagedValues([]map[string]any{{"id": "1", "key": "A"}, {"id": "2", "key": "B"}, {"id": "3", "key": "C"}}, true))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ps, err := c.Projects(context.Background())
			assert.NoError(t, err)
			assert.Len(t, ps, 3)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 16, c.Stats().Requests)
}

func TestSprintIssuesQueryAndDecode(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/agile/1.0/board/3/sprint/41/issue", r.URL.Path)
		assert.Equal(t, "type = Bug", r.URL.Query().Get("jql"))
		assert.Contains(t, r.URL.Query().Get("fields"), "customfield_10016")
		fmt.Fprint(w, `{"startAt": 0, "maxResults": 2, "total": 2, "issues": [
			{"id": "100", "key": "LT-1", "fields": {
				"summary": "Crash on save",
				"priority": {"name": "Highest"},
				"issuetype": {"name": "Bug"},
				"status": {"name": "Closed", "statusCategory": {"key": "done"}},
				"created": "2024-04-01T09:00:00.000+0000",
				"resolutiondate": "2024-04-03T09:00:00.000+0000",
				"customfield_10016": 3,
				"customfield_10020": [{"id": 40, "name": "S40"}, {"id": 41, "name": "S41"}],
				"unknown_field": {"nested": true}
			}},
			{"id": "101", "key": "LT-2", "fields": {
				"summary": "Odd priority",
				"priority": {"name": "Blocker"},
				"status": {"name": "Doing"},
				"created": "yesterday",
				"customfield_10020": ["com.atlassian.greenhopper.service.sprint.Sprint@1a[id=41,rapidViewId=3,state=ACTIVE]"]
			}}
		]}`)
	}))

	issues, err := c.SprintIssues(context.Background(), 3, 41, "type = Bug")
	require.NoError(t, err)
	require.Len(t, issues, 2)

	a := issues[0]
	assert.Equal(t, domain.PriorityHighest, a.Priority)
	assert.Equal(t, domain.TypeBug, a.Type)
	assert.Equal(t, domain.StatusDone, a.Status)
	require.NotNil(t, a.StoryPoints)
	assert.Equal(t, 3.0, *a.StoryPoints)
	assert.Equal(t, []int64{40, 41}, a.SprintIDs)
	d, ok := a.ResolutionTime()
	require.True(t, ok)
	assert.Equal(t, 48*time.Hour, d)

	b := issues[1]
	assert.Equal(t, domain.PriorityUnknown, b.Priority)
	assert.Equal(t, "Blocker", b.RawPriority)
	assert.Equal(t, domain.StatusUnknown, b.Status)
	assert.Equal(t, domain.TypeOther, b.Type)
	assert.Nil(t, b.Created, "malformed date is dropped")
	assert.Equal(t, []int64{41}, b.SprintIDs)
}

func TestInvalidRecordsAreSkipped(t *testing.T) {
	c := newTestClient(t, pagedValues([]map[string]any{
		{"id": "1", "key": "A"},
		{"id": "2"},
		{"key": "C"},
	}, true))
	ps, err := c.Projects(context.Background())
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, "A", ps[0].Key)
}

func TestThrottleHoldsAllCallers(t *testing.T) {
	var th throttle
	th.hold(40 * time.Millisecond)
	th.hold(time.Millisecond)

	start := time.Now()
	require.NoError(t, th.wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	th.hold(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, th.wait(ctx), context.DeadlineExceeded)
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, retryAfter("3"))
	assert.Zero(t, retryAfter(""))
	assert.Zero(t, retryAfter("soon"))
	future := time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)
	assert.InDelta(t, time.Minute.Seconds(), retryAfter(future).Seconds(), 2)
}

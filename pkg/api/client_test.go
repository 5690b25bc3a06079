package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/etdc/insight/pkg/api"
	"github.com/etdc/insight/pkg/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, handler http.HandlerFunc) *api.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return api.NewClient(server.URL+"/", nil)
}

func TestClient_CreateResearch(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, err := uuid.Parse(r.Header.Get(api.RequestIDHeader))
		assert.NoError(t, err, "request id must be a uuid")

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "water tariffs in Almaty", req["query"])
		assert.Equal(t, true, req["full"])

		_, _ = w.Write([]byte(`{"task_id": 4821}`))
	})

	id, err := client.CreateResearch(context.Background(), "  water tariffs in Almaty ", true)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskID("4821"), id)
}

func TestClient_CreateResearch_ShortQuery(t *testing.T) {
	var calls atomic.Int32
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"task_id": "a1"}`))
	})

	_, err := client.CreateResearch(context.Background(), "  long enough ", false)
	require.NoError(t, err, "eleven characters after trimming is enough")
	require.Equal(t, int32(1), calls.Load())

	_, err = client.CreateResearch(context.Background(), "tariffs   ", false)
	assert.ErrorIs(t, err, domain.ErrInvalidQuery)
	assert.Equal(t, int32(1), calls.Load(), "no request may be sent for an invalid query")
}

func TestValidateQuery_CountsRunes(t *testing.T) {
	assert.ErrorIs(t, api.ValidateQuery("тарифы"), domain.ErrInvalidQuery)
	assert.NoError(t, api.ValidateQuery("тарифы воды"))
}

func TestClient_GetStatus(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search_status/77":
			_, _ = w.Write([]byte(`{
				"state": "SUCCESS",
				"Prompt": "water tariffs",
				"found_posts": 12,
				"full_research": true,
				"result": {"process_ids": [{"process_type": "Web", "task_id": "w-1"}]}
			}`))
		default:
			http.NotFound(w, r)
		}
	})

	status, err := client.GetStatus(context.Background(), "77")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStateSuccess, status.State)
	assert.Equal(t, "water tariffs", status.Prompt)
	assert.Equal(t, 12, status.FoundPosts)
	assert.True(t, status.FullResearch)
	require.Len(t, status.ProcessRefs(), 1)
	assert.Equal(t, domain.ProcessWeb, status.ProcessRefs()[0].ProcessType)

	_, err = client.GetStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestClient_GetStatus_InvalidID(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	})

	for _, id := range []domain.TaskID{"", "undefined", "null"} {
		_, err := client.GetStatus(context.Background(), id)
		assert.ErrorIs(t, err, domain.ErrTaskNotFound, "id %q", id)
	}
}

func TestClient_APIError(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream unavailable\n"))
	})

	_, err := client.ListDigests(context.Background(), 2, 10)
	var apiErr *api.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "digests", apiErr.Endpoint)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "upstream unavailable", apiErr.Body)
}

func TestClient_ListDigests(t *testing.T) {
	var gotPage, gotLimit string
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/digests", r.URL.Path)
		gotPage = r.URL.Query().Get("page")
		gotLimit = r.URL.Query().Get("limit")
		_, _ = w.Write([]byte(`{"data": [{"id": 5, "title": "Water", "date": "2024-05-01"}]}`))
	})

	page, err := client.ListDigests(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, "1", gotPage, "pages below 1 are requested as page 1")
	assert.Equal(t, "10", gotLimit)
	assert.Equal(t, 1, page.Page)
	require.Len(t, page.Records, 1)
	assert.Equal(t, domain.TaskID("5"), page.Records[0].ID)
}

func TestClient_DownloadDigest(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/digest", r.URL.Path)
		assert.Equal(t, "9", r.URL.Query().Get("id"))
		_, _ = w.Write([]byte("PK\x03\x04docx"))
	})

	var buf bytes.Buffer
	n, err := client.DownloadDigest(context.Background(), "9", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)
	assert.Equal(t, "PK\x03\x04docx", buf.String())
}

func TestClient_GenerateDigest(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/generate_digest/31", r.URL.Path)

		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{
			"all_opinion": 6,
			"negative_opinion": 3,
			"positive_opinion": 2,
			"neutral_opinion": 1,
			"dominating_opinion": "mostly negative"
		}`, string(body))

		_, _ = w.Write([]byte("document"))
	})

	var buf bytes.Buffer
	summary := domain.SentimentSummary{All: 6, Negative: 3, Positive: 2, Neutral: 1, Dominating: "mostly negative"}
	_, err := client.GenerateDigest(context.Background(), "31", summary, &buf)
	require.NoError(t, err)
	assert.Equal(t, "document", buf.String())
}

func TestClient_Latest(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/least", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"id": 1, "query": "bus routes", "created_at": "2024-05-01", "finished_at": "2024-05-01"},
			{"id": "2", "query": "school meals", "created_at": "2024-05-02"}
		]`))
	})

	items, err := client.Latest(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, domain.HistoryCompleted, items[0].Status)
	assert.Equal(t, domain.HistoryInProgress, items[1].Status)
	assert.Equal(t, domain.TaskID("2"), items[1].ID)
}

func TestClient_DominantOpinion(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/get_opinion", r.URL.Path)
		var req struct {
			Opinions []string `json:"opinions"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotNil(t, req.Opinions)
		_, _ = w.Write([]byte(`{"response": "Residents mostly oppose the change."}`))
	})

	out, err := client.DominantOpinion(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Residents mostly oppose the change.", out)
}

func TestClient_ContextCancelled(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetStatus(ctx, "1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

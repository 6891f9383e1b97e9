package news

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crowdcheck/newsclient/internal/errs"
	"github.com/crowdcheck/newsclient/internal/model"
	"github.com/crowdcheck/newsclient/internal/transport"
)

func newTestStore(t *testing.T, handler http.Handler) *Store {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewStore(transport.New(srv.URL, 0, nil), nil)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestFetchNewsPartitionsRemoved(t *testing.T) {
	t.Parallel()
	srv := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []model.NewsItem{
			{ID: 1, Topic: "a"},
			{ID: 2, Topic: "b", Status: model.StatusRemoved},
			{ID: 3, Topic: "c", Removed: true},
		})
	})
	s := newTestStore(t, srv)

	require.NoError(t, s.FetchNews(context.Background()))
	require.Len(t, s.Active(), 1)
	require.Equal(t, int64(1), s.Active()[0].ID)
	require.Len(t, s.Removed(), 2)

	// A second fetch must not re-append ids already in the removed set.
	require.NoError(t, s.FetchNews(context.Background()))
	require.Len(t, s.Removed(), 2)
	require.False(t, s.Loading())
}

func TestFetchNewsFailureClearsActive(t *testing.T) {
	t.Parallel()
	s := NewStore(transport.New("http://invalid.invalid", 0, nil), nil)
	s.mu.Lock()
	s.all = []model.NewsItem{{ID: 5}}
	s.mu.Unlock()

	err := s.FetchNews(context.Background())
	require.Error(t, err)
	require.Empty(t, s.Active())
	require.Equal(t, msgFetchFailed, s.Err())
	require.False(t, s.Loading())
}

func TestCreateNewsPrependsSeededItem(t *testing.T) {
	t.Parallel()
	srv := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload model.CreateNewsPayload
		_ = json.NewDecoder(r.Body).Decode(&payload)
		writeJSON(w, map[string]any{
			"id":          42,
			"topic":       payload.Topic,
			"shortDetail": payload.ShortDetail,
			"fullDetail":  payload.FullDetail,
			"image":       payload.Image,
			"reporter":    payload.Reporter,
		})
	})
	s := newTestStore(t, srv)

	created, err := s.CreateNews(context.Background(), model.CreateNewsPayload{
		Topic: "T", ShortDetail: "S", FullDetail: "F", Image: "i.png", Reporter: "R",
	})
	require.NoError(t, err)
	require.NotNil(t, created)

	active := s.Active()
	require.Len(t, active, 1)
	got := active[0]
	require.Equal(t, int64(42), got.ID)
	require.Equal(t, "T", got.Topic)
	require.Equal(t, 0, got.TotalVotes)
	require.Equal(t, model.VoteSummary{Real: 0, Fake: 0}, got.VoteSummary)
	require.NotNil(t, got.Comments)
	require.Empty(t, got.Comments)
}

func TestCreateNewsMergesIntoExistingItem(t *testing.T) {
	t.Parallel()
	srv := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"id": 7, "topic": "updated"})
	})
	s := newTestStore(t, srv)
	s.mu.Lock()
	s.all = []model.NewsItem{{ID: 7, Topic: "old", VoteSummary: model.VoteSummary{Real: 4, Fake: 1}, TotalVotes: 5}}
	s.mu.Unlock()

	created, err := s.CreateNews(context.Background(), model.CreateNewsPayload{Topic: "updated"})
	require.NoError(t, err)
	require.Equal(t, int64(7), created.ID)
	require.Equal(t, "updated", created.Topic)
	// Fields absent from the response keep their current values.
	require.Equal(t, 5, created.TotalVotes)
	require.Equal(t, 4, created.VoteSummary.Real)
	require.Len(t, s.Active(), 1)
}

func TestCreateNewsEmptyBodyFallsBackToResync(t *testing.T) {
	t.Parallel()
	var creates, lists int
	srv := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			creates++
			w.WriteHeader(http.StatusNoContent)
		default:
			lists++
			writeJSON(w, []model.NewsItem{{ID: 1, Topic: "from-resync"}})
		}
	})
	s := newTestStore(t, srv)

	created, err := s.CreateNews(context.Background(), model.CreateNewsPayload{Topic: "x"})
	require.NoError(t, err)
	require.Nil(t, created)
	require.Equal(t, 1, creates)
	require.Equal(t, 1, lists)
	require.Len(t, s.Active(), 1)
	require.Equal(t, "from-resync", s.Active()[0].Topic)
}

func TestCreateNewsFailureRecordsAndRethrows(t *testing.T) {
	t.Parallel()
	s := NewStore(transport.New("http://invalid.invalid", 0, nil), nil)
	_, err := s.CreateNews(context.Background(), model.CreateNewsPayload{Topic: "x"})
	require.Error(t, err)
	require.Equal(t, msgCreateFailed, s.Err())
}

func detailHandler(t *testing.T, item model.NewsItem, comments any) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(fmt.Sprintf("/api/news/%d", item.ID), func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, item)
	})
	mux.HandleFunc(fmt.Sprintf("/api/comments/news/%d", item.ID), func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "0", r.URL.Query().Get("page"))
		require.Equal(t, "100", r.URL.Query().Get("size"))
		writeJSON(w, comments)
	})
	return mux
}

func TestFetchNewsByIDDefaultsComments(t *testing.T) {
	t.Parallel()
	item := model.NewsItem{ID: 4, Topic: "t", VoteSummary: model.VoteSummary{Real: 1}}
	raw := []map[string]any{
		{"id": 10, "username": "u1", "text": "ok", "vote": "real", "time": "2024-01-01T00:00:00Z"},
		{"user": "fallback-name", "vote": "bogus"},
		{},
	}
	s := newTestStore(t, detailHandler(t, item, map[string]any{"content": raw}))

	got, err := s.FetchNewsByID(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, got.Comments, 3)

	require.Equal(t, int64(10), got.Comments[0].ID)
	require.Equal(t, model.VoteReal, got.Comments[0].Vote)

	require.Equal(t, int64(0), got.Comments[1].ID)
	require.Equal(t, "fallback-name", got.Comments[1].Username)
	require.Equal(t, model.VoteFake, got.Comments[1].Vote)

	require.Equal(t, anonymousUser, got.Comments[2].Username)
	require.Equal(t, model.VoteFake, got.Comments[2].Vote)
	require.NotEmpty(t, got.Comments[2].Time)

	current, ok := s.Current()
	require.True(t, ok)
	require.Equal(t, int64(4), current.ID)
}

func TestFetchNewsByIDBareCommentList(t *testing.T) {
	t.Parallel()
	item := model.NewsItem{ID: 5}
	s := newTestStore(t, detailHandler(t, item, []map[string]any{{"id": 1, "vote": "fake"}}))

	got, err := s.FetchNewsByID(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, got.Comments, 1)
}

func TestFetchNewsByIDOverwritesActiveEntry(t *testing.T) {
	t.Parallel()
	item := model.NewsItem{ID: 6, Topic: "fresh", VoteSummary: model.VoteSummary{Real: 2, Fake: 1}}
	s := newTestStore(t, detailHandler(t, item, []map[string]any{}))
	s.mu.Lock()
	s.all = []model.NewsItem{{ID: 6, Topic: "stale"}}
	s.mu.Unlock()

	_, err := s.FetchNewsByID(context.Background(), 6)
	require.NoError(t, err)
	require.Equal(t, "fresh", s.Active()[0].Topic)
}

func TestFetchNewsByIDFailureClearsCurrent(t *testing.T) {
	t.Parallel()
	s := NewStore(transport.New("http://invalid.invalid", 0, nil), nil)
	s.mu.Lock()
	s.current = &model.NewsItem{ID: 1}
	s.mu.Unlock()

	_, err := s.FetchNewsByID(context.Background(), 1)
	require.Error(t, err)
	_, ok := s.Current()
	require.False(t, ok)
	require.Equal(t, msgFetchDetailFailed, s.Err())
}

func TestFetchNewsByIDStaleResponseDiscarded(t *testing.T) {
	t.Parallel()

	req1Arrived := make(chan struct{})
	release1 := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/api/news/1", func(w http.ResponseWriter, r *http.Request) {
		close(req1Arrived)
		<-release1
		writeJSON(w, model.NewsItem{ID: 1, Topic: "slow"})
	})
	mux.HandleFunc("/api/news/2", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, model.NewsItem{ID: 2, Topic: "fast"})
	})
	mux.HandleFunc("/api/comments/news/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []model.Comment{})
	})
	s := newTestStore(t, mux)

	errCh := make(chan error, 1)
	go func() {
		_, err := s.FetchNewsByID(context.Background(), 1)
		errCh <- err
	}()
	<-req1Arrived

	_, err := s.FetchNewsByID(context.Background(), 2)
	require.NoError(t, err)

	close(release1)
	require.ErrorIs(t, <-errCh, errs.ErrStaleResponse)

	current, ok := s.Current()
	require.True(t, ok)
	require.Equal(t, int64(2), current.ID, "stale response must not overwrite the newer one")
}

func TestFetchNewsByIDStaleFailureDiscarded(t *testing.T) {
	t.Parallel()

	req1Arrived := make(chan struct{})
	release1 := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/api/news/1", func(w http.ResponseWriter, r *http.Request) {
		close(req1Arrived)
		<-release1
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/api/news/2", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, model.NewsItem{ID: 2, Topic: "fast"})
	})
	mux.HandleFunc("/api/comments/news/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []model.Comment{})
	})
	s := newTestStore(t, mux)

	errCh := make(chan error, 1)
	go func() {
		_, err := s.FetchNewsByID(context.Background(), 1)
		errCh <- err
	}()
	<-req1Arrived

	_, err := s.FetchNewsByID(context.Background(), 2)
	require.NoError(t, err)

	close(release1)
	require.ErrorIs(t, <-errCh, errs.ErrStaleResponse)

	current, ok := s.Current()
	require.True(t, ok, "newer current was cleared by a stale failed request")
	require.Equal(t, int64(2), current.ID)
	require.Empty(t, s.Err(), "stale failure must not record an error")
}

func TestSubmitCommentScenario(t *testing.T) {
	t.Parallel()

	// Prior tally {real:2, fake:3}; the server reflects {3,3} after the vote.
	tally := model.VoteSummary{Real: 2, Fake: 3}
	var posted model.CommentPayload
	mux := http.NewServeMux()
	mux.HandleFunc("/api/comments", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&posted))
		tally.Real++
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/api/news/8", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, model.NewsItem{ID: 8, VoteSummary: tally})
	})
	mux.HandleFunc("/api/comments/news/8", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []model.Comment{})
	})
	s := newTestStore(t, mux)

	res := s.SubmitComment(context.Background(), 8, CommentData{Username: "u", Text: "legit", Vote: model.VoteReal})
	require.True(t, res.Success)
	require.Empty(t, res.Error)

	require.Nil(t, posted.Image, "empty image must normalize to null")
	require.Equal(t, int64(8), posted.NewsID)

	current, ok := s.Current()
	require.True(t, ok)
	require.Equal(t, model.StatusEqual, statusOf(&current))
}

func TestSubmitCommentFailureYieldsResult(t *testing.T) {
	t.Parallel()
	s := NewStore(transport.New("http://invalid.invalid", 0, nil), nil)
	res := s.SubmitComment(context.Background(), 1, CommentData{Vote: model.VoteFake})
	require.False(t, res.Success)
	require.Equal(t, msgSubmitVoteFailed, res.Error)
}

func TestAddUnsavedNewsIDs(t *testing.T) {
	t.Parallel()
	s := NewStore(transport.New("http://invalid.invalid", 0, nil), nil)

	seen := map[int64]bool{}
	for i := 0; i < 100; i++ {
		id := s.AddUnsavedNews(model.NewsItem{Topic: "draft"})
		require.Negative(t, id)
		require.False(t, seen[id], "optimistic id reused")
		seen[id] = true
	}
	require.Len(t, s.Unsaved(), 100)
}

func TestAddCommentToNews(t *testing.T) {
	t.Parallel()
	s := NewStore(transport.New("http://invalid.invalid", 0, nil), nil)
	s.mu.Lock()
	s.all = []model.NewsItem{{
		ID:          3,
		VoteSummary: model.VoteSummary{Real: 1, Fake: 1},
		Comments:    []model.Comment{{ID: 4}, {ID: 2}},
	}}
	s.mu.Unlock()

	require.NoError(t, s.AddCommentToNews(3, "", "looks fake", nil, model.VoteFake))

	item, ok := s.NewsByID(3)
	require.True(t, ok)
	require.Len(t, item.Comments, 3)
	added := item.Comments[2]
	require.Equal(t, int64(5), added.ID, "next id is max existing + 1")
	require.Equal(t, anonymousUser, added.Username)
	require.Equal(t, 2, item.VoteSummary.Fake)
	require.Equal(t, 1, item.VoteSummary.Real)

	require.ErrorIs(t, s.AddCommentToNews(99, "u", "t", nil, model.VoteReal), errs.ErrNotFound)
}

func TestAddCommentToNewsFirstCommentGetsIDOne(t *testing.T) {
	t.Parallel()
	s := NewStore(transport.New("http://invalid.invalid", 0, nil), nil)
	id := s.AddUnsavedNews(model.NewsItem{Topic: "draft"})

	require.NoError(t, s.AddCommentToNews(id, "u", "t", nil, model.VoteReal))
	item, _ := s.NewsByID(id)
	require.Equal(t, int64(1), item.Comments[0].ID)
	require.Equal(t, 1, item.VoteSummary.Real)
}

func TestRemoveNewsScenario(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/news/7", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	})
	s := newTestStore(t, mux)
	s.mu.Lock()
	s.all = []model.NewsItem{{ID: 7, Topic: "gone"}, {ID: 8}}
	s.current = &model.NewsItem{ID: 7, Topic: "gone"}
	s.mu.Unlock()

	require.NoError(t, s.RemoveNews(context.Background(), 7))

	require.Len(t, s.Active(), 1)
	require.Equal(t, int64(8), s.Active()[0].ID)

	removed := s.Removed()
	require.Len(t, removed, 1)
	require.Equal(t, model.StatusRemoved, removed[0].Status)

	// The currently viewed item is flipped in place, not cleared.
	current, ok := s.Current()
	require.True(t, ok)
	require.Equal(t, int64(7), current.ID)
	require.Equal(t, model.StatusRemoved, current.Status)

	// Removing again must not duplicate the removed entry.
	require.NoError(t, s.RemoveNews(context.Background(), 7))
	require.Len(t, s.Removed(), 1)
}

func TestRemoveNewsUsesServerMessage(t *testing.T) {
	t.Parallel()
	srv := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"message":"news is locked"}`))
	})
	s := newTestStore(t, srv)

	err := s.RemoveNews(context.Background(), 1)
	require.Error(t, err)
	require.Equal(t, "news is locked", s.Err())

	plain := NewStore(transport.New("http://invalid.invalid", 0, nil), nil)
	require.Error(t, plain.RemoveNews(context.Background(), 1))
	require.Equal(t, msgRemoveFailed, plain.Err())
}

func TestRemoveNewsDropsUnsavedItem(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/news/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	s := newTestStore(t, mux)
	id := s.AddUnsavedNews(model.NewsItem{Topic: "draft"})

	require.NoError(t, s.RemoveNews(context.Background(), id))
	require.Empty(t, s.Unsaved())
	require.Len(t, s.Removed(), 1)
}

func TestFetchRemovedNewsReplacesWholesale(t *testing.T) {
	t.Parallel()
	srv := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []model.NewsItem{{ID: 20}, {ID: 21}})
	})
	s := newTestStore(t, srv)
	s.mu.Lock()
	s.removed = []model.NewsItem{{ID: 1}, {ID: 2}, {ID: 3}}
	s.mu.Unlock()

	require.NoError(t, s.FetchRemovedNews(context.Background()))
	removed := s.Removed()
	require.Len(t, removed, 2)
	for _, n := range removed {
		require.Equal(t, model.StatusRemoved, n.Status)
	}
}

func TestSearchNewsBuildsQuery(t *testing.T) {
	t.Parallel()
	srv := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "/api/news/search", r.URL.Path)
		require.Equal(t, "scam", q.Get("title"))
		require.Equal(t, "fake", q.Get("status"))
		require.Equal(t, "2", q.Get("_page"))
		require.Equal(t, "10", q.Get("_limit"))
		require.Equal(t, "true", q.Get("includeRemoved"))
		writeJSON(w, []model.NewsItem{{ID: 1, VoteSummary: model.VoteSummary{Fake: 2}}})
	})
	s := newTestStore(t, srv)

	items, err := s.SearchNews(context.Background(), SearchParams{
		Title: "scam", Status: "fake", Page: 2, Limit: 10, IncludeRemoved: true,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, model.StatusFake, items[0].Status)
}

func TestDeleteCommentRefetchesItem(t *testing.T) {
	t.Parallel()
	deleted := false
	mux := http.NewServeMux()
	mux.HandleFunc("/api/comments/5", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		deleted = true
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/api/news/3", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, model.NewsItem{ID: 3, VoteSummary: model.VoteSummary{Real: 1}})
	})
	mux.HandleFunc("/api/comments/news/3", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []model.Comment{})
	})
	s := newTestStore(t, mux)

	require.NoError(t, s.DeleteComment(context.Background(), 5, 3))
	require.True(t, deleted)
	current, ok := s.Current()
	require.True(t, ok)
	require.Equal(t, int64(3), current.ID)
}

func TestGetVoteSummary(t *testing.T) {
	t.Parallel()
	srv := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/comments/news/9/summary", r.URL.Path)
		writeJSON(w, model.VoteSummary{Real: 3, Fake: 1})
	})
	s := newTestStore(t, srv)

	summary, err := s.GetVoteSummary(context.Background(), 9)
	require.NoError(t, err)
	require.Equal(t, model.VoteSummary{Real: 3, Fake: 1}, summary)
}

func TestNewsWithStatusFiltersAndDerives(t *testing.T) {
	t.Parallel()
	s := NewStore(transport.New("http://invalid.invalid", 0, nil), nil)
	s.mu.Lock()
	s.all = []model.NewsItem{
		{ID: 1, VoteSummary: model.VoteSummary{Real: 3, Fake: 1}},
		{ID: 2, VoteSummary: model.VoteSummary{Real: 1, Fake: 3}},
		{ID: 3, VoteSummary: model.VoteSummary{Real: 2, Fake: 2}},
		{ID: 4, Status: model.StatusRemoved},
		{ID: 5},
	}
	s.removed = []model.NewsItem{{ID: 5, Status: model.StatusRemoved}}
	s.unsaved = []model.NewsItem{{ID: -1, VoteSummary: model.VoteSummary{Real: 1}}}
	s.mu.Unlock()

	all := s.NewsWithStatus(StatusFilterAll)
	require.Len(t, all, 4) // removed-status and removed-set ids are excluded

	notFake := s.NewsWithStatus(model.StatusNotFake)
	require.Len(t, notFake, 2)
	for _, n := range notFake {
		require.Equal(t, model.StatusNotFake, n.Status)
	}

	equal := s.NewsWithStatus(model.StatusEqual)
	require.Len(t, equal, 1)
	require.Equal(t, int64(3), equal[0].ID)
}

func TestCombinedNews(t *testing.T) {
	t.Parallel()
	s := NewStore(transport.New("http://invalid.invalid", 0, nil), nil)
	s.mu.Lock()
	s.all = []model.NewsItem{{ID: 1}}
	s.mu.Unlock()
	s.AddUnsavedNews(model.NewsItem{Topic: "draft"})

	combined := s.CombinedNews()
	require.Len(t, combined, 2)
	require.Equal(t, int64(1), combined[0].ID)
	require.Negative(t, combined[1].ID)
}

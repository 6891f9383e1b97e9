// Package news owns the working set of news items: the active collection
// mirrored from the server, locally-created optimistic items awaiting
// confirmation, and the removed set. Verdict status is derived from vote
// tallies on every read; the server stays authoritative for everything else.
package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/crowdcheck/newsclient/internal/errs"
	"github.com/crowdcheck/newsclient/internal/model"
	"github.com/crowdcheck/newsclient/internal/transport"
)

// Fixed user-facing error strings. Transport detail goes to the log, not to
// the error field.
const (
	msgFetchFailed        = "Failed to fetch news"
	msgFetchDetailFailed  = "Failed to fetch news details"
	msgCreateFailed       = "Failed to create news"
	msgRemoveFailed       = "Failed to remove news"
	msgFetchRemovedFailed = "Failed to fetch removed news"
	msgSearchFailed       = "Failed to search news"
	msgSubmitVoteFailed   = "Failed to submit vote"

	anonymousUser = "Anonymous"
)

// StatusFilterAll disables status filtering in NewsWithStatus.
const StatusFilterAll = model.Status("all")

// CommentData is the user input for a comment submission.
type CommentData struct {
	Username string
	Text     string
	Image    string
	Vote     model.Vote
}

// SubmitResult reports a comment submission outcome without a control-flow
// error, so callers can render inline feedback.
type SubmitResult struct {
	Success bool
	Error   string
}

// SearchParams narrows a news search. Zero values are omitted from the
// query.
type SearchParams struct {
	Title          string
	Status         string
	Page           int
	Limit          int
	IncludeRemoved bool
}

// Store is the news domain store. All methods are safe for concurrent use;
// network waits happen outside the critical sections and post-response
// mutations are applied atomically.
type Store struct {
	client *transport.Client
	log    *zap.Logger

	mu      sync.Mutex
	all     []model.NewsItem
	unsaved []model.NewsItem
	removed []model.NewsItem
	current *model.NewsItem
	loading bool
	errMsg  string

	// Optimistic ids: strictly negative, unique for the store's lifetime.
	tempBase int64
	tempSeq  int64

	// Detail-fetch sequencing: a response superseded by a newer
	// FetchNewsByID call is discarded instead of overwriting fresher state.
	detailSeq uint64
}

// NewStore constructs a Store.
func NewStore(client *transport.Client, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{client: client, log: log, tempBase: time.Now().UnixMilli()}
}

// ---- derived reads ----

func statusOf(n *model.NewsItem) model.Status {
	if n.IsRemoved() {
		return model.StatusRemoved
	}
	return model.DeriveStatus(n.VoteSummary.Real, n.VoteSummary.Fake)
}

func decorate(n model.NewsItem) model.NewsItem {
	n.Status = statusOf(&n)
	if n.Comments == nil {
		n.Comments = []model.Comment{}
	}
	return n
}

// CombinedNews returns the active and unsaved collections as one list.
func (s *Store) CombinedNews() []model.NewsItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.NewsItem, 0, len(s.all)+len(s.unsaved))
	out = append(out, s.all...)
	out = append(out, s.unsaved...)
	return out
}

// NewsByID looks an item up across the active and unsaved collections and
// returns a status-decorated copy.
func (s *Store) NewsByID(id int64) (model.NewsItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := s.findLocked(id); n != nil {
		return decorate(*n), true
	}
	return model.NewsItem{}, false
}

// findLocked returns a pointer into the active or unsaved collection.
func (s *Store) findLocked(id int64) *model.NewsItem {
	for i := range s.all {
		if s.all[i].ID == id {
			return &s.all[i]
		}
	}
	for i := range s.unsaved {
		if s.unsaved[i].ID == id {
			return &s.unsaved[i]
		}
	}
	return nil
}

// NewsWithStatus returns the combined collection with derived statuses,
// excluding anything flagged removed or already present in the removed set,
// optionally narrowed to a single status (StatusFilterAll disables the
// filter).
func (s *Store) NewsWithStatus(filter model.Status) []model.NewsItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	removedIDs := make(map[int64]struct{}, len(s.removed))
	for i := range s.removed {
		removedIDs[s.removed[i].ID] = struct{}{}
	}

	out := []model.NewsItem{}
	for _, coll := range [][]model.NewsItem{s.all, s.unsaved} {
		for i := range coll {
			n := coll[i]
			if n.Status == model.StatusRemoved {
				continue
			}
			if _, gone := removedIDs[n.ID]; gone {
				continue
			}
			d := decorate(n)
			if filter != StatusFilterAll && d.Status != filter {
				continue
			}
			out = append(out, d)
		}
	}
	return out
}

// Active returns a copy of the active collection.
func (s *Store) Active() []model.NewsItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.NewsItem(nil), s.all...)
}

// Unsaved returns a copy of the optimistic collection.
func (s *Store) Unsaved() []model.NewsItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.NewsItem(nil), s.unsaved...)
}

// Removed returns a copy of the removed collection.
func (s *Store) Removed() []model.NewsItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.NewsItem(nil), s.removed...)
}

// Current returns a copy of the currently viewed item.
func (s *Store) Current() (model.NewsItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return model.NewsItem{}, false
	}
	return *s.current, true
}

// Loading reports whether a fetch is in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Err returns the last recorded user-facing error message.
func (s *Store) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// ---- actions ----

// FetchNews replaces the active collection with the server's current set.
// Items the server already flags as removed are partitioned into the
// removed collection (deduplicated by id) instead. On failure the active
// collection is cleared and a generic message recorded.
func (s *Store) FetchNews(ctx context.Context) error {
	s.beginLoad()
	defer s.endLoad()

	resp, err := s.client.Get(ctx, "/api/news", nil)
	var items []model.NewsItem
	if err == nil && resp.HasBody() {
		// An empty body reads as an empty set.
		err = resp.Decode(&items)
	}
	if err != nil {
		s.log.Error("fetch news failed", zap.Error(err))
		s.mu.Lock()
		s.all = []model.NewsItem{}
		s.errMsg = msgFetchFailed
		s.mu.Unlock()
		return fmt.Errorf("fetch news: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	active := []model.NewsItem{}
	for _, n := range items {
		if n.IsRemoved() {
			if !containsID(s.removed, n.ID) {
				s.removed = append(s.removed, n)
			}
			continue
		}
		active = append(active, n)
	}
	s.all = active
	return nil
}

// CreateNews posts the payload. A server echo matching an existing active
// item by id is merged into it in place; otherwise a new item seeded with
// zero tallies and empty comments is prepended. An empty response body falls
// back to a full FetchNews re-sync.
func (s *Store) CreateNews(ctx context.Context, payload model.CreateNewsPayload) (*model.NewsItem, error) {
	s.setErr("")

	resp, err := s.client.Post(ctx, "/api/news", payload)
	if err != nil {
		s.log.Error("create news failed", zap.Error(err))
		s.setErr(msgCreateFailed)
		return nil, fmt.Errorf("create news: %w", err)
	}

	if !resp.HasBody() {
		if err := s.FetchNews(ctx); err != nil {
			s.setErr(msgCreateFailed)
			return nil, err
		}
		return nil, nil
	}

	var probe struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(resp.Data, &probe); err != nil {
		s.setErr(msgCreateFailed)
		return nil, fmt.Errorf("create news: decode response: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.all {
		if s.all[i].ID != probe.ID {
			continue
		}
		// Merge server fields over the existing record; absent fields keep
		// their current values.
		merged := s.all[i]
		if err := json.Unmarshal(resp.Data, &merged); err != nil {
			s.errMsg = msgCreateFailed
			return nil, fmt.Errorf("create news: merge response: %w", err)
		}
		s.all[i] = merged
		out := merged
		return &out, nil
	}

	created := model.NewsItem{
		Comments:    []model.Comment{},
		TotalVotes:  0,
		VoteSummary: model.VoteSummary{},
	}
	if err := json.Unmarshal(resp.Data, &created); err != nil {
		s.errMsg = msgCreateFailed
		return nil, fmt.Errorf("create news: decode response: %w", err)
	}
	s.all = append([]model.NewsItem{created}, s.all...)
	out := created
	return &out, nil
}

// FetchNewsByID fetches an item and its comments, replaces the currently
// viewed item, and overwrites the active-collection entry when one exists so
// both views stay consistent. A response superseded by a newer FetchNewsByID
// call is discarded (errs.ErrStaleResponse) instead of overwriting fresher
// state.
func (s *Store) FetchNewsByID(ctx context.Context, id int64) (*model.NewsItem, error) {
	seq := s.nextDetailSeq()

	s.mu.Lock()
	s.loading = true
	s.errMsg = ""
	s.current = nil
	s.mu.Unlock()
	defer s.endLoad()

	item, err := s.fetchDetail(ctx, id)
	if err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		// A failure from a superseded request must not clobber the result
		// of the newer one either.
		if !s.isLatestDetail(seq) {
			return nil, errs.ErrStaleResponse
		}
		s.log.Error("fetch news by id failed", zap.Int64("id", id), zap.Error(err))
		s.errMsg = msgFetchDetailFailed
		s.current = nil
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isLatestDetail(seq) {
		return nil, errs.ErrStaleResponse
	}
	s.current = item
	for i := range s.all {
		if s.all[i].ID == id {
			s.all[i] = *item
			break
		}
	}
	out := *item
	return &out, nil
}

// fetchDetail performs the two-request detail load: the item, then its
// comments.
func (s *Store) fetchDetail(ctx context.Context, id int64) (*model.NewsItem, error) {
	// Removed items stay viewable on the detail screen.
	q := url.Values{}
	q.Set("includeRemoved", "true")
	resp, err := s.client.Get(ctx, "/api/news/"+strconv.FormatInt(id, 10), q)
	if err != nil {
		return nil, fmt.Errorf("fetch news %d: %w", id, err)
	}
	var item model.NewsItem
	if err := resp.Decode(&item); err != nil {
		return nil, fmt.Errorf("fetch news %d: %w", id, err)
	}

	cq := url.Values{}
	cq.Set("page", "0")
	cq.Set("size", "100")
	commentsResp, err := s.client.Get(ctx, fmt.Sprintf("/api/comments/news/%d", id), cq)
	if err != nil {
		return nil, fmt.Errorf("fetch comments for news %d: %w", id, err)
	}
	item.Comments = parseComments(commentsResp.Data)
	return &item, nil
}

// parseComments tolerates either a paginated {"content": [...]} wrapper or a
// bare list, and defensively defaults every field of each raw comment.
func parseComments(data []byte) []model.Comment {
	var wrapper struct {
		Content []json.RawMessage `json:"content"`
	}
	var rawList []json.RawMessage
	if err := json.Unmarshal(data, &wrapper); err == nil && wrapper.Content != nil {
		rawList = wrapper.Content
	} else if err := json.Unmarshal(data, &rawList); err != nil {
		return []model.Comment{}
	}

	out := make([]model.Comment, 0, len(rawList))
	for _, raw := range rawList {
		var rc struct {
			ID       *int64  `json:"id"`
			Username *string `json:"username"`
			User     *string `json:"user"`
			Text     *string `json:"text"`
			Image    *string `json:"image"`
			Time     *string `json:"time"`
			Vote     *string `json:"vote"`
		}
		if err := json.Unmarshal(raw, &rc); err != nil {
			continue
		}
		c := model.Comment{
			Username: anonymousUser,
			Time:     time.Now().UTC().Format(time.RFC3339),
			Vote:     model.VoteFake,
		}
		if rc.ID != nil {
			c.ID = *rc.ID
		}
		if rc.Username != nil && *rc.Username != "" {
			c.Username = *rc.Username
		} else if rc.User != nil && *rc.User != "" {
			c.Username = *rc.User
		}
		if rc.Text != nil {
			c.Text = *rc.Text
		}
		if rc.Image != nil && *rc.Image != "" {
			c.Image = rc.Image
		}
		if rc.Time != nil && *rc.Time != "" {
			c.Time = *rc.Time
		}
		if rc.Vote != nil && (*rc.Vote == string(model.VoteReal) || *rc.Vote == string(model.VoteFake)) {
			c.Vote = model.Vote(*rc.Vote)
		}
		out = append(out, c)
	}
	return out
}

// SubmitComment posts a comment and re-fetches the item so server-computed
// tallies land in the store. The outcome is reported as a result value
// rather than an error, for inline rendering.
func (s *Store) SubmitComment(ctx context.Context, newsID int64, data CommentData) SubmitResult {
	payload := model.CommentPayload{
		Username: data.Username,
		Text:     data.Text,
		Vote:     data.Vote,
		NewsID:   newsID,
	}
	if data.Image != "" {
		img := data.Image
		payload.Image = &img
	}

	if _, err := s.client.Post(ctx, "/api/comments", payload); err != nil {
		s.log.Error("submit comment failed", zap.Int64("news_id", newsID), zap.Error(err))
		return SubmitResult{Error: msgSubmitVoteFailed}
	}

	if _, err := s.FetchNewsByID(ctx, newsID); err != nil {
		// A superseding detail fetch is not a submission failure.
		if errors.Is(err, errs.ErrStaleResponse) {
			return SubmitResult{Success: true}
		}
		s.log.Error("refresh after comment failed", zap.Int64("news_id", newsID), zap.Error(err))
		return SubmitResult{Error: msgSubmitVoteFailed}
	}
	return SubmitResult{Success: true}
}

// AddUnsavedNews inserts a client-only optimistic item under a synthetic
// negative id and returns that id. The id is unique for the store's
// lifetime and can never collide with a positive server id.
func (s *Store) AddUnsavedNews(item model.NewsItem) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tempSeq++
	item.ID = -(s.tempBase + s.tempSeq)
	if item.Comments == nil {
		item.Comments = []model.Comment{}
	}
	s.unsaved = append(s.unsaved, item)
	return item.ID
}

// AddCommentToNews appends a comment locally (no network) and bumps the
// matching tally bucket, for instantaneous feedback ahead of server
// confirmation. The comment id is max existing + 1, or 1 for the first.
func (s *Store) AddCommentToNews(newsID int64, user, text string, image *string, vote model.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.findLocked(newsID)
	if item == nil {
		s.log.Error("news item not found for local comment", zap.Int64("news_id", newsID))
		return errs.ErrNotFound
	}

	var nextID int64 = 1
	for i := range item.Comments {
		if item.Comments[i].ID >= nextID {
			nextID = item.Comments[i].ID + 1
		}
	}
	if user == "" {
		user = anonymousUser
	}
	item.Comments = append(item.Comments, model.Comment{
		ID:       nextID,
		Username: user,
		Text:     text,
		Image:    image,
		Time:     time.Now().UTC().Format(time.RFC3339),
		Vote:     vote,
	})
	if vote == model.VoteReal {
		item.VoteSummary.Real++
	} else {
		item.VoteSummary.Fake++
	}
	return nil
}

// RemoveNews deletes an item server-side, drops it from the active and
// unsaved collections, and appends it (stamped removed) to the removed set.
// When the removed item is the currently viewed one, its status is flipped
// in place so the view can still render it with a removed banner.
func (s *Store) RemoveNews(ctx context.Context, id int64) error {
	s.setErr("")

	if _, err := s.client.Delete(ctx, "/api/news/"+strconv.FormatInt(id, 10)); err != nil {
		s.log.Error("remove news failed", zap.Int64("id", id), zap.Error(err))
		msg := transport.ServerMessage(err)
		if msg == "" {
			msg = msgRemoveFailed
		}
		s.setErr(msg)
		return fmt.Errorf("remove news %d: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var removedItem *model.NewsItem
	if n := s.findLocked(id); n != nil {
		cpy := *n
		removedItem = &cpy
	}
	s.all = dropID(s.all, id)
	s.unsaved = dropID(s.unsaved, id)

	if removedItem != nil && !containsID(s.removed, id) {
		removedItem.Status = model.StatusRemoved
		s.removed = append(s.removed, *removedItem)
	}
	if s.current != nil && s.current.ID == id {
		s.current.Status = model.StatusRemoved
	}
	return nil
}

// FetchRemovedNews replaces the removed collection wholesale with the
// server's authoritative listing. This is intentionally asymmetric with the
// additive partition in FetchNews.
func (s *Store) FetchRemovedNews(ctx context.Context) error {
	s.beginLoad()
	defer s.endLoad()

	resp, err := s.client.Get(ctx, "/api/news/removed", nil)
	var items []model.NewsItem
	if err == nil && resp.HasBody() {
		err = resp.Decode(&items)
	}
	if err != nil {
		s.log.Error("fetch removed news failed", zap.Error(err))
		s.setErr(msgFetchRemovedFailed)
		return fmt.Errorf("fetch removed news: %w", err)
	}

	for i := range items {
		items[i].Status = model.StatusRemoved
	}
	s.mu.Lock()
	s.removed = items
	s.mu.Unlock()
	return nil
}

// SearchNews queries the server-side search endpoint and returns
// status-decorated results without touching the collections.
func (s *Store) SearchNews(ctx context.Context, params SearchParams) ([]model.NewsItem, error) {
	s.setErr("")

	q := url.Values{}
	if params.Title != "" {
		q.Set("title", params.Title)
	}
	if params.Status != "" {
		q.Set("status", params.Status)
	}
	if params.Page > 0 {
		q.Set("_page", strconv.Itoa(params.Page))
	}
	if params.Limit > 0 {
		q.Set("_limit", strconv.Itoa(params.Limit))
	}
	if params.IncludeRemoved {
		q.Set("includeRemoved", "true")
	}

	resp, err := s.client.Get(ctx, "/api/news/search", q)
	var items []model.NewsItem
	if err == nil {
		err = resp.Decode(&items)
	}
	if err != nil {
		s.log.Error("search news failed", zap.Error(err))
		s.setErr(msgSearchFailed)
		return nil, fmt.Errorf("search news: %w", err)
	}

	out := make([]model.NewsItem, 0, len(items))
	for _, n := range items {
		out = append(out, decorate(n))
	}
	return out, nil
}

// GetVoteSummary reads the server-computed tally pair for one item.
func (s *Store) GetVoteSummary(ctx context.Context, newsID int64) (model.VoteSummary, error) {
	resp, err := s.client.Get(ctx, fmt.Sprintf("/api/comments/news/%d/summary", newsID), nil)
	var summary model.VoteSummary
	if err == nil {
		err = resp.Decode(&summary)
	}
	if err != nil {
		return model.VoteSummary{}, fmt.Errorf("vote summary for news %d: %w", newsID, err)
	}
	return summary, nil
}

// DeleteComment removes a comment server-side and re-fetches the item so
// tallies and the comment list stay consistent.
func (s *Store) DeleteComment(ctx context.Context, commentID, newsID int64) error {
	if _, err := s.client.Delete(ctx, "/api/comments/"+strconv.FormatInt(commentID, 10)); err != nil {
		s.log.Error("delete comment failed", zap.Int64("comment_id", commentID), zap.Error(err))
		s.setErr(msgSubmitVoteFailed)
		return fmt.Errorf("delete comment %d: %w", commentID, err)
	}
	if _, err := s.FetchNewsByID(ctx, newsID); err != nil && !errors.Is(err, errs.ErrStaleResponse) {
		return err
	}
	return nil
}

// ---- internals ----

func (s *Store) beginLoad() {
	s.mu.Lock()
	s.loading = true
	s.errMsg = ""
	s.mu.Unlock()
}

func (s *Store) endLoad() {
	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()
}

func (s *Store) setErr(msg string) {
	s.mu.Lock()
	s.errMsg = msg
	s.mu.Unlock()
}

func (s *Store) nextDetailSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detailSeq++
	return s.detailSeq
}

func (s *Store) isLatestDetail(seq uint64) bool {
	return seq == s.detailSeq
}

func containsID(items []model.NewsItem, id int64) bool {
	for i := range items {
		if items[i].ID == id {
			return true
		}
	}
	return false
}

func dropID(items []model.NewsItem, id int64) []model.NewsItem {
	out := items[:0]
	for i := range items {
		if items[i].ID != id {
			out = append(out, items[i])
		}
	}
	return out
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"geopulse/internal/jobs"
	"geopulse/internal/model"
	"geopulse/internal/rss"
	"geopulse/internal/storage"
)

type fakeArticleStore struct {
	articles   []model.Article
	candidates []model.Article
	stats      storage.Stats
	err        error

	lastFilter   storage.ArticleFilter
	lastKeywords []string
}

func (f *fakeArticleStore) Articles(ctx context.Context, filter storage.ArticleFilter) ([]model.Article, error) {
	f.lastFilter = filter
	return f.articles, f.err
}

func (f *fakeArticleStore) SearchArticles(ctx context.Context, keywords []string, limit int) ([]model.Article, error) {
	f.lastKeywords = keywords
	return f.candidates, f.err
}

func (f *fakeArticleStore) Stats(ctx context.Context) (storage.Stats, error) {
	return f.stats, f.err
}

type fakeAnalysisStore struct {
	analyses []model.Analysis
	prior    []model.Analysis
	err      error
	priorErr error
}

func (f *fakeAnalysisStore) Analysis(ctx context.Context, id int64) (model.Analysis, error) {
	if f.err != nil {
		return model.Analysis{}, f.err
	}
	for _, a := range f.analyses {
		if a.ID == id {
			return a, nil
		}
	}
	return model.Analysis{}, storage.ErrNotFound
}

func (f *fakeAnalysisStore) RecentAnalyses(ctx context.Context, limit int) ([]model.Analysis, error) {
	return f.analyses, f.err
}

func (f *fakeAnalysisStore) RecentAnalysesByKeywords(ctx context.Context, keywords []string, limit int) ([]model.Analysis, error) {
	if f.priorErr != nil {
		return nil, f.priorErr
	}
	return f.prior, nil
}

type fakeIngestor struct {
	err       error
	triggered int
	sources   []string
}

func (f *fakeIngestor) Trigger(ctx context.Context) error {
	f.triggered++
	return f.err
}

func (f *fakeIngestor) Sources() []string { return f.sources }

type fakeSubmitter struct {
	id  string
	err error

	keywords []string
	articles []model.Article
	prior    []model.Analysis
}

func (f *fakeSubmitter) Submit(keywords []string, articles []model.Article, prior []model.Analysis) (string, error) {
	f.keywords = keywords
	f.articles = articles
	f.prior = prior
	return f.id, f.err
}

const testAdminToken = "secret-token"

func newTestServer(articles *fakeArticleStore, analyses *fakeAnalysisStore, ingestor *fakeIngestor, submitter *fakeSubmitter, registry *jobs.Registry) *Server {
	if registry == nil {
		registry = jobs.NewRegistry()
	}
	return New(Options{
		Articles:          articles,
		Analyses:          analyses,
		Ingestor:          ingestor,
		Runner:            submitter,
		Registry:          registry,
		AdminToken:        testAdminToken,
		MaxCandidates:     50,
		MaxTotal:          12,
		MaxPerPerspective: 4,
	})
}

func doRequest(s *Server, method, target, body, token string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if token != "" {
		req.Header.Set("X-Admin-Token", token)
	}
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func candidatePool() []model.Article {
	return []model.Article{
		{Title: "Ceasefire talks stall", Link: "https://example.com/1", Source: "BBC World", Perspective: model.PerspectiveWesternMainstream},
		{Title: "Regional press view", Link: "https://example.com/2", Source: "Al Jazeera", Perspective: model.PerspectiveArabMedia},
		{Title: "Official statement", Link: "https://example.com/3", Source: "TASS English", Perspective: model.PerspectiveRussianState},
	}
}

func TestNewsListing(t *testing.T) {
	articles := &fakeArticleStore{articles: candidatePool()}
	s := newTestServer(articles, &fakeAnalysisStore{}, &fakeIngestor{}, &fakeSubmitter{}, nil)

	w := doRequest(s, http.MethodGet, "/api/news?category=Middle+East&limit=5", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if articles.lastFilter.Category != "Middle East" || articles.lastFilter.Limit != 5 {
		t.Errorf("filter not forwarded: %+v", articles.lastFilter)
	}

	var got []model.Article
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("got %d articles, want 3", len(got))
	}
}

func TestNewsListingEmptyIsArray(t *testing.T) {
	s := newTestServer(&fakeArticleStore{}, &fakeAnalysisStore{}, &fakeIngestor{}, &fakeSubmitter{}, nil)

	w := doRequest(s, http.MethodGet, "/api/news", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("empty listing should serialize as [], got %q", body)
	}
}

func TestNewsListingAllFilterIgnored(t *testing.T) {
	articles := &fakeArticleStore{}
	s := newTestServer(articles, &fakeAnalysisStore{}, &fakeIngestor{}, &fakeSubmitter{}, nil)

	doRequest(s, http.MethodGet, "/api/news?category=all&source=all", "", "")
	if articles.lastFilter.Category != "" || articles.lastFilter.Source != "" {
		t.Errorf("category=all should not filter, got %+v", articles.lastFilter)
	}
}

func TestCategoriesEndpoint(t *testing.T) {
	s := newTestServer(&fakeArticleStore{}, &fakeAnalysisStore{}, &fakeIngestor{}, &fakeSubmitter{}, nil)

	w := doRequest(s, http.MethodGet, "/api/categories", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var cats []string
	if err := json.NewDecoder(w.Body).Decode(&cats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cats) == 0 || cats[len(cats)-1] != model.CategoryOther {
		t.Errorf("categories should end with the fallback, got %v", cats)
	}
}

func TestSourcesEndpoint(t *testing.T) {
	ingestor := &fakeIngestor{sources: []string{"BBC World", "Al Jazeera"}}
	s := newTestServer(&fakeArticleStore{}, &fakeAnalysisStore{}, ingestor, &fakeSubmitter{}, nil)

	w := doRequest(s, http.MethodGet, "/api/sources", "", "")
	var got []string
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, ingestor.sources) {
		t.Errorf("sources = %v", got)
	}
}

func TestRefresh(t *testing.T) {
	ingestor := &fakeIngestor{}
	s := newTestServer(&fakeArticleStore{}, &fakeAnalysisStore{}, ingestor, &fakeSubmitter{}, nil)

	w := doRequest(s, http.MethodPost, "/api/refresh", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ingestor.triggered != 1 {
		t.Errorf("Trigger called %d times", ingestor.triggered)
	}
}

func TestRefreshConflictWhileRunning(t *testing.T) {
	ingestor := &fakeIngestor{err: rss.ErrFetchInProgress}
	s := newTestServer(&fakeArticleStore{}, &fakeAnalysisStore{}, ingestor, &fakeSubmitter{}, nil)

	w := doRequest(s, http.MethodPost, "/api/refresh", "", "")
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestAnalyzeRequiresAdmin(t *testing.T) {
	s := newTestServer(&fakeArticleStore{}, &fakeAnalysisStore{}, &fakeIngestor{}, &fakeSubmitter{}, nil)

	w := doRequest(s, http.MethodPost, "/api/analyze", `{"keywords":["gaza"]}`, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", w.Code)
	}

	w = doRequest(s, http.MethodPost, "/api/analyze", `{"keywords":["gaza"]}`, "wrong-token")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", w.Code)
	}
}

func TestAnalyzeBearerTokenAccepted(t *testing.T) {
	articles := &fakeArticleStore{candidates: candidatePool()}
	submitter := &fakeSubmitter{id: "job-1"}
	s := newTestServer(articles, &fakeAnalysisStore{}, &fakeIngestor{}, submitter, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{"keywords":["gaza"]}`))
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", w.Code)
	}
}

func TestAnalyzeRejectsEmptyKeywords(t *testing.T) {
	s := newTestServer(&fakeArticleStore{}, &fakeAnalysisStore{}, &fakeIngestor{}, &fakeSubmitter{}, nil)

	for _, body := range []string{`{"keywords":[]}`, `{"keywords":["", "  "]}`, `{}`} {
		w := doRequest(s, http.MethodPost, "/api/analyze", body, testAdminToken)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, w.Code)
		}
	}
}

func TestAnalyzeRejectsInvalidJSON(t *testing.T) {
	s := newTestServer(&fakeArticleStore{}, &fakeAnalysisStore{}, &fakeIngestor{}, &fakeSubmitter{}, nil)

	w := doRequest(s, http.MethodPost, "/api/analyze", `{not json`, testAdminToken)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestAnalyzeNoCandidates(t *testing.T) {
	s := newTestServer(&fakeArticleStore{}, &fakeAnalysisStore{}, &fakeIngestor{}, &fakeSubmitter{}, nil)

	w := doRequest(s, http.MethodPost, "/api/analyze", `{"keywords":["obscure topic"]}`, testAdminToken)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestAnalyzeAccepted(t *testing.T) {
	articles := &fakeArticleStore{candidates: candidatePool()}
	analyses := &fakeAnalysisStore{prior: []model.Analysis{{ID: 7, Summary: "earlier"}}}
	submitter := &fakeSubmitter{id: "job-42"}
	s := newTestServer(articles, analyses, &fakeIngestor{}, submitter, nil)

	w := doRequest(s, http.MethodPost, "/api/analyze", `{"keywords":["Gaza", "gaza ", "ceasefire"]}`, testAdminToken)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		JobID            string `json:"job_id"`
		Status           string `json:"status"`
		ArticlesSelected int    `json:"articles_selected"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.JobID != "job-42" {
		t.Errorf("job_id = %q", resp.JobID)
	}
	if resp.Status != string(jobs.StatusPending) {
		t.Errorf("status = %q, want pending", resp.Status)
	}
	if resp.ArticlesSelected != 3 {
		t.Errorf("articles_selected = %d, want 3", resp.ArticlesSelected)
	}

	// Keywords are normalized before search and submission.
	want := []string{"gaza", "ceasefire"}
	if !reflect.DeepEqual(articles.lastKeywords, want) {
		t.Errorf("searched keywords = %v, want %v", articles.lastKeywords, want)
	}
	if !reflect.DeepEqual(submitter.keywords, want) {
		t.Errorf("submitted keywords = %v, want %v", submitter.keywords, want)
	}
	if len(submitter.prior) != 1 || submitter.prior[0].ID != 7 {
		t.Errorf("prior analyses not forwarded: %+v", submitter.prior)
	}
}

func TestAnalyzePriorLookupFailureIsNonFatal(t *testing.T) {
	articles := &fakeArticleStore{candidates: candidatePool()}
	analyses := &fakeAnalysisStore{priorErr: errors.New("connection refused")}
	submitter := &fakeSubmitter{id: "job-9"}
	s := newTestServer(articles, analyses, &fakeIngestor{}, submitter, nil)

	w := doRequest(s, http.MethodPost, "/api/analyze", `{"keywords":["gaza"]}`, testAdminToken)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	if submitter.prior != nil {
		t.Errorf("prior should be dropped on lookup failure, got %+v", submitter.prior)
	}
}

func TestJobStatus(t *testing.T) {
	registry := jobs.NewRegistry()
	id := registry.Create()
	s := newTestServer(&fakeArticleStore{}, &fakeAnalysisStore{}, &fakeIngestor{}, &fakeSubmitter{}, registry)

	w := doRequest(s, http.MethodGet, "/api/analyze/status/"+id, "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var job jobs.Job
	if err := json.NewDecoder(w.Body).Decode(&job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if job.ID != id || job.Status != jobs.StatusPending {
		t.Errorf("job = %+v", job)
	}
}

func TestJobStatusUnknownID(t *testing.T) {
	s := newTestServer(&fakeArticleStore{}, &fakeAnalysisStore{}, &fakeIngestor{}, &fakeSubmitter{}, nil)

	w := doRequest(s, http.MethodGet, "/api/analyze/status/nope", "", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestAnalysesListRequiresAdmin(t *testing.T) {
	s := newTestServer(&fakeArticleStore{}, &fakeAnalysisStore{}, &fakeIngestor{}, &fakeSubmitter{}, nil)

	if w := doRequest(s, http.MethodGet, "/api/analyses", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if w := doRequest(s, http.MethodGet, "/api/analyses", "", testAdminToken); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestAnalysisByID(t *testing.T) {
	analyses := &fakeAnalysisStore{analyses: []model.Analysis{{ID: 3, Summary: "stored"}}}
	s := newTestServer(&fakeArticleStore{}, analyses, &fakeIngestor{}, &fakeSubmitter{}, nil)

	w := doRequest(s, http.MethodGet, "/api/analyses/3", "", testAdminToken)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got model.Analysis
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Summary != "stored" {
		t.Errorf("Summary = %q", got.Summary)
	}

	if w := doRequest(s, http.MethodGet, "/api/analyses/99", "", testAdminToken); w.Code != http.StatusNotFound {
		t.Errorf("unknown id: status = %d, want 404", w.Code)
	}
	if w := doRequest(s, http.MethodGet, "/api/analyses/abc", "", testAdminToken); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d, want 400", w.Code)
	}
}

func TestStatsCached(t *testing.T) {
	articles := &fakeArticleStore{stats: storage.Stats{Total: 10}}
	s := newTestServer(articles, &fakeAnalysisStore{}, &fakeIngestor{}, &fakeSubmitter{}, nil)

	w := doRequest(s, http.MethodGet, "/api/stats", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	// Second call is served from cache even if the store now fails.
	articles.err = errors.New("db gone")
	w = doRequest(s, http.MethodGet, "/api/stats", "", "")
	if w.Code != http.StatusOK {
		t.Errorf("cached stats: status = %d, want 200", w.Code)
	}
	var payload map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if total, _ := payload["total"].(float64); total != 10 {
		t.Errorf("total = %v, want 10", payload["total"])
	}
}

func TestNormalizeKeywords(t *testing.T) {
	got := normalizeKeywords([]string{" Gaza ", "gaza", "", "Ceasefire", "  "})
	want := []string{"gaza", "ceasefire"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("normalizeKeywords = %v, want %v", got, want)
	}
	if normalizeKeywords(nil) != nil {
		t.Error("nil input should stay nil")
	}
}

func TestQueryInt(t *testing.T) {
	tests := []struct {
		in   string
		def  int
		want int
	}{
		{"", 60, 60},
		{"25", 60, 25},
		{"-5", 60, 60},
		{"abc", 60, 60},
		{"0", 60, 0},
	}
	for _, tt := range tests {
		if got := queryInt(tt.in, tt.def); got != tt.want {
			t.Errorf("queryInt(%q, %d) = %d, want %d", tt.in, tt.def, got, tt.want)
		}
	}
}

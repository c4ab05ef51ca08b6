package douban

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTrendingParsesItems(t *testing.T) {
	t.Parallel()
	var gotPath, gotQuery, gotUA, gotReferer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotUA = r.Header.Get("User-Agent")
		gotReferer = r.Header.Get("Referer")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"subject_collection_items": [
				{"id": "101", "title": "流浪地球", "year": "2024年", "rating": {"value": 8.5}},
				{"id": "102", "title": "无名", "year": " 2023 ", "rating": null},
				{"id": "103", "title": "新片", "year": ""}
			]
		}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	items, err := c.Trending(context.Background(), CategoryMovie, 5)
	if err != nil {
		t.Fatalf("Trending: %v", err)
	}

	if gotPath != "/subject_collection/movie_showing/items" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotQuery != "count=5&start=0" {
		t.Fatalf("query = %q", gotQuery)
	}
	if gotUA == "" || gotReferer != "https://movie.douban.com/" {
		t.Fatalf("headers: ua=%q referer=%q", gotUA, gotReferer)
	}

	if len(items) != 3 {
		t.Fatalf("len = %d, want 3", len(items))
	}
	if items[0].Title != "流浪地球" || items[0].Year != "2024" {
		t.Fatalf("item[0] = %+v", items[0])
	}
	if items[0].Rating == nil || *items[0].Rating != 8.5 {
		t.Fatalf("item[0].Rating = %v, want 8.5", items[0].Rating)
	}
	if items[1].Year != "2023" || items[1].Rating != nil {
		t.Fatalf("item[1] = %+v", items[1])
	}
	if items[2].Year != "" {
		t.Fatalf("item[2].Year = %q, want empty", items[2].Year)
	}
	for _, it := range items {
		if it.Category != CategoryMovie {
			t.Fatalf("category = %q, want movie", it.Category)
		}
	}
}

func TestTrendingTVUsesTVCollection(t *testing.T) {
	t.Parallel()
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"subject_collection_items": []}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	items, err := c.Trending(context.Background(), CategoryTV, 3)
	if err != nil {
		t.Fatalf("Trending: %v", err)
	}
	if gotPath != "/subject_collection/tv_hot/items" {
		t.Fatalf("path = %q", gotPath)
	}
	if len(items) != 0 {
		t.Fatalf("len = %d, want 0", len(items))
	}
}

func TestTrendingLimitTruncates(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"subject_collection_items": [
			{"id": "1", "title": "a"}, {"id": "2", "title": "b"}, {"id": "3", "title": "c"}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	items, err := c.Trending(context.Background(), CategoryMovie, 2)
	if err != nil {
		t.Fatalf("Trending: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2 (server over-returned)", len(items))
	}
}

func TestTrendingUnknownCategory(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be issued for an unknown category")
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	if _, err := c.Trending(context.Background(), Category("anime"), 5); err == nil {
		t.Fatal("expected error for unknown category")
	}
}

func TestTrendingMalformedJSON(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"subject_collection_items": [`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	if _, err := c.Trending(context.Background(), CategoryMovie, 5); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestTrendingHTTPError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"msg":"rate limited"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	if _, err := c.Trending(context.Background(), CategoryMovie, 5); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}

func TestNormalizeYear(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, want string }{
		{"2024年", "2024"},
		{" 2024年 ", "2024"},
		{"2024", "2024"},
		{"", ""},
		{"  ", ""},
	}
	for _, tt := range tests {
		if got := normalizeYear(tt.in); got != tt.want {
			t.Fatalf("normalizeYear(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

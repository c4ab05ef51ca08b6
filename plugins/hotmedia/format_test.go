package hotmedia

import (
	"strings"
	"testing"
	"time"

	"hotbot/pkg/douban"
)

func ratingOf(v float64) *float64 { return &v }

func TestBuildMessage(t *testing.T) {
	t.Parallel()
	items := []douban.Item{
		{Title: "流浪地球", Year: "2024", Rating: ratingOf(8.5), ID: "101", Category: douban.CategoryMovie},
		{Title: "新剧", Year: "", Category: douban.CategoryTV},
	}
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

	title, text := buildMessage(items, now)
	if title != "今日热播资源推荐" {
		t.Fatalf("title = %q", title)
	}

	want := "🎬 今日热播推荐 (2026-08-31)\n\n" +
		"🔥 热门电影: 1部\n" +
		"📺 热门剧集: 1部\n\n" +
		"1. [电影] 流浪地球 (2024) ⭐8.5\n" +
		"豆瓣: https://movie.douban.com/subject/101/\n\n" +
		"2. [剧集] 新剧 ()\n\n"
	if text != want {
		t.Fatalf("text mismatch:\ngot:\n%q\nwant:\n%q", text, want)
	}
}

func TestBuildMessageOrderAndCounts(t *testing.T) {
	t.Parallel()
	var items []douban.Item
	for _, title := range []string{"m1", "m2", "m3"} {
		items = append(items, douban.Item{Title: title, Category: douban.CategoryMovie})
	}
	for _, title := range []string{"s1", "s2", "s3"} {
		items = append(items, douban.Item{Title: title, Category: douban.CategoryTV})
	}

	_, text := buildMessage(items, time.Now())
	if !strings.Contains(text, "🔥 热门电影: 3部") || !strings.Contains(text, "📺 热门剧集: 3部") {
		t.Fatalf("counts missing:\n%s", text)
	}
	if strings.Index(text, "m3") > strings.Index(text, "s1") {
		t.Fatalf("movies should precede tv:\n%s", text)
	}
	if !strings.Contains(text, "6. [剧集] s3") {
		t.Fatalf("numbering should run across categories:\n%s", text)
	}
}

func TestBuildMessageOmitsMissingRatingAndLink(t *testing.T) {
	t.Parallel()
	items := []douban.Item{{Title: "无评分", Year: "2025", Category: douban.CategoryMovie}}
	_, text := buildMessage(items, time.Now())
	if strings.Contains(text, "⭐") {
		t.Fatalf("rating marker should be absent:\n%s", text)
	}
	if strings.Contains(text, "豆瓣") {
		t.Fatalf("link line should be absent:\n%s", text)
	}
}

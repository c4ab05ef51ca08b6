package hotmedia

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"hotbot/pkg/douban"
)

const notifyTitle = "今日热播资源推荐"

// buildMessage renders the full push text. The message is assembled in one
// pass so the notifier always receives a complete digest, never a partial one.
func buildMessage(items []douban.Item, now time.Time) (title, text string) {
	var movies, tvs int
	for _, it := range items {
		if it.Category == douban.CategoryMovie {
			movies++
		} else {
			tvs++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🎬 今日热播推荐 (%s)\n\n", now.Format("2006-01-02"))
	fmt.Fprintf(&b, "🔥 热门电影: %d部\n", movies)
	fmt.Fprintf(&b, "📺 热门剧集: %d部\n\n", tvs)

	for i, it := range items {
		label := "剧集"
		if it.Category == douban.CategoryMovie {
			label = "电影"
		}
		fmt.Fprintf(&b, "%d. [%s] %s (%s)", i+1, label, it.Title, it.Year)
		if it.Rating != nil {
			b.WriteString(" ⭐")
			b.WriteString(strconv.FormatFloat(*it.Rating, 'f', -1, 64))
		}
		if it.ID != "" {
			b.WriteString("\n豆瓣: ")
			b.WriteString(douban.SubjectURL(it.ID))
		}
		b.WriteString("\n\n")
	}

	return notifyTitle, b.String()
}

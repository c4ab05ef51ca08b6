package douban

// Category selects which trending listing to fetch.
type Category string

const (
	CategoryMovie Category = "movie"
	CategoryTV    Category = "tv"
)

// Item is one entry of a trending listing.
//
// Year is already normalized (trailing "年" and surrounding whitespace
// stripped). Rating is nil when the subject has no score yet.
type Item struct {
	Title    string
	Year     string
	Rating   *float64
	ID       string
	Category Category
}

// collectionResponse mirrors the subject_collection items payload.
type collectionResponse struct {
	Items []collectionItem `json:"subject_collection_items"`
}

type collectionItem struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Year   string  `json:"year"`
	Rating *rating `json:"rating"`
}

type rating struct {
	Value float64 `json:"value"`
}

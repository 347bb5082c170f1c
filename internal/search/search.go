package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultPost ResultType = "post"
	ResultTag  ResultType = "tag"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type     ResultType `json:"type"`
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Snippet  string     `json:"snippet"`
	Author   string     `json:"author,omitempty"`
	PostType string     `json:"postType,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	FilterTag  string
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexPost(p PostRecord) error
	IndexTag(t TagRecord) error
	DeletePost(id string) error
	DeleteTag(id string) error
}

// PostRecord is the data we index for a post. Only published posts are
// pushed to the index.
type PostRecord struct {
	ID       string   `json:"id"`
	Topic    string   `json:"topic"`
	Content  string   `json:"content"`
	Author   string   `json:"author"`
	PostType string   `json:"postType"`
	Status   string   `json:"status"`
	Tags     []string `json:"tags"`
}

// TagRecord is the data we index for a tag.
type TagRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

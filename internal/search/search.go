package search

// Result is a single search hit returned to the moderator.
type Result struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Snippet string `json:"snippet"`
}

// Query describes a search request over the message history.
type Query struct {
	Text   string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over messages.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// MessageRecord is the data we index for a message. Redacted and system
// messages are never indexed.
type MessageRecord struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Body string `json:"body"`
}

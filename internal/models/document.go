package models

// Article is a raw page collected from the knowledge source before chunking.
type Article struct {
	URL      string                 `json:"url"`
	Title    string                 `json:"title"`
	Category string                 `json:"category"`
	Content  string                 `json:"content"`
	Tags     []string               `json:"tags,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Chunk is the atomic retrieval unit. Its position in the corpus is the key
// that ties it to a vector in the index.
type Chunk struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Text      string   `json:"content"`
	SourceURL string   `json:"source_url"`
	Category  string   `json:"category"`
	Tags      []string `json:"tags"`
}

// Hit is a retrieved chunk with its squared L2 distance to the query.
// Lexical hits carry a zero distance.
type Hit struct {
	Chunk    Chunk
	Distance float32
}

// Response is what a query returns to the front ends.
type Response struct {
	Category Category `json:"category"`
	Answer   string   `json:"answer"`
	Sources  []string `json:"sources"`
}

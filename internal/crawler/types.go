package crawler

import "time"

// Heading is one h1..h6 element in document order.
type Heading struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// Image describes an <img> element with its src resolved to an absolute URL.
type Image struct {
	Src   string `json:"src"`
	Alt   string `json:"alt"`
	Title string `json:"title"`
}

// Page is one successfully fetched document. Immutable once created; it is
// handed to the processor and discarded, never persisted by the pipeline.
type Page struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Description string    `json:"description"`
	Headings    []Heading `json:"headings"`
	Images      []Image   `json:"images"`
	Links       []string  `json:"links"`
	FetchedAt   time.Time `json:"fetched_at"`
	WordCount   int       `json:"word_count"`
}

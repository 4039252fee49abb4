package server

import (
	"github.com/signalworks/siterag/internal/rag"
	"github.com/signalworks/siterag/internal/vectorstore"
)

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

type chatResponse struct {
	Answer             string       `json:"answer"`
	Sources            []rag.Source `json:"sources"`
	Confidence         float64      `json:"confidence"`
	SessionID          string       `json:"session_id"`
	Timestamp          string       `json:"timestamp"`
	SuggestedQuestions []string     `json:"suggested_questions"`
}

type statusResponse struct {
	Status           string            `json:"status"`
	VectorStoreStats vectorstore.Stats `json:"vector_store_stats"`
	TotalDocuments   int               `json:"total_documents"`
	LastUpdated      string            `json:"last_updated"`
}

type suggestionsResponse struct {
	Suggestions []string `json:"suggestions"`
}

type searchResponse struct {
	Query   string                     `json:"query"`
	Results []vectorstore.SearchResult `json:"results"`
	Count   int                        `json:"count"`
}

type clearHistoryRequest struct {
	SessionID string `json:"session_id"`
}

type messageResponse struct {
	Message string `json:"message"`
}

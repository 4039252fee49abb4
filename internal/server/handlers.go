package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/signalworks/siterag/internal/vectorstore"
)

func (s *Server) handleChat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	ctx := c.Request().Context()
	resp, err := s.engine.ProcessQuery(ctx, sessionID, req.Message)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to process query")
	}

	suggestions, err := s.engine.SuggestedQuestions(ctx)
	if err != nil {
		s.logger.Printf("failed to load suggestions: %v", err)
		suggestions = nil
	}

	return c.JSON(http.StatusOK, chatResponse{
		Answer:             resp.Answer,
		Sources:            resp.Sources,
		Confidence:         resp.Confidence,
		SessionID:          sessionID,
		Timestamp:          time.Now().Format(time.RFC3339),
		SuggestedQuestions: suggestions,
	})
}

func (s *Server) handleStatus(c echo.Context) error {
	stats, err := s.store.Stats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read index stats")
	}
	return c.JSON(http.StatusOK, statusResponse{
		Status:           "operational",
		VectorStoreStats: stats,
		TotalDocuments:   stats.TotalDocuments,
		LastUpdated:      time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleSuggestions(c echo.Context) error {
	suggestions, err := s.engine.SuggestedQuestions(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load suggestions")
	}
	return c.JSON(http.StatusOK, suggestionsResponse{Suggestions: suggestions})
}

func (s *Server) handleClearHistory(c echo.Context) error {
	var req clearHistoryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.SessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}
	if err := s.engine.ClearHistory(c.Request().Context(), req.SessionID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to clear history")
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "Conversation history cleared"})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleIngest starts one pipeline run in the background. Only one run may be
// in flight at a time.
func (s *Server) handleIngest(c echo.Context) error {
	if !s.ingesting.CompareAndSwap(false, true) {
		return echo.NewHTTPError(http.StatusConflict, "ingestion already running")
	}
	go func() {
		defer s.ingesting.Store(false)
		if _, err := s.ingestor.Run(context.Background()); err != nil {
			s.logger.Printf("ingestion failed: %v", err)
		}
	}()
	return c.JSON(http.StatusAccepted, messageResponse{Message: "Ingestion started"})
}

// handleSearch runs a raw retrieval query with the configured score threshold,
// so operators can inspect what the index returns for a question.
func (s *Server) handleSearch(c echo.Context) error {
	query := strings.TrimSpace(c.QueryParam("q"))
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	topK := 0
	if raw := c.QueryParam("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "top_k must be a positive integer")
		}
		topK = n
	}
	var filter vectorstore.Filter
	if pt := c.QueryParam("page_type"); pt != "" {
		filter = vectorstore.Filter{"page_type": pt}
	}

	results, err := s.engine.Search(c.Request().Context(), query, topK, filter)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "search failed")
	}
	if results == nil {
		results = []vectorstore.SearchResult{}
	}
	return c.JSON(http.StatusOK, searchResponse{Query: query, Results: results, Count: len(results)})
}

func (s *Server) handleReset(c echo.Context) error {
	if err := s.store.Reset(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to reset index")
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "Index reset"})
}

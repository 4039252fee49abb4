// Package rag orchestrates retrieval and answer generation over the indexed
// site content.
package rag

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/signalworks/siterag/config"
	"github.com/signalworks/siterag/internal/vectorstore"
	"github.com/signalworks/siterag/provider"
)

// Source identifies one retrieved document backing an answer.
type Source struct {
	Title           string  `json:"title"`
	URL             string  `json:"url"`
	SimilarityScore float64 `json:"similarity_score"`
	PageType        string  `json:"page_type"`
}

// Response is the full result of one query.
type Response struct {
	Answer      string   `json:"answer"`
	Sources     []Source `json:"sources"`
	Confidence  float64  `json:"confidence"`
	Query       string   `json:"query"`
	ContextUsed string   `json:"context_used"`
}

// Engine answers questions about one organization's site. It is safe for
// concurrent use.
type Engine struct {
	store     vectorstore.Store
	provider  provider.Provider
	history   History
	site      config.SiteConfig
	sampling  provider.CompletionOptions
	topK      int
	threshold float64
	logger    *log.Logger

	systemPrompt string
}

// New builds an engine for the configured site.
func New(store vectorstore.Store, p provider.Provider, history History, site config.SiteConfig, prov config.ProviderConfig, retrieval config.RetrievalConfig, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(log.Writer(), "[RAG] ", log.LstdFlags)
	}
	return &Engine{
		store:    store,
		provider: p,
		history:  history,
		site:     site,
		sampling: provider.CompletionOptions{
			MaxTokens:   prov.MaxTokens,
			Temperature: prov.Temperature,
			TopP:        prov.TopP,
		},
		topK:         retrieval.TopK,
		threshold:    retrieval.ScoreThreshold,
		logger:       logger,
		systemPrompt: systemPrompt(site.Organization),
	}
}

func systemPrompt(org string) string {
	return fmt.Sprintf(`You are an intelligent assistant specialized in answering questions about %[1]s based on their official website content.

Your role:
- Provide accurate, helpful answers based on the provided context from the %[1]s website
- If the context doesn't contain enough information, clearly state this
- Always cite sources when providing information
- Be professional and informative in your responses
- Focus on the business, services, policies, and corporate information of %[1]s

Guidelines:
- Use only the provided context to answer questions
- If asked about topics not covered in the context, politely explain that you can only answer questions about %[1]s based on the available information
- Structure your answers clearly with relevant details
- Include relevant statistics, dates, or specific information when available
- Maintain a helpful and professional tone

Context will be provided with each query. Use this context to provide accurate and comprehensive answers.`, org)
}

// OptimizeQuery prefixes the organization name when the query carries no
// domain vocabulary, which anchors short generic questions to the site.
func (e *Engine) OptimizeQuery(query string) string {
	keywords := append([]string{e.site.Organization}, e.site.DomainKeywords...)
	lower := strings.ToLower(query)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return query
		}
	}
	return e.site.Organization + " " + query
}

// RetrieveContext searches the index and assembles the numbered context block
// handed to the generator. Retrieval uses threshold 0 so weak matches still
// inform the answer.
func (e *Engine) RetrieveContext(ctx context.Context, query string, topK int) ([]vectorstore.SearchResult, string, error) {
	if topK <= 0 {
		topK = e.topK
	}
	optimized := e.OptimizeQuery(query)
	results, err := e.store.Search(ctx, optimized, topK, nil, 0)
	if err != nil {
		return nil, "", fmt.Errorf("search: %w", err)
	}
	if len(results) == 0 {
		e.logger.Printf("no relevant context found for query: %s", query)
		return nil, "", nil
	}

	parts := make([]string, 0, len(results))
	for i, r := range results {
		title := r.Metadata.Title
		if title == "" {
			title = "Unknown"
		}
		url := r.Metadata.URL
		if url == "" {
			url = "Unknown"
		}
		parts = append(parts, fmt.Sprintf("Source %d: %s (URL: %s)\nContent: %s\n", i+1, title, url, r.Content))
	}
	return results, strings.Join(parts, "\n"), nil
}

// Search runs a similarity query against the index with the configured score
// threshold applied, so operators can inspect what a stricter retrieval would
// surface. It never touches conversation history or the generator.
func (e *Engine) Search(ctx context.Context, query string, topK int, filter vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	if topK <= 0 {
		topK = e.topK
	}
	results, err := e.store.Search(ctx, e.OptimizeQuery(query), topK, filter, e.threshold)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return results, nil
}

// GenerateAnswer asks the provider for an answer grounded in the supplied
// context. A provider failure degrades to a fixed apology with zero
// confidence rather than an error, so a chat session never breaks mid-answer.
func (e *Engine) GenerateAnswer(ctx context.Context, query, contextBlock string, history []provider.Message) (string, float64) {
	messages := make([]provider.Message, 0, len(history)+2)
	messages = append(messages, provider.Message{Role: provider.RoleSystem, Content: e.systemPrompt})
	if len(history) > 6 {
		history = history[len(history)-6:]
	}
	messages = append(messages, history...)

	contextMessage := fmt.Sprintf(`Based on the following context from the official website of %s, please answer the user's question:

CONTEXT:
%s

USER QUESTION: %s

Please provide a comprehensive answer based on the context above. If the context doesn't contain enough information to answer the question, please state this clearly.`, e.site.Organization, contextBlock, query)
	messages = append(messages, provider.Message{Role: provider.RoleUser, Content: contextMessage})

	answer, err := e.provider.Complete(ctx, messages, e.sampling)
	if err != nil {
		e.logger.Printf("error generating answer: %v", err)
		return "I apologize, but I encountered an error while generating a response. Please try again.", 0
	}
	answer = strings.TrimSpace(answer)

	confidence := float64(len(answer)) / 200
	if confidence > 0.9 {
		confidence = 0.9
	}
	return answer, confidence
}

// ProcessQuery runs one full turn for a session: retrieve, generate, record.
// With no retrievable context the generator is never invoked.
func (e *Engine) ProcessQuery(ctx context.Context, sessionID, query string) (Response, error) {
	e.logger.Printf("processing query: %s", query)

	results, contextBlock, err := e.RetrieveContext(ctx, query, e.topK)
	if err != nil {
		queriesTotal.WithLabelValues("error").Inc()
		return Response{}, err
	}
	if contextBlock == "" {
		queriesTotal.WithLabelValues("no_context").Inc()
		return Response{
			Answer:  fmt.Sprintf("I apologize, but I couldn't find relevant information about your question in the website content of %[1]s. Please try rephrasing your question or ask about the business, services, or policies of %[1]s.", e.site.Organization),
			Sources: []Source{},
			Query:   query,
		}, nil
	}

	history, err := e.history.Get(ctx, sessionID)
	if err != nil {
		queriesTotal.WithLabelValues("error").Inc()
		return Response{}, fmt.Errorf("load history: %w", err)
	}

	answer, confidence := e.GenerateAnswer(ctx, query, contextBlock, history)

	sources := make([]Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, Source{
			Title:           r.Metadata.Title,
			URL:             r.Metadata.URL,
			SimilarityScore: r.SimilarityScore,
			PageType:        pageTypeOrGeneral(r.Metadata.PageType),
		})
	}

	if err := e.history.Append(ctx, sessionID,
		provider.Message{Role: provider.RoleUser, Content: query},
		provider.Message{Role: provider.RoleAssistant, Content: answer},
	); err != nil {
		e.logger.Printf("failed to record history for session %s: %v", sessionID, err)
	}

	queriesTotal.WithLabelValues("answered").Inc()
	e.logger.Printf("query processed, confidence %.2f", confidence)
	return Response{
		Answer:      answer,
		Sources:     sources,
		Confidence:  confidence,
		Query:       query,
		ContextUsed: contextBlock,
	}, nil
}

func pageTypeOrGeneral(t string) string {
	if t == "" {
		return "general"
	}
	return t
}

// SuggestedQuestions returns starter questions, extended by what the index
// actually contains, capped at 8.
func (e *Engine) SuggestedQuestions(ctx context.Context) ([]string, error) {
	stats, err := e.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("index stats: %w", err)
	}

	org := e.site.Organization
	suggestions := []string{
		fmt.Sprintf("What is %s and what does it do?", org),
		fmt.Sprintf("What are the main business areas of %s?", org),
		fmt.Sprintf("How can I contact %s?", org),
		fmt.Sprintf("What services does %s provide?", org),
		fmt.Sprintf("Tell me about the history of %s", org),
		fmt.Sprintf("Where does %s operate?", org),
	}
	if _, ok := stats.PageTypes["news"]; ok {
		suggestions = append(suggestions, fmt.Sprintf("What are the latest news and updates from %s?", org))
	}
	if _, ok := stats.PageTypes["investor"]; ok {
		suggestions = append(suggestions, fmt.Sprintf("What is the financial performance of %s?", org))
	}
	if _, ok := stats.PageTypes["career"]; ok {
		suggestions = append(suggestions, fmt.Sprintf("What job opportunities are available at %s?", org))
	}

	if len(suggestions) > 8 {
		suggestions = suggestions[:8]
	}
	return suggestions, nil
}

// History returns a copy of the session's conversation so far.
func (e *Engine) History(ctx context.Context, sessionID string) ([]provider.Message, error) {
	return e.history.Get(ctx, sessionID)
}

// ClearHistory drops a session's conversation.
func (e *Engine) ClearHistory(ctx context.Context, sessionID string) error {
	if err := e.history.Clear(ctx, sessionID); err != nil {
		return err
	}
	e.logger.Printf("conversation history cleared for session %s", sessionID)
	return nil
}

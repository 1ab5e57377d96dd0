package model

import "time"

// Document is an entry in a knowledge base.
type Document struct {
	ID         string            `json:"id"`
	Collection string            `json:"collection"`
	Title      string            `json:"title"`
	Content    string            `json:"content"`
	Tags       []string          `json:"tags,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// DocumentInput is the payload for Store. An empty ID lets the provider assign one;
// a known ID replaces the existing document.
type DocumentInput struct {
	ID       string            `json:"id,omitempty"`
	Title    string            `json:"title" validate:"required,max=500"`
	Content  string            `json:"content" validate:"required"`
	Tags     []string          `json:"tags,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// KnowledgeQuery searches documents by free text, optionally restricted to tags.
type KnowledgeQuery struct {
	Query string   `json:"query" validate:"required"`
	Tags  []string `json:"tags,omitempty"`
	Limit int      `json:"limit,omitempty" validate:"min=0,max=100"`
}

// KnowledgeMatch is a search hit with a relevance score in [0,1].
type KnowledgeMatch struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
	Snippet  string   `json:"snippet,omitempty"`
}

package sqlite

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"

	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
	"github.com/ericfisherdev/vendorbridge/internal/domain/port/driven"
	"github.com/ericfisherdev/vendorbridge/internal/provider"
	"github.com/ericfisherdev/vendorbridge/internal/resilience"
)

// KnowledgeVendor is the registry name of the local knowledge base.
const KnowledgeVendor = "local"

// KnowledgeSpec describes the local knowledge base. It has no vendor quota;
// the retry policy covers a busy database.
var KnowledgeSpec = provider.Spec{
	Policy:              resilience.DefaultPolicy(),
	AuthModes:           []model.AuthMode{model.AuthModeAPIKey},
	ValidateOnConstruct: true,
}

const (
	defaultSearchLimit = 10
	snippetRadius      = 80
)

// Compile-time interface satisfaction check.
var _ driven.Knowledge = (*Knowledge)(nil)

// Knowledge stores a tenant's documents in one collection of the local database.
type Knowledge struct {
	id         model.ProviderIdentity
	collection string
	db         *DB
	ex         *resilience.Executor
	clock      clockwork.Clock
}

// NewKnowledge returns a constructor for Knowledge providers backed by db.
func NewKnowledge(db *DB) func(provider.Deps) (*Knowledge, error) {
	return func(d provider.Deps) (*Knowledge, error) {
		if db == nil {
			return nil, fmt.Errorf("local knowledge: nil database")
		}
		cfg, _ := d.Config.(model.KnowledgeConfig)
		clock := d.Clock
		if clock == nil {
			clock = clockwork.NewRealClock()
		}
		return &Knowledge{
			id:         d.Identity,
			collection: cfg.CollectionName(),
			db:         db,
			ex:         d.Executor,
			clock:      clock,
		}, nil
	}
}

// Identity returns the provider identity.
func (k *Knowledge) Identity() model.ProviderIdentity { return k.id }

// Validate checks that the database answers.
func (k *Knowledge) Validate(ctx context.Context) error {
	return resilience.Run(ctx, k.ex, "validate", func(ctx context.Context) error {
		return normalize(k.db.Reader.PingContext(ctx), "database")
	})
}

// Store inserts a document, or replaces the one with the same ID. A replaced
// document keeps its creation time.
func (k *Knowledge) Store(ctx context.Context, in model.DocumentInput) (*model.Document, error) {
	if err := model.Validate(in); err != nil {
		return nil, err
	}
	doc := model.Document{
		ID:         lo.CoalesceOrEmpty(in.ID, uuid.NewString()),
		Collection: k.collection,
		Title:      in.Title,
		Content:    in.Content,
		Tags:       normalizeTags(in.Tags),
		Metadata:   in.Metadata,
	}
	tags, err := json.Marshal(lo.Ternary(doc.Tags == nil, []string{}, doc.Tags))
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}
	metadata, err := json.Marshal(lo.Ternary(doc.Metadata == nil, map[string]string{}, doc.Metadata))
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	const query = `INSERT INTO knowledge_documents
		(tenant_id, collection, id, title, content, tags, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, collection, id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			tags = excluded.tags,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
		RETURNING created_at`

	return resilience.Do(ctx, k.ex, "store_document", func(ctx context.Context) (*model.Document, error) {
		now := k.clock.Now().UTC()
		var createdAt string
		err := k.db.Writer.QueryRowContext(ctx, query,
			k.id.TenantID, k.collection, doc.ID, doc.Title, doc.Content, string(tags), string(metadata),
			formatTime(now), formatTime(now),
		).Scan(&createdAt)
		if err != nil {
			return nil, normalize(err, "document "+doc.ID)
		}
		out := doc
		out.UpdatedAt = now
		if out.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at for document %s: %w", doc.ID, err)
		}
		return &out, nil
	})
}

// Get returns one document of the collection.
func (k *Knowledge) Get(ctx context.Context, id string) (*model.Document, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &model.NormalizedError{Kind: model.KindValidation, Message: "document id: required"}
	}
	const query = `SELECT id, title, content, tags, metadata, created_at, updated_at
		FROM knowledge_documents WHERE tenant_id = ? AND collection = ? AND id = ?`

	return resilience.Do(ctx, k.ex, "get_document", func(ctx context.Context) (*model.Document, error) {
		row := k.db.Reader.QueryRowContext(ctx, query, k.id.TenantID, k.collection, id)
		doc, err := k.scanDocument(row)
		if err != nil {
			return nil, normalize(err, "document "+id)
		}
		return doc, nil
	})
}

// Delete removes a document. Deleting a missing document reports NotFound.
func (k *Knowledge) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return &model.NormalizedError{Kind: model.KindValidation, Message: "document id: required"}
	}
	const query = `DELETE FROM knowledge_documents WHERE tenant_id = ? AND collection = ? AND id = ?`

	return resilience.Run(ctx, k.ex, "delete_document", func(ctx context.Context) error {
		res, err := k.db.Writer.ExecContext(ctx, query, k.id.TenantID, k.collection, id)
		if err != nil {
			return normalize(err, "document "+id)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return normalize(err, "document "+id)
		}
		if n == 0 {
			return &model.NormalizedError{Kind: model.KindNotFound, Message: "document " + id + " not found"}
		}
		return nil
	})
}

// Search ranks the documents containing any query term. Each term scores
// tf/(tf+1), with title hits counting double, and a document's score is the
// mean over all terms. Ties go to the most recently updated document.
func (k *Knowledge) Search(ctx context.Context, q model.KnowledgeQuery) ([]model.KnowledgeMatch, error) {
	if err := model.Validate(q); err != nil {
		return nil, err
	}
	terms := tokenize(q.Query)
	if len(terms) == 0 {
		return nil, &model.NormalizedError{Kind: model.KindValidation, Message: "query: no searchable terms"}
	}
	limit := q.Limit
	if limit == 0 {
		limit = defaultSearchLimit
	}

	var b strings.Builder
	b.WriteString(`SELECT id, title, content, tags, metadata, created_at, updated_at
		FROM knowledge_documents WHERE tenant_id = ? AND collection = ? AND (`)
	args := []any{k.id.TenantID, k.collection}
	for i, term := range terms {
		if i > 0 {
			b.WriteString(" OR ")
		}
		b.WriteString(`title LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\'`)
		pattern := "%" + escapeLike(term) + "%"
		args = append(args, pattern, pattern)
	}
	b.WriteString(")")
	query := b.String()

	return resilience.Do(ctx, k.ex, "search_documents", func(ctx context.Context) ([]model.KnowledgeMatch, error) {
		rows, err := k.db.Reader.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, normalize(err, "documents")
		}
		defer rows.Close()

		var matches []model.KnowledgeMatch
		for rows.Next() {
			doc, err := k.scanDocument(rows)
			if err != nil {
				return nil, normalize(err, "documents")
			}
			if !hasAllTags(doc.Tags, q.Tags) {
				continue
			}
			score := scoreDocument(doc, terms)
			if score == 0 {
				continue
			}
			matches = append(matches, model.KnowledgeMatch{Document: *doc, Score: score, Snippet: snippet(doc.Content, terms)})
		}
		if err := rows.Err(); err != nil {
			return nil, normalize(err, "documents")
		}

		slices.SortStableFunc(matches, func(a, b model.KnowledgeMatch) int {
			if c := cmp.Compare(b.Score, a.Score); c != 0 {
				return c
			}
			if c := b.Document.UpdatedAt.Compare(a.Document.UpdatedAt); c != 0 {
				return c
			}
			return cmp.Compare(a.Document.ID, b.Document.ID)
		})
		if len(matches) > limit {
			matches = matches[:limit]
		}
		return matches, nil
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func (k *Knowledge) scanDocument(s scanner) (*model.Document, error) {
	doc := model.Document{Collection: k.collection}
	var tags, metadata, createdAt, updatedAt string
	if err := s.Scan(&doc.ID, &doc.Title, &doc.Content, &tags, &metadata, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &doc.Tags); err != nil {
		return nil, fmt.Errorf("decode tags of document %s: %w", doc.ID, err)
	}
	if err := json.Unmarshal([]byte(metadata), &doc.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata of document %s: %w", doc.ID, err)
	}
	if len(doc.Tags) == 0 {
		doc.Tags = nil
	}
	if len(doc.Metadata) == 0 {
		doc.Metadata = nil
	}
	var err error
	if doc.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if doc.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &doc, nil
}

func normalizeTags(tags []string) []string {
	out := lo.FilterMap(tags, func(t string, _ int) (string, bool) {
		t = strings.ToLower(strings.TrimSpace(t))
		return t, t != ""
	})
	if len(out) == 0 {
		return nil
	}
	return lo.Uniq(out)
}

func hasAllTags(have, want []string) bool {
	for _, w := range want {
		if !slices.Contains(have, strings.ToLower(strings.TrimSpace(w))) {
			return false
		}
	}
	return true
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return lo.Uniq(fields)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scoreDocument(doc *model.Document, terms []string) float64 {
	title := strings.ToLower(doc.Title)
	content := strings.ToLower(doc.Content)
	var sum float64
	for _, term := range terms {
		tf := float64(strings.Count(content, term) + 2*strings.Count(title, term))
		sum += tf / (tf + 1)
	}
	return sum / float64(len(terms))
}

// snippet returns the text around the first occurrence of any term, or the
// start of the content when no term occurs in it.
func snippet(content string, terms []string) string {
	runes := []rune(content)
	lower := make([]rune, len(runes))
	for i, r := range runes {
		lower[i] = unicode.ToLower(r)
	}

	at := -1
	for _, term := range terms {
		if i := runeIndex(lower, []rune(term)); i >= 0 && (at < 0 || i < at) {
			at = i
		}
	}
	if at < 0 {
		at = 0
	}

	start := max(at-snippetRadius, 0)
	end := min(at+snippetRadius, len(runes))
	out := strings.TrimSpace(string(runes[start:end]))
	if start > 0 {
		out = "…" + out
	}
	if end < len(runes) {
		out += "…"
	}
	return out
}

func runeIndex(haystack, needle []rune) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if slices.Equal(haystack[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}

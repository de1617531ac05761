package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/pagenode-backend/internal/clients/neo4jdb"
	"github.com/yungbote/pagenode-backend/internal/logger"
)

const (
	EdgeRelatesTo      = "relates_to"
	EdgePrerequisiteOf = "prerequisite_of"
)

type Concept struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Mastery     float64 `json:"mastery"`
	ReviewCount int     `json:"review_count"`
}

type Edge struct {
	FromID string  `json:"from_id"`
	ToID   string  `json:"to_id"`
	Type   string  `json:"type"`
	Weight float64 `json:"weight"`
}

// Service is the concept graph. Concepts are deduplicated by exact name;
// EXTRACTED_FROM edges carry the chunk they were mined from.
type Service interface {
	EnsureDocumentNode(ctx context.Context, docID uuid.UUID, title, author string) error
	UpsertConceptByName(ctx context.Context, name, description, category string) (string, error)
	AddExtractedFrom(ctx context.Context, conceptID string, docID uuid.UUID, chunkID uuid.UUID, confidence float64) error
	AddConceptEdge(ctx context.Context, fromID, toID, relType string, weight float64) error

	// ApplyMasteryFromChunk shifts mastery on every concept extracted from
	// the chunk, clamped to [0, 1], and bumps review_count.
	ApplyMasteryFromChunk(ctx context.Context, chunkID uuid.UUID, delta float64) error

	ConceptsForDocument(ctx context.Context, docID uuid.UUID) ([]Concept, error)
	Subgraph(ctx context.Context, docID uuid.UUID) ([]Concept, []Edge, error)
	FullGraph(ctx context.Context) ([]Concept, []Edge, error)
	ListConcepts(ctx context.Context, category string, offset, limit int) ([]Concept, error)
	GetConcept(ctx context.Context, conceptID string) (*Concept, error)
	Neighbors(ctx context.Context, conceptID string) ([]Concept, []Edge, error)
	DeleteConcept(ctx context.Context, conceptID string) (bool, error)
	DeleteConceptEdge(ctx context.Context, fromID, toID, relType string) error
	DeleteDocumentGraph(ctx context.Context, docID uuid.UUID) error
}

type service struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewService(client *neo4jdb.Client, baseLog *logger.Logger) Service {
	if client == nil || client.Driver == nil {
		return nil
	}
	s := &service{client: client, log: baseLog.With("service", "ConceptGraph")}
	s.initSchema(context.Background())
	return s
}

// initSchema is best-effort: a missing constraint degrades dedup, not
// correctness.
func (s *service) initSchema(ctx context.Context) {
	stmts := []string{
		`CREATE CONSTRAINT concept_name_unique IF NOT EXISTS FOR (c:Concept) REQUIRE c.name IS UNIQUE`,
		`CREATE CONSTRAINT document_id_unique IF NOT EXISTS FOR (d:Document) REQUIRE d.id IS UNIQUE`,
	}
	for _, stmt := range stmts {
		if _, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			res, err := tx.Run(ctx, stmt, nil)
			if err != nil {
				return nil, err
			}
			_, err = res.Consume(ctx)
			return nil, err
		}); err != nil {
			s.log.Warn("graph schema init failed (continuing)", "error", err)
		}
	}
}

func (s *service) EnsureDocumentNode(ctx context.Context, docID uuid.UUID, title, author string) error {
	if docID == uuid.Nil {
		return fmt.Errorf("graph: document id required")
	}
	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MERGE (d:Document {id: $id})
SET d.title = $title,
    d.author = $author
`, map[string]any{"id": docID.String(), "title": title, "author": author})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	return err
}

func (s *service) UpsertConceptByName(ctx context.Context, name, description, category string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("graph: concept name required")
	}

	out, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MERGE (c:Concept {name: $name})
ON CREATE SET c.id = $id,
              c.mastery = 0.0,
              c.review_count = 0,
              c.created_at = $now
SET c.category = $category,
    c.description = CASE WHEN $description <> '' THEN $description ELSE coalesce(c.description, '') END
RETURN c.id AS id
`, map[string]any{
			"name":        name,
			"id":          uuid.New().String(),
			"now":         time.Now().UTC().Format(time.RFC3339Nano),
			"category":    category,
			"description": strings.TrimSpace(description),
		})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		id, _ := rec.Get("id")
		return id, nil
	})
	if err != nil {
		return "", err
	}
	id, ok := out.(string)
	if !ok || id == "" {
		return "", fmt.Errorf("graph: upsert concept returned no id")
	}
	return id, nil
}

func (s *service) AddExtractedFrom(ctx context.Context, conceptID string, docID uuid.UUID, chunkID uuid.UUID, confidence float64) error {
	if conceptID == "" || docID == uuid.Nil {
		return fmt.Errorf("graph: concept id and document id required")
	}
	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (c:Concept {id: $concept_id})
MERGE (d:Document {id: $document_id})
MERGE (c)-[r:EXTRACTED_FROM {chunk_id: $chunk_id}]->(d)
SET r.confidence = $confidence
`, map[string]any{
			"concept_id":  conceptID,
			"document_id": docID.String(),
			"chunk_id":    chunkID.String(),
			"confidence":  confidence,
		})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	return err
}

func (s *service) AddConceptEdge(ctx context.Context, fromID, toID, relType string, weight float64) error {
	if fromID == "" || toID == "" || fromID == toID {
		return fmt.Errorf("graph: two distinct concept ids required")
	}

	var stmt string
	switch relType {
	case EdgePrerequisiteOf:
		stmt = `
MATCH (a:Concept {id: $from_id}), (b:Concept {id: $to_id})
MERGE (a)-[r:PREREQUISITE_OF]->(b)
SET r.weight = $weight
`
	case EdgeRelatesTo:
		stmt = `
MATCH (a:Concept {id: $from_id}), (b:Concept {id: $to_id})
MERGE (a)-[r:RELATES_TO]->(b)
SET r.relation_type = $rel_type,
    r.weight = $weight
`
	default:
		// Unknown relation types become relates_to rather than failing the
		// chunk pass.
		stmt = `
MATCH (a:Concept {id: $from_id}), (b:Concept {id: $to_id})
MERGE (a)-[r:RELATES_TO]->(b)
SET r.relation_type = $rel_type,
    r.weight = $weight
`
	}

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, stmt, map[string]any{
			"from_id":  fromID,
			"to_id":    toID,
			"rel_type": relType,
			"weight":   weight,
		})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	return err
}

func (s *service) ApplyMasteryFromChunk(ctx context.Context, chunkID uuid.UUID, delta float64) error {
	if chunkID == uuid.Nil {
		return nil
	}
	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (c:Concept)-[r:EXTRACTED_FROM {chunk_id: $chunk_id}]->(:Document)
SET c.mastery = CASE
      WHEN c.mastery + $delta < 0.0 THEN 0.0
      WHEN c.mastery + $delta > 1.0 THEN 1.0
      ELSE c.mastery + $delta
    END,
    c.review_count = coalesce(c.review_count, 0) + 1
`, map[string]any{"chunk_id": chunkID.String(), "delta": delta})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	return err
}

func (s *service) ConceptsForDocument(ctx context.Context, docID uuid.UUID) ([]Concept, error) {
	out, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (c:Concept)-[:EXTRACTED_FROM]->(d:Document {id: $id})
RETURN DISTINCT c.id AS id, c.name AS name, c.description AS description,
       c.category AS category, c.mastery AS mastery, c.review_count AS review_count
ORDER BY name
`, map[string]any{"id": docID.String()})
		if err != nil {
			return nil, err
		}
		return collectConcepts(ctx, res)
	})
	if err != nil {
		return nil, err
	}
	return out.([]Concept), nil
}

func (s *service) Subgraph(ctx context.Context, docID uuid.UUID) ([]Concept, []Edge, error) {
	concepts, err := s.ConceptsForDocument(ctx, docID)
	if err != nil {
		return nil, nil, err
	}

	out, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (a:Concept)-[:EXTRACTED_FROM]->(d:Document {id: $id})
MATCH (b:Concept)-[:EXTRACTED_FROM]->(d)
MATCH (a)-[r:RELATES_TO|PREREQUISITE_OF]->(b)
RETURN DISTINCT a.id AS from_id, b.id AS to_id, type(r) AS rel_type,
       coalesce(r.weight, 0.0) AS weight
`, map[string]any{"id": docID.String()})
		if err != nil {
			return nil, err
		}
		return collectEdges(ctx, res)
	})
	if err != nil {
		return nil, nil, err
	}
	return concepts, out.([]Edge), nil
}

func (s *service) ListConcepts(ctx context.Context, category string, offset, limit int) ([]Concept, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	stmt := `
MATCH (c:Concept)
RETURN c.id AS id, c.name AS name, c.description AS description,
       c.category AS category, c.mastery AS mastery, c.review_count AS review_count
ORDER BY name
SKIP $offset LIMIT $limit
`
	params := map[string]any{"offset": offset, "limit": limit}
	if category != "" {
		stmt = `
MATCH (c:Concept)
WHERE c.category = $category
RETURN c.id AS id, c.name AS name, c.description AS description,
       c.category AS category, c.mastery AS mastery, c.review_count AS review_count
ORDER BY name
SKIP $offset LIMIT $limit
`
		params["category"] = category
	}
	out, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, stmt, params)
		if err != nil {
			return nil, err
		}
		return collectConcepts(ctx, res)
	})
	if err != nil {
		return nil, err
	}
	return out.([]Concept), nil
}

func (s *service) GetConcept(ctx context.Context, conceptID string) (*Concept, error) {
	out, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (c:Concept {id: $id})
RETURN c.id AS id, c.name AS name, c.description AS description,
       c.category AS category, c.mastery AS mastery, c.review_count AS review_count
`, map[string]any{"id": conceptID})
		if err != nil {
			return nil, err
		}
		return collectConcepts(ctx, res)
	})
	if err != nil {
		return nil, err
	}
	concepts := out.([]Concept)
	if len(concepts) == 0 {
		return nil, nil
	}
	return &concepts[0], nil
}

// Neighbors returns the concept plus every directly connected concept and
// the edges among them that touch the center.
func (s *service) Neighbors(ctx context.Context, conceptID string) ([]Concept, []Edge, error) {
	center, err := s.GetConcept(ctx, conceptID)
	if err != nil {
		return nil, nil, err
	}
	if center == nil {
		return nil, nil, nil
	}

	out, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (c:Concept {id: $id})-[:RELATES_TO|PREREQUISITE_OF]-(n:Concept)
RETURN DISTINCT n.id AS id, n.name AS name, n.description AS description,
       n.category AS category, n.mastery AS mastery, n.review_count AS review_count
ORDER BY name
`, map[string]any{"id": conceptID})
		if err != nil {
			return nil, err
		}
		return collectConcepts(ctx, res)
	})
	if err != nil {
		return nil, nil, err
	}
	concepts := append([]Concept{*center}, out.([]Concept)...)

	edgesOut, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (a:Concept)-[r:RELATES_TO|PREREQUISITE_OF]->(b:Concept)
WHERE a.id = $id OR b.id = $id
RETURN DISTINCT a.id AS from_id, b.id AS to_id, type(r) AS rel_type,
       coalesce(r.weight, 0.0) AS weight
`, map[string]any{"id": conceptID})
		if err != nil {
			return nil, err
		}
		return collectEdges(ctx, res)
	})
	if err != nil {
		return nil, nil, err
	}
	return concepts, edgesOut.([]Edge), nil
}

func (s *service) DeleteConcept(ctx context.Context, conceptID string) (bool, error) {
	existing, err := s.GetConcept(ctx, conceptID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	_, err = s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (c:Concept {id: $id})
DETACH DELETE c
`, map[string]any{"id": conceptID})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *service) DeleteConceptEdge(ctx context.Context, fromID, toID, relType string) error {
	var stmt string
	switch relType {
	case EdgePrerequisiteOf:
		stmt = `
MATCH (a:Concept {id: $from_id})-[r:PREREQUISITE_OF]->(b:Concept {id: $to_id})
DELETE r
`
	case EdgeRelatesTo:
		stmt = `
MATCH (a:Concept {id: $from_id})-[r:RELATES_TO]->(b:Concept {id: $to_id})
DELETE r
`
	default:
		return fmt.Errorf("graph: unknown edge type %q", relType)
	}
	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, stmt, map[string]any{"from_id": fromID, "to_id": toID})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	return err
}

// FullGraph returns every concept and every concept-to-concept edge.
func (s *service) FullGraph(ctx context.Context) ([]Concept, []Edge, error) {
	conceptsOut, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (c:Concept)
RETURN c.id AS id, c.name AS name, c.description AS description,
       c.category AS category, c.mastery AS mastery, c.review_count AS review_count
ORDER BY name
`, nil)
		if err != nil {
			return nil, err
		}
		return collectConcepts(ctx, res)
	})
	if err != nil {
		return nil, nil, err
	}

	edgesOut, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (a:Concept)-[r:RELATES_TO|PREREQUISITE_OF]->(b:Concept)
RETURN a.id AS from_id, b.id AS to_id, type(r) AS rel_type,
       coalesce(r.weight, 0.0) AS weight
`, nil)
		if err != nil {
			return nil, err
		}
		return collectEdges(ctx, res)
	})
	if err != nil {
		return nil, nil, err
	}
	return conceptsOut.([]Concept), edgesOut.([]Edge), nil
}

// DeleteDocumentGraph removes the document node and any concepts left with
// no remaining source document.
func (s *service) DeleteDocumentGraph(ctx context.Context, docID uuid.UUID) error {
	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (d:Document {id: $id})
DETACH DELETE d
`, map[string]any{"id": docID.String()})
		if err != nil {
			return nil, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}

		res, err = tx.Run(ctx, `
MATCH (c:Concept)
WHERE NOT (c)-[:EXTRACTED_FROM]->(:Document)
DETACH DELETE c
`, nil)
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	return err
}

func collectConcepts(ctx context.Context, res neo4j.ResultWithContext) ([]Concept, error) {
	var out []Concept
	for res.Next(ctx) {
		rec := res.Record()
		out = append(out, Concept{
			ID:          stringVal(rec, "id"),
			Name:        stringVal(rec, "name"),
			Description: stringVal(rec, "description"),
			Category:    stringVal(rec, "category"),
			Mastery:     floatVal(rec, "mastery"),
			ReviewCount: intVal(rec, "review_count"),
		})
	}
	return out, res.Err()
}

func collectEdges(ctx context.Context, res neo4j.ResultWithContext) ([]Edge, error) {
	var out []Edge
	for res.Next(ctx) {
		rec := res.Record()
		out = append(out, Edge{
			FromID: stringVal(rec, "from_id"),
			ToID:   stringVal(rec, "to_id"),
			Type:   edgeTypeName(stringVal(rec, "rel_type")),
			Weight: floatVal(rec, "weight"),
		})
	}
	return out, res.Err()
}

func edgeTypeName(relType string) string {
	switch relType {
	case "PREREQUISITE_OF":
		return EdgePrerequisiteOf
	default:
		return EdgeRelatesTo
	}
}

func stringVal(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func floatVal(rec *neo4j.Record, key string) float64 {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}

func intVal(rec *neo4j.Record, key string) int {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

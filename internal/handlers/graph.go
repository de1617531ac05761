package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/pagenode-backend/internal/graph"
)

type GraphHandler struct {
	graph graph.Service
}

func NewGraphHandler(graphSvc graph.Service) *GraphHandler {
	return &GraphHandler{graph: graphSvc}
}

// requireGraph guards every endpoint: the graph backend is optional.
func (gh *GraphHandler) requireGraph(c *gin.Context) bool {
	if gh.graph == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "concept graph backend is not configured"})
		return false
	}
	return true
}

type conceptRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

func (gh *GraphHandler) CreateConcept(c *gin.Context) {
	if !gh.requireGraph(c) {
		return
	}
	var body conceptRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	category := body.Category
	if category == "" {
		category = "general"
	}
	id, err := gh.graph.UpsertConceptByName(c.Request.Context(), body.Name, body.Description, category)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	concept, err := gh.graph.GetConcept(c.Request.Context(), id)
	if err != nil || concept == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "concept created but could not be read back"})
		return
	}
	c.JSON(http.StatusCreated, concept)
}

func (gh *GraphHandler) ListConcepts(c *gin.Context) {
	if !gh.requireGraph(c) {
		return
	}
	offset := intQuery(c, "offset", 0)
	limit := intQuery(c, "limit", 100)

	items, err := gh.graph.ListConcepts(c.Request.Context(), c.Query("category"), offset, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

func (gh *GraphHandler) GetConcept(c *gin.Context) {
	if !gh.requireGraph(c) {
		return
	}
	concept, err := gh.graph.GetConcept(c.Request.Context(), c.Param("concept_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if concept == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Concept not found"})
		return
	}
	c.JSON(http.StatusOK, concept)
}

// Neighbors returns the concept plus directly connected concepts and the
// edges touching it.
func (gh *GraphHandler) Neighbors(c *gin.Context) {
	if !gh.requireGraph(c) {
		return
	}
	concepts, edges, err := gh.graph.Neighbors(c.Request.Context(), c.Param("concept_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if concepts == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Concept not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"nodes": concepts, "edges": edges})
}

func (gh *GraphHandler) DeleteConcept(c *gin.Context) {
	if !gh.requireGraph(c) {
		return
	}
	deleted, err := gh.graph.DeleteConcept(c.Request.Context(), c.Param("concept_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "Concept not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

type relationshipRequest struct {
	FromID  string  `json:"from_id" binding:"required"`
	ToID    string  `json:"to_id" binding:"required"`
	RelType string  `json:"rel_type" binding:"required"`
	Weight  float64 `json:"weight"`
}

func (gh *GraphHandler) CreateRelationship(c *gin.Context) {
	if !gh.requireGraph(c) {
		return
	}
	var body relationshipRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.RelType != graph.EdgeRelatesTo && body.RelType != graph.EdgePrerequisiteOf {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rel_type must be relates_to or prerequisite_of"})
		return
	}
	for _, id := range []string{body.FromID, body.ToID} {
		concept, err := gh.graph.GetConcept(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if concept == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "concept " + id + " not found"})
			return
		}
	}
	weight := body.Weight
	if weight == 0 {
		weight = 1.0
	}
	if err := gh.graph.AddConceptEdge(c.Request.Context(), body.FromID, body.ToID, body.RelType, weight); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"from_id":  body.FromID,
		"to_id":    body.ToID,
		"rel_type": body.RelType,
		"weight":   weight,
	})
}

func (gh *GraphHandler) DeleteRelationship(c *gin.Context) {
	if !gh.requireGraph(c) {
		return
	}
	relType := c.Param("rel_type")
	if relType != graph.EdgeRelatesTo && relType != graph.EdgePrerequisiteOf {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rel_type must be relates_to or prerequisite_of"})
		return
	}
	if err := gh.graph.DeleteConceptEdge(c.Request.Context(), c.Param("from_id"), c.Param("to_id"), relType); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// Subgraph returns the whole concept graph, or only the concepts extracted
// from one document when doc_id is given.
func (gh *GraphHandler) Subgraph(c *gin.Context) {
	if !gh.requireGraph(c) {
		return
	}
	raw := c.Query("doc_id")
	if raw == "" {
		concepts, edges, err := gh.graph.FullGraph(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"nodes": concepts, "edges": edges})
		return
	}

	docID, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid doc_id"})
		return
	}
	concepts, edges, err := gh.graph.Subgraph(c.Request.Context(), docID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"nodes": concepts, "edges": edges})
}

func (gh *GraphHandler) DocumentConcepts(c *gin.Context) {
	if !gh.requireGraph(c) {
		return
	}
	id, ok := pathUUID(c, "doc_id")
	if !ok {
		return
	}
	items, err := gh.graph.ConceptsForDocument(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

// seedConcepts and seedEdges populate a small demo graph for development.
var seedConcepts = []struct {
	name, description, category string
}{
	{"Python", "General-purpose programming language", "programming"},
	{"Machine Learning", "Field of AI using statistical methods", "science"},
	{"Linear Algebra", "Branch of math dealing with vectors and matrices", "mathematics"},
	{"Neural Networks", "Computing systems inspired by biological neurons", "science"},
	{"Gradient Descent", "Optimization algorithm for minimizing loss", "mathematics"},
	{"Data Structures", "Ways to organize and store data", "programming"},
	{"Calculus", "Study of continuous change", "mathematics"},
	{"TensorFlow", "Open-source ML framework", "programming"},
}

var seedEdges = []struct {
	from, to, relType string
	weight            float64
}{
	{"Linear Algebra", "Machine Learning", graph.EdgePrerequisiteOf, 1.0},
	{"Calculus", "Gradient Descent", graph.EdgePrerequisiteOf, 1.0},
	{"Gradient Descent", "Neural Networks", graph.EdgePrerequisiteOf, 1.0},
	{"Data Structures", "Python", graph.EdgePrerequisiteOf, 1.0},
	{"Machine Learning", "Neural Networks", graph.EdgeRelatesTo, 0.9},
	{"Neural Networks", "TensorFlow", graph.EdgeRelatesTo, 0.8},
	{"Python", "TensorFlow", graph.EdgeRelatesTo, 0.8},
	{"Machine Learning", "Linear Algebra", graph.EdgeRelatesTo, 0.7},
}

func (gh *GraphHandler) Seed(c *gin.Context) {
	if !gh.requireGraph(c) {
		return
	}
	ctx := c.Request.Context()

	ids := make(map[string]string, len(seedConcepts))
	for _, sc := range seedConcepts {
		id, err := gh.graph.UpsertConceptByName(ctx, sc.name, sc.description, sc.category)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		ids[sc.name] = id
	}
	for _, se := range seedEdges {
		if err := gh.graph.AddConceptEdge(ctx, ids[se.from], ids[se.to], se.relType, se.weight); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	concepts, edges, err := gh.graph.FullGraph(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"nodes": concepts, "edges": edges})
}

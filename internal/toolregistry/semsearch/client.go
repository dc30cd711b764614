// Package semsearch implements a toolregistry.Adapter over a MongoDB Atlas
// Vector Search collection, using go.mongodb.org/mongo-driver/v2 — the same
// driver the subscription store uses (internal/subscription/mongo), so the
// embedding corpus and the subscription/delivery state can live in the same
// cluster rather than pulling in a second, narrower vector-DB client purely
// to exercise semantic_search. Grounded on the driver's aggregation-pipeline
// usage style in the teacher/pack's mongo-backed stores.
package semsearch

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/mberto10/researchctl/internal/evidence"
	"github.com/mberto10/researchctl/internal/orcherr"
	"github.com/mberto10/researchctl/internal/toolregistry"
)

// Embedder turns a query string into the vector representation the Atlas
// $vectorSearch stage compares against. Kept as a narrow interface so tests
// can substitute a deterministic fake instead of calling a real embeddings
// API.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Options configures the adapter.
type Options struct {
	Collection  *mongo.Collection
	Embedder    Embedder
	IndexName   string // Atlas Search index name; defaults to "vector_index"
	VectorField string // document field holding the embedding; defaults to "embedding"
	CostHint    float64
}

// Client implements toolregistry.Adapter over an Atlas Vector Search
// collection.
type Client struct {
	coll        *mongo.Collection
	embedder    Embedder
	indexName   string
	vectorField string
	costHint    float64
}

// New builds a Client. Collection and Embedder are required.
func New(opts Options) (*Client, error) {
	if opts.Collection == nil {
		return nil, errors.New("semsearch: collection is required")
	}
	if opts.Embedder == nil {
		return nil, errors.New("semsearch: embedder is required")
	}
	indexName := opts.IndexName
	if indexName == "" {
		indexName = "vector_index"
	}
	field := opts.VectorField
	if field == "" {
		field = "embedding"
	}
	return &Client{coll: opts.Collection, embedder: opts.Embedder, indexName: indexName, vectorField: field, costHint: opts.CostHint}, nil
}

type document struct {
	URL         string    `bson:"url"`
	Title       string    `bson:"title"`
	Snippet     string    `bson:"snippet"`
	PublishedAt time.Time `bson:"published_at"`
}

// Call embeds params["query"] and runs a $vectorSearch aggregation against
// the configured collection, translating the top matches into Evidence.
func (c *Client) Call(ctx context.Context, params map[string]any) ([]evidence.Evidence, *toolregistry.Usage, error) {
	query, _ := params["query"].(string)
	if query == "" {
		return nil, nil, orcherr.New(orcherr.KindInput, "semsearch.call", "query is required")
	}
	limit := int64(10)
	if v, ok := params["max_results"]; ok {
		if n, ok := v.(int); ok && n > 0 {
			limit = int64(n)
		} else if f, ok := v.(float64); ok && f > 0 {
			limit = int64(f)
		}
	}

	vector, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, nil, orcherr.Wrap(orcherr.KindTransient, "semsearch.embed", err)
	}

	pipeline := bson.A{
		bson.D{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: c.indexName},
			{Key: "path", Value: c.vectorField},
			{Key: "queryVector", Value: vector},
			{Key: "numCandidates", Value: limit * 10},
			{Key: "limit", Value: limit},
		}}},
	}
	cur, err := c.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, nil, orcherr.Wrap(orcherr.KindTransient, "semsearch.aggregate", err)
	}
	defer cur.Close(ctx)

	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, nil, orcherr.Wrap(orcherr.KindPermanent, "semsearch.decode", err)
	}

	out := make([]evidence.Evidence, 0, len(docs))
	for _, d := range docs {
		var published *time.Time
		if !d.PublishedAt.IsZero() {
			t := d.PublishedAt
			published = &t
		}
		out = append(out, evidence.Evidence{
			URL:         d.URL,
			Title:       d.Title,
			Snippet:     d.Snippet,
			PublishedAt: published,
			SourceTool:  "semsearch",
		})
	}
	return out, nil, nil
}

// Capabilities reports CapabilitySemanticSearch.
func (c *Client) Capabilities() []toolregistry.Capability {
	return []toolregistry.Capability{toolregistry.CapabilitySemanticSearch}
}

// CostHint returns the configured per-call cost bound.
func (c *Client) CostHint() float64 { return c.costHint }

// Key identifies this adapter.
func (c *Client) Key() string { return "semsearch" }

// ParamsSchema requires a non-empty string "query" and tolerates an
// optional integer "max_results".
func (c *Client) ParamsSchema() []byte { return paramsSchema }

var paramsSchema = []byte(`{
	"type": "object",
	"properties": {
		"query": {"type": "string", "minLength": 1},
		"max_results": {"type": "integer", "minimum": 1}
	},
	"required": ["query"]
}`)

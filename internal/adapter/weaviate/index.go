package weaviate

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"khabar/internal/vector"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// idNamespace derives stable object ids from chunk ids, so re-adding a
// chunk addresses the same Weaviate object.
var idNamespace = uuid.MustParse("3f1c5a3e-8f7b-4c43-9a52-6b6861626172")

func ObjectID(chunkID uint64) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(idNamespace, []byte(strconv.FormatUint(chunkID, 10))).String())
}

// Index is a vector.Index backed by a Weaviate class. Weaviate persists on
// every write, so Flush is a no-op.
type Index struct {
	client *weaviate.Client
	class  string
	logger *slog.Logger

	mu  sync.Mutex
	dim int
}

var _ vector.Index = (*Index)(nil)

// batchSize caps objects per batch insert and ids per existence lookup.
const batchSize = 500

func NewIndex(client *weaviate.Client, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{client: client, class: vector.ClassName, logger: logger}
}

func (i *Index) EnsureSchema(ctx context.Context) error {
	return vector.EnsureSchema(ctx, &schemaClient{client: i.client})
}

func (i *Index) Add(ctx context.Context, ids []uint64, vectors [][]float32) ([]uint64, error) {
	if len(ids) != len(vectors) {
		return nil, fmt.Errorf("%w: %d ids, %d vectors", vector.ErrLengthMismatch, len(ids), len(vectors))
	}
	if len(ids) == 0 {
		return nil, nil
	}

	existing, err := i.existing(ctx, ids)
	if err != nil {
		return nil, err
	}

	var pending []uint64
	var objects []*models.Object
	for n, id := range ids {
		if existing[id] {
			continue
		}
		if err := i.checkDim(len(vectors[n])); err != nil {
			return nil, fmt.Errorf("id %d: %w", id, err)
		}
		existing[id] = true
		pending = append(pending, id)
		objects = append(objects, &models.Object{
			Class:      i.class,
			ID:         ObjectID(id),
			Properties: map[string]interface{}{"chunkId": id},
			Vector:     vector.Normalize(vectors[n]),
		})
	}
	if len(objects) == 0 {
		return nil, nil
	}

	var added []uint64
	for start := 0; start < len(objects); start += batchSize {
		end := min(start+batchSize, len(objects))
		landed, err := i.insert(ctx, pending[start:end], objects[start:end])
		added = append(added, landed...)
		if err != nil {
			// roll back what did land so the caller sees all-or-nothing
			if rerr := i.Remove(ctx, added); rerr != nil {
				i.logger.ErrorContext(ctx, "rollback after failed batch", "error", rerr, "objects", len(added))
			}
			return nil, err
		}
	}
	return added, nil
}

// insert sends one batch and returns the ids that were stored, along with
// the first per-object error if any.
func (i *Index) insert(ctx context.Context, ids []uint64, objects []*models.Object) ([]uint64, error) {
	resp, err := i.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("batch insert: %w", err)
	}
	failed := make(map[strfmt.UUID]string)
	for _, r := range resp {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			failed[r.ID] = r.Result.Errors.Error[0].Message
		}
	}
	if len(failed) == 0 {
		return ids, nil
	}
	var landed []uint64
	var msg string
	for _, id := range ids {
		if m, ok := failed[ObjectID(id)]; ok {
			if msg == "" {
				msg = m
			}
			continue
		}
		landed = append(landed, id)
	}
	if msg == "" {
		// errors reported without a matching id; assume nothing landed
		return nil, fmt.Errorf("batch insert: %d objects failed", len(failed))
	}
	return landed, fmt.Errorf("batch insert: %s", msg)
}

func (i *Index) checkDim(d int) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.dim == 0 {
		i.dim = d
	}
	if d != i.dim || d == 0 {
		return fmt.Errorf("%w: got %d, index has %d", vector.ErrDimensionMismatch, d, i.dim)
	}
	return nil
}

// existing returns which of ids already have an object in the class.
// Lookups go out in chunks of batchSize.
func (i *Index) existing(ctx context.Context, ids []uint64) (map[uint64]bool, error) {
	found := make(map[uint64]bool, len(ids))
	for start := 0; start < len(ids); start += batchSize {
		chunk := ids[start:min(start+batchSize, len(ids))]
		operands := make([]*filters.WhereBuilder, 0, len(chunk))
		for _, id := range chunk {
			operands = append(operands, filters.Where().
				WithPath([]string{"chunkId"}).
				WithOperator(filters.Equal).
				WithValueInt(int64(id)))
		}

		res, err := i.client.GraphQL().Get().
			WithClassName(i.class).
			WithWhere(filters.Where().WithOperator(filters.Or).WithOperands(operands)).
			WithLimit(len(chunk)).
			WithFields(graphql.Field{Name: "chunkId"}).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("lookup existing: %w", err)
		}
		if len(res.Errors) > 0 {
			return nil, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
		}
		for _, props := range i.objects(res.Data) {
			if id, ok := chunkID(props); ok {
				found[id] = true
			}
		}
	}
	return found, nil
}

func (i *Index) Remove(ctx context.Context, ids []uint64) error {
	for _, id := range ids {
		err := i.client.Data().Deleter().
			WithClassName(i.class).
			WithID(ObjectID(id).String()).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("delete chunk %d: %w", id, err)
		}
	}
	return nil
}

func (i *Index) Flush(ctx context.Context) error {
	return nil
}

func (i *Index) Search(ctx context.Context, query []float32, k int) ([]vector.Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	nearVector := i.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector.Normalize(query))

	fields := []graphql.Field{
		{Name: "chunkId"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	res, err := i.client.GraphQL().Get().
		WithClassName(i.class).
		WithNearVector(nearVector).
		WithLimit(k).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}

	var hits []vector.Hit
	for _, props := range i.objects(res.Data) {
		id, ok := chunkID(props)
		if !ok {
			continue
		}
		hit := vector.Hit{ID: id}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			if d, ok := additional["distance"].(float64); ok {
				// cosine distance
				hit.Score = float32(1 - d)
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (i *Index) Stats(ctx context.Context) (vector.Stats, error) {
	i.mu.Lock()
	st := vector.Stats{Flavor: vector.FlavorWeaviate, Dim: i.dim}
	i.mu.Unlock()

	res, err := i.client.GraphQL().Aggregate().
		WithClassName(i.class).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return st, fmt.Errorf("aggregate: %w", err)
	}
	if len(res.Errors) > 0 {
		return st, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}
	if agg, ok := res.Data["Aggregate"].(map[string]interface{}); ok {
		if rows, ok := agg[i.class].([]interface{}); ok && len(rows) > 0 {
			if row, ok := rows[0].(map[string]interface{}); ok {
				if meta, ok := row["meta"].(map[string]interface{}); ok {
					if count, ok := meta["count"].(float64); ok {
						st.Vectors = int(count)
					}
				}
			}
		}
	}
	if st.Vectors == 0 {
		return st, nil
	}

	top, err := i.client.GraphQL().Get().
		WithClassName(i.class).
		WithSort(graphql.Sort{Path: []string{"chunkId"}, Order: graphql.Desc}).
		WithLimit(1).
		WithFields(graphql.Field{Name: "chunkId"}).
		Do(ctx)
	if err != nil {
		return st, fmt.Errorf("max chunk id: %w", err)
	}
	for _, props := range i.objects(top.Data) {
		if id, ok := chunkID(props); ok {
			st.MaxID = id
		}
	}
	return st, nil
}

func (i *Index) Close() error {
	return nil
}

func (i *Index) objects(data map[string]models.JSONObject) []map[string]interface{} {
	var out []map[string]interface{}
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	rows, ok := get[i.class].([]interface{})
	if !ok {
		return nil
	}
	for _, r := range rows {
		if props, ok := r.(map[string]interface{}); ok {
			out = append(out, props)
		}
	}
	return out
}

func chunkID(props map[string]interface{}) (uint64, bool) {
	v, ok := props["chunkId"].(float64)
	if !ok || v < 0 {
		return 0, false
	}
	return uint64(v), true
}

type schemaClient struct {
	client *weaviate.Client
}

func (a *schemaClient) ClassExists(ctx context.Context, className string) (bool, error) {
	return a.client.Schema().ClassExistenceChecker().WithClassName(className).Do(ctx)
}

func (a *schemaClient) CreateClass(ctx context.Context, class *models.Class) error {
	return a.client.Schema().ClassCreator().WithClass(class).Do(ctx)
}

func (a *schemaClient) GetClass(ctx context.Context, className string) (*models.Class, error) {
	return a.client.Schema().ClassGetter().WithClassName(className).Do(ctx)
}

func (a *schemaClient) AddProperty(ctx context.Context, className string, property *models.Property) error {
	return a.client.Schema().PropertyCreator().WithClassName(className).WithProperty(property).Do(ctx)
}

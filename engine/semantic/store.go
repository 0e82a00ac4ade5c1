// Package semantic is the Qdrant side of the vector store. VectorStore
// implements vectorstore.Session over the Qdrant gRPC API; Dialer opens one.
package semantic

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/WessleyAI/ragqa/engine/domain"
	"github.com/WessleyAI/ragqa/engine/vectorstore"
)

// pointsAPI is the subset of pb.PointsClient the store uses.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	CreateFieldIndex(ctx context.Context, in *pb.CreateFieldIndexCollection, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
}

// collectionsAPI is the subset of pb.CollectionsClient the store uses.
type collectionsAPI interface {
	Get(ctx context.Context, in *pb.GetCollectionInfoRequest, opts ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error)
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Update(ctx context.Context, in *pb.UpdateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	CollectionExists(ctx context.Context, in *pb.CollectionExistsRequest, opts ...grpc.CallOption) (*pb.CollectionExistsResponse, error)
}

// VectorStore is one open Qdrant session.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	newID       func() string
}

var _ vectorstore.Session = (*VectorStore)(nil)

func newStore(conn *grpc.ClientConn) *VectorStore {
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		newID:       uuid.NewString,
	}
}

// NewWithClients builds a VectorStore over pre-made clients. Used in tests.
func NewWithClients(points pointsAPI, collections collectionsAPI) *VectorStore {
	return &VectorStore{points: points, collections: collections, newID: uuid.NewString}
}

// Close closes the underlying gRPC connection, if any.
func (v *VectorStore) Close() error {
	if v.conn == nil {
		return nil
	}
	return v.conn.Close()
}

// CollectionExists reports whether name exists.
func (v *VectorStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	resp, err := v.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: name})
	if err != nil {
		return false, fmt.Errorf("semantic: collection exists %s: %w", name, err)
	}
	return resp.GetResult().GetExists(), nil
}

// CreateCollection creates the QA collection: an Euclid-distance vector of
// the schema width plus a keyword payload index on instruction.
// Qdrant assigns no ids itself, so Insert generates them.
func (v *VectorStore) CreateCollection(ctx context.Context, schema vectorstore.Schema) error {
	_, err := v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: schema.Name,
		VectorsConfig: pb.NewVectorsConfig(&pb.VectorParams{
			Size:     uint64(schema.Dimensions),
			Distance: pb.Distance_Euclid,
		}),
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", schema.Name, wrapNotFound(err))
	}
	_, err = v.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
		CollectionName: schema.Name,
		Wait:           pb.PtrOf(true),
		FieldName:      domain.FieldInstruction,
		FieldType:      pb.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("semantic: index %s.%s: %w", schema.Name, domain.FieldInstruction, err)
	}
	return nil
}

// Insert upserts records as new points with random UUID ids.
func (v *VectorStore) Insert(ctx context.Context, name string, records []domain.QARecord) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		points[i] = &pb.PointStruct{
			Id:      pb.NewID(v.newID()),
			Vectors: pb.NewVectorsDense(r.Embedding),
			Payload: qaPayload(r),
		}
	}
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: name,
		Wait:           pb.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points into %s: %w", len(records), name, wrapNotFound(err))
	}
	return nil
}

// BuildIndex switches the collection to the requested index. A FLAT index
// disables the HNSW graph (m=0) so every search is exhaustive.
func (v *VectorStore) BuildIndex(ctx context.Context, name string, spec vectorstore.IndexSpec) error {
	if spec.Metric != "L2" {
		return fmt.Errorf("semantic: unsupported metric %q", spec.Metric)
	}
	req := &pb.UpdateCollection{CollectionName: name}
	switch spec.Type {
	case "FLAT":
		req.HnswConfig = &pb.HnswConfigDiff{M: pb.PtrOf(uint64(0))}
	case "HNSW":
		req.HnswConfig = &pb.HnswConfigDiff{M: pb.PtrOf(uint64(16))}
	default:
		return fmt.Errorf("semantic: unsupported index type %q", spec.Type)
	}
	if _, err := v.collections.Update(ctx, req); err != nil {
		return fmt.Errorf("semantic: build %s index on %s: %w", spec.Type, name, wrapNotFound(err))
	}
	return nil
}

// Load checks the collection is servable. Qdrant keeps collections resident,
// so this only fails for a missing or red collection.
func (v *VectorStore) Load(ctx context.Context, name string) error {
	resp, err := v.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name})
	if err != nil {
		return fmt.Errorf("semantic: load %s: %w", name, wrapNotFound(err))
	}
	if st := resp.GetResult().GetStatus(); st == pb.CollectionStatus_Red {
		return fmt.Errorf("semantic: load %s: collection status %s", name, st)
	}
	return nil
}

// Release is a no-op for Qdrant.
func (v *VectorStore) Release(context.Context, string) error { return nil }

// Search runs an exact top-limit search. Euclid scores are distances, so
// smaller is closer; results carry them squared.
func (v *VectorStore) Search(ctx context.Context, name string, vector []float32, limit int) ([]domain.SearchResult, error) {
	resp, err := v.points.Search(ctx, &pb.SearchPoints{
		CollectionName: name,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload:    pb.NewWithPayloadInclude(domain.FieldInstruction, domain.FieldOutput),
		Params:         &pb.SearchParams{Exact: pb.PtrOf(true)},
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: search %s: %w", name, wrapNotFound(err))
	}
	hits := resp.GetResult()
	out := make([]domain.SearchResult, len(hits))
	for i, h := range hits {
		out[i] = searchResult(h)
	}
	return out, nil
}

// ListCollections returns every collection name.
func (v *VectorStore) ListCollections(ctx context.Context) ([]string, error) {
	resp, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return nil, fmt.Errorf("semantic: list collections: %w", err)
	}
	names := make([]string, 0, len(resp.GetCollections()))
	for _, c := range resp.GetCollections() {
		names = append(names, c.GetName())
	}
	return names, nil
}

// DropCollection deletes name and all its points.
func (v *VectorStore) DropCollection(ctx context.Context, name string) error {
	if _, err := v.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: name}); err != nil {
		return fmt.Errorf("semantic: delete collection %s: %w", name, err)
	}
	return nil
}

// wrapNotFound maps a gRPC NotFound onto domain.ErrCollectionNotFound so the
// coordinator can mark its handle stale.
func wrapNotFound(err error) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, status.Convert(err).Message())
	}
	return err
}

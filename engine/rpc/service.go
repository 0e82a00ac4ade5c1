// Package rpc exposes the retrieval engine as the DataManagement gRPC
// service: prompt lookups and file-based bulk loads.
package rpc

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/WessleyAI/ragqa/engine/domain"
	"github.com/WessleyAI/ragqa/engine/ingest"
)

const (
	ServiceName        = "ragqa.v1.DataManagement"
	MethodGetByPrompt  = "/ragqa.v1.DataManagement/GetByPrompt"
	MethodUpdateByPath = "/ragqa.v1.DataManagement/UpdateByPath"
)

// Fixed answers. Clients compare against these strings.
const (
	AnswerNoMatch     = "no match found"
	AnswerStored      = "stored successfully"
	AnswerStoreFailed = "store failed"
	AnswerUnsupported = "store failed: unsupported file format"
)

// Looker answers prompts.
type Looker interface {
	Lookup(ctx context.Context, prompt string) domain.LookupResult
}

// Ingester loads a file of records.
type Ingester interface {
	IngestFile(ctx context.Context, path string) ingest.Report
}

// DataManagementServer is the server side of the service. Both calls carry
// a single string in and out.
type DataManagementServer interface {
	GetByPrompt(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	UpdateByPath(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
}

// ServiceDesc registers DataManagementServer on a grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DataManagementServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetByPrompt", Handler: getByPromptHandler},
		{MethodName: "UpdateByPath", Handler: updateByPathHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ragqa/v1/data_management.proto",
}

func getByPromptHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DataManagementServer).GetByPrompt(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodGetByPrompt}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DataManagementServer).GetByPrompt(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func updateByPathHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DataManagementServer).UpdateByPath(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodUpdateByPath}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DataManagementServer).UpdateByPath(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Service implements DataManagementServer on top of the coordinator and the
// ingest pipeline.
type Service struct {
	looker   Looker
	ingester Ingester
	log      *slog.Logger
}

var _ DataManagementServer = (*Service)(nil)

// NewService creates a Service. A nil logger uses slog.Default().
func NewService(looker Looker, ingester Ingester, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{looker: looker, ingester: ingester, log: logger}
}

// GetByPrompt returns the stored answer nearest to the prompt. Misses and
// backend failures both read as AnswerNoMatch to the caller.
func (s *Service) GetByPrompt(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	res := s.looker.Lookup(ctx, req.GetValue())
	if res.OK() {
		return wrapperspb.String(res.Answer), nil
	}
	if res.Kind == domain.LookupInternalError {
		s.log.Warn("rpc: lookup failed", "error", res.Err)
	}
	return wrapperspb.String(AnswerNoMatch), nil
}

// UpdateByPath ingests the file at the given server-side path. The outcome
// is reported in the answer text, never as a transport error.
func (s *Service) UpdateByPath(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	rep := s.ingester.IngestFile(ctx, req.GetValue())
	switch rep.Outcome {
	case ingest.Stored:
		return wrapperspb.String(AnswerStored), nil
	case ingest.FormatMismatch:
		return wrapperspb.String(AnswerUnsupported), nil
	default:
		return wrapperspb.String(AnswerStoreFailed), nil
	}
}

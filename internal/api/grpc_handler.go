package api

import (
	"context"
	"encoding/json"
	"errors"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"metal-catalog-service/internal/domain"
	"metal-catalog-service/internal/recount"
	"metal-catalog-service/internal/store"
)

// MaintenanceServiceName is the fully qualified gRPC service name.
const MaintenanceServiceName = "catalog.v1.CatalogMaintenance"

// MaintenanceServer is the server API of the catalog maintenance service.
type MaintenanceServer interface {
	RecountCategories(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	GetCategoryTree(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// GRPCHandler implements MaintenanceServer.
type GRPCHandler struct {
	categoryStore store.CategoryStorer
	recounter     Recounter
	treeCache     CategoryTreeCache
	log           *zap.SugaredLogger
}

// NewGRPCHandler creates a new GRPCHandler. A nil cache disables caching.
func NewGRPCHandler(cs store.CategoryStorer, rc Recounter, cache CategoryTreeCache, log *zap.SugaredLogger) *GRPCHandler {
	if cache == nil {
		cache = noopTreeCache{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &GRPCHandler{categoryStore: cs, recounter: rc, treeCache: cache, log: log}
}

// RecountCategories recomputes stored category product totals and returns the run summary.
func (s *GRPCHandler) RecountCategories(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.recounter == nil {
		return nil, status.Error(codes.Unavailable, "recount is not available")
	}

	summary, err := s.recounter.Run(ctx)
	if err != nil {
		s.log.Errorw("category recount aborted", "error", err)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, status.FromContextError(err).Err()
		}
		return nil, status.Error(codes.Internal, "failed to recount categories")
	}
	if summary.Updated > 0 {
		s.treeCache.Invalidate(ctx)
	}

	out, err := toStruct(newRecountResponse(summary))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode summary: %v", err)
	}
	return out, nil
}

// GetCategoryTree returns the navigation tree for the "lang" field (ru or kk, default ru).
func (s *GRPCHandler) GetCategoryTree(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	locale := domain.LocaleRU
	if v, ok := req.GetFields()["lang"]; ok {
		lang, isString := v.GetKind().(*structpb.Value_StringValue)
		if !isString {
			return nil, status.Error(codes.InvalidArgument, "lang must be a string")
		}
		if lang.StringValue != "" {
			locale = lang.StringValue
		}
	}
	if locale != domain.LocaleRU && locale != domain.LocaleKK {
		return nil, status.Errorf(codes.InvalidArgument, "unsupported lang %q, allowed: ru, kk", locale)
	}

	body, _, err := renderCategoryTree(ctx, s.categoryStore, s.treeCache, locale)
	if err != nil {
		s.log.Errorw("category tree render failed", "locale", locale, "error", err)
		return nil, status.Error(codes.Internal, "failed to retrieve category tree")
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, status.Errorf(codes.Internal, "decode category tree: %v", err)
	}
	out, err := structpb.NewStruct(payload)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode category tree: %v", err)
	}
	return out, nil
}

// toStruct converts a JSON-serializable value into a protobuf Struct.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// --- Service registration ---

func recountCategoriesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MaintenanceServer).RecountCategories(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + MaintenanceServiceName + "/RecountCategories"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MaintenanceServer).RecountCategories(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func getCategoryTreeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MaintenanceServer).GetCategoryTree(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + MaintenanceServiceName + "/GetCategoryTree"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MaintenanceServer).GetCategoryTree(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// MaintenanceServiceDesc describes the maintenance service using well-known message types.
var MaintenanceServiceDesc = grpc.ServiceDesc{
	ServiceName: MaintenanceServiceName,
	HandlerType: (*MaintenanceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RecountCategories", Handler: recountCategoriesHandler},
		{MethodName: "GetCategoryTree", Handler: getCategoryTreeHandler},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterMaintenanceServer registers srv on s.
func RegisterMaintenanceServer(s grpc.ServiceRegistrar, srv MaintenanceServer) {
	s.RegisterService(&MaintenanceServiceDesc, srv)
}

// MaintenanceClient calls the maintenance service.
type MaintenanceClient struct {
	cc grpc.ClientConnInterface
}

// NewMaintenanceClient creates a client on cc.
func NewMaintenanceClient(cc grpc.ClientConnInterface) *MaintenanceClient {
	return &MaintenanceClient{cc: cc}
}

func (c *MaintenanceClient) RecountCategories(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+MaintenanceServiceName+"/RecountCategories", &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *MaintenanceClient) GetCategoryTree(ctx context.Context, lang string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{"lang": lang})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+MaintenanceServiceName+"/GetCategoryTree", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// --- Interceptors ---

// UnaryLoggingInterceptor logs every unary call and turns handler panics into Internal errors.
func UnaryLoggingInterceptor(log *zap.SugaredLogger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		start := time.Now()
		defer func() {
			if p := recover(); p != nil {
				log.Errorw("grpc handler panicked", "method", info.FullMethod, "panic", p, "stack", string(debug.Stack()))
				err = status.Error(codes.Internal, "internal error")
			}
			code := status.Code(err)
			fields := []any{"method", info.FullMethod, "code", code.String(), "duration", time.Since(start)}
			if code != codes.OK {
				log.Warnw("grpc request", append(fields, "error", err)...)
				return
			}
			log.Infow("grpc request", fields...)
		}()
		return handler(ctx, req)
	}
}

var (
	_ MaintenanceServer = (*GRPCHandler)(nil)
	_ Recounter         = (*recount.Aggregator)(nil)
)

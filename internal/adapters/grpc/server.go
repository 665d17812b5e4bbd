package grpc

import (
	"context"
	"encoding/json"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/viralforge/mesh/services/platform-ops/M72-workitem-service/internal/application"
	"github.com/viralforge/mesh/services/platform-ops/M72-workitem-service/internal/domain"
)

type WorkItemInternalService interface {
	GetWorkItem(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TriggerRelay(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetBacklog(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

type WorkItemInternalServer struct {
	service *application.Service
	relay   *application.RelayService
}

func NewWorkItemInternalServer(service *application.Service, relay *application.RelayService) *WorkItemInternalServer {
	return &WorkItemInternalServer{service: service, relay: relay}
}

func Register(server grpc.ServiceRegistrar, svc WorkItemInternalService) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: "viralforge.workitem.v1.WorkItemInternalService",
		HandlerType: (*WorkItemInternalService)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "GetWorkItem",
				Handler:    getWorkItemHandler(svc),
			},
			{
				MethodName: "TriggerRelay",
				Handler:    triggerRelayHandler(svc),
			},
			{
				MethodName: "GetBacklog",
				Handler:    getBacklogHandler(svc),
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "mesh/contracts/proto/workitem/v1/workitem_internal.proto",
	}, svc)
}

func (s *WorkItemInternalServer) GetWorkItem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	tenantID := req.GetFields()["tenant_id"].GetStringValue()
	workItemID := req.GetFields()["workitem_id"].GetStringValue()
	if tenantID == "" || workItemID == "" {
		return nil, status.Error(codes.InvalidArgument, "tenant_id and workitem_id are required")
	}

	view, err := s.service.Get(ctx, tenantID, workItemID)
	if err != nil {
		if errors.Is(err, domain.ErrWorkItemNotFound) {
			return nil, status.Error(codes.NotFound, "work item not found")
		}
		return nil, status.Errorf(codes.Internal, "get work item: %v", err)
	}
	return toStruct(view)
}

func (s *WorkItemInternalServer) TriggerRelay(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	limit := int(req.GetFields()["limit"].GetNumberValue())
	if limit <= 0 {
		limit = 100
	}

	report, err := s.relay.PublishPendingOnce(ctx, limit)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "relay pass: %v", err)
	}
	return toStruct(report)
}

func (s *WorkItemInternalServer) GetBacklog(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	report, err := s.relay.Backlog(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "read backlog: %v", err)
	}
	return toStruct(report)
}

// toStruct renders a JSON-taggable value as a protobuf Struct so internal
// callers do not need generated message types.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	resp, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func getWorkItemHandler(svc WorkItemInternalService) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &structpb.Struct{}
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return svc.GetWorkItem(ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/viralforge.workitem.v1.WorkItemInternalService/GetWorkItem",
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*structpb.Struct)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return svc.GetWorkItem(ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}

func triggerRelayHandler(svc WorkItemInternalService) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &structpb.Struct{}
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return svc.TriggerRelay(ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/viralforge.workitem.v1.WorkItemInternalService/TriggerRelay",
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*structpb.Struct)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return svc.TriggerRelay(ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}

func getBacklogHandler(svc WorkItemInternalService) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &emptypb.Empty{}
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return svc.GetBacklog(ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/viralforge.workitem.v1.WorkItemInternalService/GetBacklog",
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*emptypb.Empty)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return svc.GetBacklog(ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}

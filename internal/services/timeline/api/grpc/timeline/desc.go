// Package timeline exposes the timeline engine over gRPC.
//
// The service speaks google.protobuf.Struct request and response bodies, so
// it needs no generated stubs. ServiceDesc and Client follow the shape
// protoc-gen-go-grpc would produce for an equivalent .proto file.
package timeline

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "residency.timeline.v1.TimelineService"

// Method names.
const (
	MethodGetTimeline          = "GetTimeline"
	MethodGetConflicts         = "GetConflicts"
	MethodBatchGetTimelines    = "BatchGetTimelines"
	MethodListCurrentOccupants = "ListCurrentOccupants"
	MethodListResidents        = "ListResidents"
	MethodListEvents           = "ListEvents"
)

// TimelineServiceServer is the server API for the timeline service.
type TimelineServiceServer interface {
	GetTimeline(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetConflicts(context.Context, *structpb.Struct) (*structpb.Struct, error)
	BatchGetTimelines(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListCurrentOccupants(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListResidents(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListEvents(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(TimelineServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(TimelineServiceServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(server, ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc is the grpc.ServiceDesc for TimelineService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TimelineServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodGetTimeline, Handler: unaryHandler(MethodGetTimeline, TimelineServiceServer.GetTimeline)},
		{MethodName: MethodGetConflicts, Handler: unaryHandler(MethodGetConflicts, TimelineServiceServer.GetConflicts)},
		{MethodName: MethodBatchGetTimelines, Handler: unaryHandler(MethodBatchGetTimelines, TimelineServiceServer.BatchGetTimelines)},
		{MethodName: MethodListCurrentOccupants, Handler: unaryHandler(MethodListCurrentOccupants, TimelineServiceServer.ListCurrentOccupants)},
		{MethodName: MethodListResidents, Handler: unaryHandler(MethodListResidents, TimelineServiceServer.ListResidents)},
		{MethodName: MethodListEvents, Handler: unaryHandler(MethodListEvents, TimelineServiceServer.ListEvents)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "residency/timeline/v1/timeline.proto",
}

// RegisterTimelineServiceServer registers srv on s.
func RegisterTimelineServiceServer(s grpc.ServiceRegistrar, srv TimelineServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls TimelineService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a client connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetTimeline(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodGetTimeline, in, opts...)
}

func (c *Client) GetConflicts(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodGetConflicts, in, opts...)
}

func (c *Client) BatchGetTimelines(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodBatchGetTimelines, in, opts...)
}

func (c *Client) ListCurrentOccupants(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodListCurrentOccupants, in, opts...)
}

func (c *Client) ListResidents(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodListResidents, in, opts...)
}

func (c *Client) ListEvents(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodListEvents, in, opts...)
}

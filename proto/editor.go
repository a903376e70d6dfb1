// Package proto describes the collage.v1.CollageEditor gRPC service.
//
// Messages are protobuf well-known types, so the service needs no generated
// code: the descriptor, server registration and client below take the place
// of protoc-gen-go-grpc output.
package proto

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "collage.v1.CollageEditor"

const (
	CollageEditor_AddPhotos_FullMethodName = "/" + ServiceName + "/AddPhotos"
	CollageEditor_Clear_FullMethodName     = "/" + ServiceName + "/Clear"
	CollageEditor_Save_FullMethodName      = "/" + ServiceName + "/Save"
	CollageEditor_State_FullMethodName     = "/" + ServiceName + "/State"
	CollageEditor_Preview_FullMethodName   = "/" + ServiceName + "/Preview"
	CollageEditor_ListSaved_FullMethodName = "/" + ServiceName + "/ListSaved"
	CollageEditor_LoadSaved_FullMethodName = "/" + ServiceName + "/LoadSaved"
)

// CollageEditorServer is the server API for the CollageEditor service.
type CollageEditorServer interface {
	// AddPhotos runs one selection session over the streamed encoded images.
	// The end of the client stream completes the session.
	AddPhotos(CollageEditor_AddPhotosServer) error
	Clear(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Save(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	State(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Preview(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error)
	ListSaved(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	LoadSaved(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
}

type CollageEditor_AddPhotosServer interface {
	Recv() (*wrapperspb.BytesValue, error)
	SendAndClose(*structpb.Struct) error
	grpc.ServerStream
}

type addPhotosServer struct {
	grpc.ServerStream
}

func (s *addPhotosServer) Recv() (*wrapperspb.BytesValue, error) {
	m := new(wrapperspb.BytesValue)
	if err := s.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *addPhotosServer) SendAndClose(m *structpb.Struct) error {
	return s.SendMsg(m)
}

func unary[Req, Resp any](name string, call func(CollageEditorServer, context.Context, *Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(CollageEditorServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

var CollageEditor_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CollageEditorServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Clear", CollageEditorServer.Clear),
		unary("Save", CollageEditorServer.Save),
		unary("State", CollageEditorServer.State),
		unary("Preview", CollageEditorServer.Preview),
		unary("ListSaved", CollageEditorServer.ListSaved),
		unary("LoadSaved", CollageEditorServer.LoadSaved),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName: "AddPhotos",
			Handler: func(srv any, stream grpc.ServerStream) error {
				return srv.(CollageEditorServer).AddPhotos(&addPhotosServer{stream})
			},
			ClientStreams: true,
		},
	},
	Metadata: "collage/v1/editor.proto",
}

func RegisterCollageEditorServer(s grpc.ServiceRegistrar, srv CollageEditorServer) {
	s.RegisterService(&CollageEditor_ServiceDesc, srv)
}

// CollageEditorClient is the client API for the CollageEditor service.
type CollageEditorClient struct {
	cc grpc.ClientConnInterface
}

func NewCollageEditorClient(cc grpc.ClientConnInterface) *CollageEditorClient {
	return &CollageEditorClient{cc: cc}
}

type CollageEditor_AddPhotosClient interface {
	Send(*wrapperspb.BytesValue) error
	CloseAndRecv() (*structpb.Struct, error)
	grpc.ClientStream
}

type addPhotosClient struct {
	grpc.ClientStream
}

func (c *addPhotosClient) Send(m *wrapperspb.BytesValue) error {
	return c.SendMsg(m)
}

func (c *addPhotosClient) CloseAndRecv() (*structpb.Struct, error) {
	if err := c.CloseSend(); err != nil {
		return nil, err
	}
	m := new(structpb.Struct)
	if err := c.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *CollageEditorClient) AddPhotos(ctx context.Context, opts ...grpc.CallOption) (CollageEditor_AddPhotosClient, error) {
	stream, err := c.cc.NewStream(ctx, &CollageEditor_ServiceDesc.Streams[0], CollageEditor_AddPhotos_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	return &addPhotosClient{stream}, nil
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CollageEditorClient) Clear(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, CollageEditor_Clear_FullMethodName, in, opts)
}

func (c *CollageEditorClient) Save(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	return invoke[wrapperspb.StringValue](ctx, c.cc, CollageEditor_Save_FullMethodName, in, opts)
}

func (c *CollageEditorClient) State(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, CollageEditor_State_FullMethodName, in, opts)
}

func (c *CollageEditorClient) Preview(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	return invoke[wrapperspb.BytesValue](ctx, c.cc, CollageEditor_Preview_FullMethodName, in, opts)
}

func (c *CollageEditorClient) ListSaved(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	return invoke[structpb.ListValue](ctx, c.cc, CollageEditor_ListSaved_FullMethodName, in, opts)
}

func (c *CollageEditorClient) LoadSaved(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	return invoke[wrapperspb.BytesValue](ctx, c.cc, CollageEditor_LoadSaved_FullMethodName, in, opts)
}

package api

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "ntfsbridge.FileService"

// FileServiceServer is the server-side contract of the bridge service.
type FileServiceServer interface {
	ListVolumes(context.Context, *ListVolumesRequest) (*ListVolumesResponse, error)
	OpenVolume(context.Context, *OpenVolumeRequest) (*OpenVolumeResponse, error)
	Open(context.Context, *OpenRequest) (*OpenResponse, error)
	Close(context.Context, *CloseRequest) (*StatusResponse, error)
	Delete(context.Context, *DeleteRequest) (*StatusResponse, error)
	Read(context.Context, *ReadRequest) (*ReadResponse, error)
	Write(context.Context, *WriteRequest) (*WriteResponse, error)
	GetPosition(context.Context, *GetPositionRequest) (*GetPositionResponse, error)
	SetPosition(context.Context, *SetPositionRequest) (*StatusResponse, error)
	GetInfo(context.Context, *GetInfoRequest) (*GetInfoResponse, error)
	SetInfo(context.Context, *SetInfoRequest) (*StatusResponse, error)
	Flush(context.Context, *FlushRequest) (*StatusResponse, error)
}

// RegisterFileServiceServer registers srv with a gRPC server.
func RegisterFileServiceServer(s grpc.ServiceRegistrar, srv FileServiceServer) {
	s.RegisterService(&fileServiceDesc, srv)
}

func unaryHandler[Req any, Resp any](
	method string,
	call func(FileServiceServer, context.Context, *Req) (*Resp, error),
) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error,
		interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(FileServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(FileServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var fileServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FileServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListVolumes", Handler: unaryHandler("ListVolumes", FileServiceServer.ListVolumes)},
		{MethodName: "OpenVolume", Handler: unaryHandler("OpenVolume", FileServiceServer.OpenVolume)},
		{MethodName: "Open", Handler: unaryHandler("Open", FileServiceServer.Open)},
		{MethodName: "Close", Handler: unaryHandler("Close", FileServiceServer.Close)},
		{MethodName: "Delete", Handler: unaryHandler("Delete", FileServiceServer.Delete)},
		{MethodName: "Read", Handler: unaryHandler("Read", FileServiceServer.Read)},
		{MethodName: "Write", Handler: unaryHandler("Write", FileServiceServer.Write)},
		{MethodName: "GetPosition", Handler: unaryHandler("GetPosition", FileServiceServer.GetPosition)},
		{MethodName: "SetPosition", Handler: unaryHandler("SetPosition", FileServiceServer.SetPosition)},
		{MethodName: "GetInfo", Handler: unaryHandler("GetInfo", FileServiceServer.GetInfo)},
		{MethodName: "SetInfo", Handler: unaryHandler("SetInfo", FileServiceServer.SetInfo)},
		{MethodName: "Flush", Handler: unaryHandler("Flush", FileServiceServer.Flush)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ntfsbridge",
}

// FileServiceClient is the client-side binding. All calls are encoded
// with the CBOR codec registered by this package.
type FileServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewFileServiceClient(cc grpc.ClientConnInterface) *FileServiceClient {
	return &FileServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, req interface{}) (*Resp, error) {
	out := new(Resp)
	err := cc.Invoke(ctx, "/"+ServiceName+"/"+method, req, out,
		grpc.CallContentSubtype(CodecName))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *FileServiceClient) ListVolumes(ctx context.Context, in *ListVolumesRequest) (*ListVolumesResponse, error) {
	return invoke[ListVolumesResponse](ctx, c.cc, "ListVolumes", in)
}

func (c *FileServiceClient) OpenVolume(ctx context.Context, in *OpenVolumeRequest) (*OpenVolumeResponse, error) {
	return invoke[OpenVolumeResponse](ctx, c.cc, "OpenVolume", in)
}

func (c *FileServiceClient) Open(ctx context.Context, in *OpenRequest) (*OpenResponse, error) {
	return invoke[OpenResponse](ctx, c.cc, "Open", in)
}

func (c *FileServiceClient) Close(ctx context.Context, in *CloseRequest) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c.cc, "Close", in)
}

func (c *FileServiceClient) Delete(ctx context.Context, in *DeleteRequest) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c.cc, "Delete", in)
}

func (c *FileServiceClient) Read(ctx context.Context, in *ReadRequest) (*ReadResponse, error) {
	return invoke[ReadResponse](ctx, c.cc, "Read", in)
}

func (c *FileServiceClient) Write(ctx context.Context, in *WriteRequest) (*WriteResponse, error) {
	return invoke[WriteResponse](ctx, c.cc, "Write", in)
}

func (c *FileServiceClient) GetPosition(ctx context.Context, in *GetPositionRequest) (*GetPositionResponse, error) {
	return invoke[GetPositionResponse](ctx, c.cc, "GetPosition", in)
}

func (c *FileServiceClient) SetPosition(ctx context.Context, in *SetPositionRequest) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c.cc, "SetPosition", in)
}

func (c *FileServiceClient) GetInfo(ctx context.Context, in *GetInfoRequest) (*GetInfoResponse, error) {
	return invoke[GetInfoResponse](ctx, c.cc, "GetInfo", in)
}

func (c *FileServiceClient) SetInfo(ctx context.Context, in *SetInfoRequest) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c.cc, "SetInfo", in)
}

func (c *FileServiceClient) Flush(ctx context.Context, in *FlushRequest) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c.cc, "Flush", in)
}

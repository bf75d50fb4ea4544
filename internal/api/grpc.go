package api

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype the attempt service speaks.
const CodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

// AttemptServiceServer is the server API for quiz.v1.AttemptService.
type AttemptServiceServer interface {
	StartAttempt(context.Context, *StartAttemptRequest) (*StartAttemptResponse, error)
	SubmitAnswer(context.Context, *SubmitAnswerRequest) (*SubmitAnswerResponse, error)
	CompleteAttempt(context.Context, *CompleteAttemptRequest) (*CompleteAttemptResponse, error)
	GetAttempt(context.Context, *GetAttemptRequest) (*GetAttemptResponse, error)
	GetLeaderboard(context.Context, *GetLeaderboardRequest) (*GetLeaderboardResponse, error)
}

const serviceName = "quiz.v1.AttemptService"

var AttemptServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*AttemptServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "StartAttempt", Handler: unaryHandler("StartAttempt", AttemptServiceServer.StartAttempt)},
		{MethodName: "SubmitAnswer", Handler: unaryHandler("SubmitAnswer", AttemptServiceServer.SubmitAnswer)},
		{MethodName: "CompleteAttempt", Handler: unaryHandler("CompleteAttempt", AttemptServiceServer.CompleteAttempt)},
		{MethodName: "GetAttempt", Handler: unaryHandler("GetAttempt", AttemptServiceServer.GetAttempt)},
		{MethodName: "GetLeaderboard", Handler: unaryHandler("GetLeaderboard", AttemptServiceServer.GetLeaderboard)},
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterAttemptServiceServer(s grpc.ServiceRegistrar, srv AttemptServiceServer) {
	s.RegisterService(&AttemptServiceDesc, srv)
}

// methodHandler matches grpc.MethodDesc.Handler.
type methodHandler = func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error)

func unaryHandler[Req, Resp any](method string, call func(AttemptServiceServer, context.Context, *Req) (*Resp, error)) methodHandler {
	fullMethod := "/" + serviceName + "/" + method

	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}

		if interceptor == nil {
			return call(srv.(AttemptServiceServer), ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AttemptServiceServer), ctx, req.(*Req))
		}

		return interceptor(ctx, in, info, handler)
	}
}

// AttemptServiceClient calls quiz.v1.AttemptService over the JSON codec.
type AttemptServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewAttemptServiceClient(cc grpc.ClientConnInterface) *AttemptServiceClient {
	return &AttemptServiceClient{cc: cc}
}

func (c *AttemptServiceClient) StartAttempt(ctx context.Context, in *StartAttemptRequest, opts ...grpc.CallOption) (*StartAttemptResponse, error) {
	out := new(StartAttemptResponse)
	return out, c.invoke(ctx, "StartAttempt", in, out, opts)
}

func (c *AttemptServiceClient) SubmitAnswer(ctx context.Context, in *SubmitAnswerRequest, opts ...grpc.CallOption) (*SubmitAnswerResponse, error) {
	out := new(SubmitAnswerResponse)
	return out, c.invoke(ctx, "SubmitAnswer", in, out, opts)
}

func (c *AttemptServiceClient) CompleteAttempt(ctx context.Context, in *CompleteAttemptRequest, opts ...grpc.CallOption) (*CompleteAttemptResponse, error) {
	out := new(CompleteAttemptResponse)
	return out, c.invoke(ctx, "CompleteAttempt", in, out, opts)
}

func (c *AttemptServiceClient) GetAttempt(ctx context.Context, in *GetAttemptRequest, opts ...grpc.CallOption) (*GetAttemptResponse, error) {
	out := new(GetAttemptResponse)
	return out, c.invoke(ctx, "GetAttempt", in, out, opts)
}

func (c *AttemptServiceClient) GetLeaderboard(ctx context.Context, in *GetLeaderboardRequest, opts ...grpc.CallOption) (*GetLeaderboardResponse, error) {
	out := new(GetLeaderboardResponse)
	return out, c.invoke(ctx, "GetLeaderboard", in, out, opts)
}

func (c *AttemptServiceClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...)
}

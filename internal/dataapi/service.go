package dataapi

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "gatekeeper.v1.Evaluation"

// EvaluateRequest asks for one flag decision.
type EvaluateRequest struct {
	FlagKey    string `json:"flagKey"`
	MerchantID string `json:"merchantId"`
}

// EvaluateResponse is one flag decision.
type EvaluateResponse struct {
	FlagKey    string `json:"flagKey"`
	MerchantID string `json:"merchantId"`
	Enabled    bool   `json:"isEnabled"`
	Reason     string `json:"reason"`
	Detail     string `json:"detail"`
}

// EvaluateAllRequest asks for every flag decision of one merchant.
type EvaluateAllRequest struct {
	MerchantID string `json:"merchantId"`
}

// EvaluateAllResponse lists the decisions in registry order.
type EvaluateAllResponse struct {
	MerchantID  string             `json:"merchantId"`
	Evaluations []EvaluateResponse `json:"evaluations"`
}

// EvaluationServer is the server API of gatekeeper.v1.Evaluation.
type EvaluationServer interface {
	Evaluate(ctx context.Context, req *EvaluateRequest) (*EvaluateResponse, error)
	EvaluateAll(ctx context.Context, req *EvaluateAllRequest) (*EvaluateAllResponse, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EvaluationServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Evaluate", Handler: evaluateHandler},
		{MethodName: "EvaluateAll", Handler: evaluateAllHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func evaluateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(EvaluateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EvaluationServer).Evaluate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Evaluate"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(EvaluationServer).Evaluate(ctx, req.(*EvaluateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func evaluateAllHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(EvaluateAllRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EvaluationServer).EvaluateAll(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/EvaluateAll"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(EvaluationServer).EvaluateAll(ctx, req.(*EvaluateAllRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Client calls gatekeeper.v1.Evaluation over any connection, forcing the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Evaluate(ctx context.Context, req *EvaluateRequest, opts ...grpc.CallOption) (*EvaluateResponse, error) {
	out := new(EvaluateResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/Evaluate", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) EvaluateAll(ctx context.Context, req *EvaluateAllRequest, opts ...grpc.CallOption) (*EvaluateAllResponse, error) {
	out := new(EvaluateAllResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/EvaluateAll", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

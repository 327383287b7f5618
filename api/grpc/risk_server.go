package grpc

import (
	"context"
	"errors"

	"fraud-risk-engine/internal/riskcontrol"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	RiskServiceName             = "risk.v1.RiskService"
	RiskServiceAnalyzeOrder     = "/" + RiskServiceName + "/AnalyzeOrder"
	RiskServiceCheckBlacklisted = "/" + RiskServiceName + "/CheckBlacklisted"
)

// BlacklistCheckRequest 黑名单查询请求
type BlacklistCheckRequest struct {
	Type  riskcontrol.BlacklistType `json:"type"`
	Value string                    `json:"value"`
}

// BlacklistCheckResponse 黑名单查询结果
type BlacklistCheckResponse struct {
	Blacklisted bool `json:"blacklisted"`
}

// RiskServiceServer 风控 gRPC 服务接口
type RiskServiceServer interface {
	AnalyzeOrder(ctx context.Context, req *riskcontrol.OrderContext) (*riskcontrol.AnalysisResult, error)
	CheckBlacklisted(ctx context.Context, req *BlacklistCheckRequest) (*BlacklistCheckResponse, error)
}

// RiskServiceDesc 手写的服务描述，消息走 JSON 编码
var RiskServiceDesc = grpc.ServiceDesc{
	ServiceName: RiskServiceName,
	HandlerType: (*RiskServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "AnalyzeOrder", Handler: analyzeOrderHandler},
		{MethodName: "CheckBlacklisted", Handler: checkBlacklistedHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "risk/v1/risk.proto",
}

// RegisterRiskServiceServer 注册服务
func RegisterRiskServiceServer(s grpc.ServiceRegistrar, srv RiskServiceServer) {
	s.RegisterService(&RiskServiceDesc, srv)
}

func analyzeOrderHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(riskcontrol.OrderContext)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RiskServiceServer).AnalyzeOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RiskServiceAnalyzeOrder}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RiskServiceServer).AnalyzeOrder(ctx, req.(*riskcontrol.OrderContext))
	}
	return interceptor(ctx, in, info, handler)
}

func checkBlacklistedHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(BlacklistCheckRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RiskServiceServer).CheckBlacklisted(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RiskServiceCheckBlacklisted}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RiskServiceServer).CheckBlacklisted(ctx, req.(*BlacklistCheckRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// RiskServer gRPC风控服务
type RiskServer struct {
	service riskcontrol.Service
}

// NewRiskServer 创建风控服务
func NewRiskServer(service riskcontrol.Service) *RiskServer {
	return &RiskServer{service: service}
}

// AnalyzeOrder 订单风险分析
func (s *RiskServer) AnalyzeOrder(ctx context.Context, req *riskcontrol.OrderContext) (*riskcontrol.AnalysisResult, error) {
	result, err := s.service.AnalyzeOrder(ctx, req)
	if err != nil {
		if errors.Is(err, riskcontrol.ErrInvalidOrder) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	return result, nil
}

// CheckBlacklisted 黑名单查询
func (s *RiskServer) CheckBlacklisted(ctx context.Context, req *BlacklistCheckRequest) (*BlacklistCheckResponse, error) {
	hit, err := s.service.IsBlacklisted(ctx, req.Type, req.Value)
	if err != nil {
		if errors.Is(err, riskcontrol.ErrInvalidBlacklistType) || errors.Is(err, riskcontrol.ErrInvalidBlacklistValue) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &BlacklistCheckResponse{Blacklisted: hit}, nil
}

// RiskServiceClient 风控 gRPC 客户端
type RiskServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewRiskServiceClient 创建客户端
func NewRiskServiceClient(cc grpc.ClientConnInterface) *RiskServiceClient {
	return &RiskServiceClient{cc: cc}
}

// AnalyzeOrder 调用订单风险分析
func (c *RiskServiceClient) AnalyzeOrder(ctx context.Context, in *riskcontrol.OrderContext, opts ...grpc.CallOption) (*riskcontrol.AnalysisResult, error) {
	out := new(riskcontrol.AnalysisResult)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, RiskServiceAnalyzeOrder, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// CheckBlacklisted 调用黑名单查询
func (c *RiskServiceClient) CheckBlacklisted(ctx context.Context, in *BlacklistCheckRequest, opts ...grpc.CallOption) (*BlacklistCheckResponse, error) {
	out := new(BlacklistCheckResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, RiskServiceCheckBlacklisted, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

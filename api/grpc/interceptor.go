package grpc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fraud-risk-engine/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type contextKey string

const (
	operatorKey contextKey = "operator"
)

var jwtSecret []byte

// SetJWTSecret 设置JWT密钥
func SetJWTSecret(secret string) {
	jwtSecret = []byte(secret)
}

// GetOperatorFromContext 从上下文获取调用方
func GetOperatorFromContext(ctx context.Context) (string, error) {
	operator, ok := ctx.Value(operatorKey).(string)
	if !ok || operator == "" {
		return "", status.Error(codes.Unauthenticated, "caller not authenticated")
	}
	return operator, nil
}

// AuthInterceptor 认证拦截器
func AuthInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	// 从metadata获取token
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing metadata")
	}

	authHeaders := md.Get("authorization")
	if len(authHeaders) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing authorization header")
	}

	tokenString, found := strings.CutPrefix(authHeaders[0], "Bearer ")
	if !found {
		return nil, status.Error(codes.Unauthenticated, "invalid authorization header")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "invalid token claims")
	}
	if sub, _ := claims.GetSubject(); sub != "" {
		ctx = context.WithValue(ctx, operatorKey, sub)
	}

	return handler(ctx, req)
}

// LoggingInterceptor 日志拦截器
func LoggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	latency := time.Since(start)
	if err != nil {
		logger.Errorf("gRPC %s error: %v, took=%s", info.FullMethod, err, latency)
	} else {
		logger.Infof("gRPC %s OK took=%s", info.FullMethod, latency)
	}
	return resp, err
}

// RecoveryInterceptor 恢复拦截器
func RecoveryInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("gRPC %s panic: %v", info.FullMethod, r)
			err = status.Errorf(codes.Internal, "panic: %v", r)
		}
	}()
	return handler(ctx, req)
}

package api

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// ServerOptions returns the interceptor chains every daemon server installs.
// Unary and streaming calls both run panic recovery first, then request
// logging, then request validation.
func ServerOptions(logger *zap.Logger) []grpc.ServerOption {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := newValidator()
	return []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			recoveryUnaryInterceptor(logger),
			loggingUnaryInterceptor(logger),
			validationUnaryInterceptor(v),
		),
		grpc.ChainStreamInterceptor(
			recoveryStreamInterceptor(logger),
			loggingStreamInterceptor(logger),
			validationStreamInterceptor(v),
		),
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their wire names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validateRequest(v *validator.Validate, method string, req any) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		// Not a struct; nothing to check.
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return grpcstatus.Errorf(codes.InvalidArgument, "%s: %v", shortMethod(method), err)
	}
	msgs := make([]string, 0, len(fields))
	for _, fe := range fields {
		msgs = append(msgs, describeField(fe))
	}
	return grpcstatus.Errorf(codes.InvalidArgument, "%s: %s", shortMethod(method), strings.Join(msgs, "; "))
}

func describeField(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
	}
}

func shortMethod(full string) string {
	if i := strings.LastIndex(full, "/"); i >= 0 {
		return full[i+1:]
	}
	return full
}

func validationUnaryInterceptor(v *validator.Validate) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if err := validateRequest(v, info.FullMethod, req); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// validatingStream checks the first message a server-streaming call receives.
type validatingStream struct {
	grpc.ServerStream
	v      *validator.Validate
	method string
}

func (s *validatingStream) RecvMsg(m any) error {
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return err
	}
	return validateRequest(s.v, s.method, m)
}

func validationStreamInterceptor(v *validator.Validate) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		return handler(srv, &validatingStream{ServerStream: ss, v: v, method: info.FullMethod})
	}
}

func loggingUnaryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logCall(logger, info.FullMethod, start, err)
		return resp, err
	}
}

func loggingStreamInterceptor(logger *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		logger.Debug("stream opened", zap.String("method", info.FullMethod))
		err := handler(srv, ss)
		logCall(logger, info.FullMethod, start, err)
		return err
	}
}

func logCall(logger *zap.Logger, method string, start time.Time, err error) {
	code := grpcstatus.Code(err)
	fields := []zap.Field{
		zap.String("method", method),
		zap.String("code", code.String()),
		zap.Duration("cost", time.Since(start)),
	}
	switch code {
	case codes.OK, codes.Canceled:
		logger.Debug("rpc", fields...)
	case codes.Internal, codes.Unknown:
		logger.Error("rpc", append(fields, zap.Error(err))...)
	default:
		logger.Info("rpc", append(fields, zap.Error(err))...)
	}
}

func recoveryUnaryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer recoverRPC(logger, info.FullMethod, &err)
		return handler(ctx, req)
	}
}

func recoveryStreamInterceptor(logger *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer recoverRPC(logger, info.FullMethod, &err)
		return handler(srv, ss)
	}
}

// recoverRPC turns a panic in a handler into an Internal status on *err.
// It must be deferred directly.
func recoverRPC(logger *zap.Logger, method string, err *error) {
	rec := recover()
	if rec == nil {
		return
	}
	logger.Error("panic in rpc",
		zap.String("method", method),
		zap.Any("error", rec),
		zap.String("stack", string(debug.Stack())),
	)
	*err = grpcstatus.Errorf(codes.Internal, "%s: internal error", shortMethod(method))
}

package dataapi

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rafaeljc/gatekeeper/internal/logger"
	"github.com/rafaeljc/gatekeeper/internal/registry"
	"github.com/rafaeljc/gatekeeper/internal/ruleengine"
)

// Evaluate decides one flag for one merchant.
//
// It returns:
//   - OK with the decision and its reason.
//   - INVALID_ARGUMENT if flagKey or merchantId is missing.
//   - NOT_FOUND if the flag does not exist (or was deleted).
//   - INTERNAL if the registry could not be read.
func (a *API) Evaluate(ctx context.Context, req *EvaluateRequest) (*EvaluateResponse, error) {
	if req.FlagKey == "" {
		return nil, status.Error(codes.InvalidArgument, "flagKey is required")
	}
	if req.MerchantID == "" {
		return nil, status.Error(codes.InvalidArgument, "merchantId is required")
	}

	res, err := a.evaluations.Evaluate(ctx, req.FlagKey, req.MerchantID)
	if err != nil {
		return nil, toStatus(ctx, err)
	}

	resp := toResponse(res)
	return &resp, nil
}

// EvaluateAll decides every live flag for one merchant.
func (a *API) EvaluateAll(ctx context.Context, req *EvaluateAllRequest) (*EvaluateAllResponse, error) {
	if req.MerchantID == "" {
		return nil, status.Error(codes.InvalidArgument, "merchantId is required")
	}

	all, err := a.evaluations.EvaluateAll(ctx, req.MerchantID)
	if err != nil {
		return nil, toStatus(ctx, err)
	}

	out := &EvaluateAllResponse{
		MerchantID:  all.MerchantID,
		Evaluations: make([]EvaluateResponse, len(all.Evaluations)),
	}
	for i, res := range all.Evaluations {
		out.Evaluations[i] = toResponse(res)
	}
	return out, nil
}

func toResponse(res ruleengine.Result) EvaluateResponse {
	return EvaluateResponse{
		FlagKey:    res.FlagKey,
		MerchantID: res.MerchantID,
		Enabled:    res.Enabled,
		Reason:     string(res.Reason),
		Detail:     res.Detail,
	}
}

// toStatus hides internal errors from clients; they are logged instead.
func toStatus(ctx context.Context, err error) error {
	var verr *registry.ValidationError
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.As(err, &verr):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		logger.FromContext(ctx).Error("evaluation failed", slog.String("error", err.Error()))
		return status.Error(codes.Internal, "failed to retrieve flag configuration")
	}
}

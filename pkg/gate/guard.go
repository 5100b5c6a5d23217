package gate

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrymomot/quotagate/pkg/entitlement"
	"github.com/dmitrymomot/quotagate/pkg/plans"
	"github.com/dmitrymomot/quotagate/pkg/quota"
)

// Guard is one admission check. A nil rejection and nil error pass the
// request on. A rejection is a business refusal rendered to the client. An
// error is an infrastructure or wiring failure answered with 500.
type Guard interface {
	Name() string
	Check(ctx context.Context, s *State) (*Rejection, error)
}

// GuardFunc adapts a function into a named Guard.
type GuardFunc struct {
	name string
	fn   func(ctx context.Context, s *State) (*Rejection, error)
}

// NewGuard returns a Guard named name running fn.
func NewGuard(name string, fn func(ctx context.Context, s *State) (*Rejection, error)) Guard {
	return GuardFunc{name: name, fn: fn}
}

func (g GuardFunc) Name() string { return g.name }

func (g GuardFunc) Check(ctx context.Context, s *State) (*Rejection, error) {
	return g.fn(ctx, s)
}

// AmountFunc computes a requested quantity from the request.
type AmountFunc func(r *http.Request) (int64, error)

// FilesFunc lists the uploaded files of the request.
type FilesFunc func(r *http.Request) ([]FileInfo, error)

// FileInfo describes one uploaded file.
type FileInfo struct {
	Name string
	Size int64
}

func unauthenticated() *Rejection {
	return &Rejection{
		Status:  http.StatusUnauthorized,
		Code:    CodeAuthenticationRequired,
		Message: "Authentication is required.",
	}
}

// entitlements resolves the subscription for guards that need one.
// Unauthenticated requests are rejected with 401.
func entitlements(ctx context.Context, s *State) (*entitlement.Resolved, *Rejection) {
	if !s.Authenticated {
		return nil, unauthenticated()
	}
	return s.Entitlements(ctx), nil
}

// AuthPresence rejects requests without an authenticated identity.
func AuthPresence() Guard {
	return NewGuard("auth_presence", func(_ context.Context, s *State) (*Rejection, error) {
		if !s.Authenticated {
			return unauthenticated(), nil
		}
		return nil, nil
	})
}

// SubscriptionValidity resolves the subscription and rejects it unless
// it is active or trialing.
func SubscriptionValidity() Guard {
	return NewGuard("subscription_validity", func(ctx context.Context, s *State) (*Rejection, error) {
		res, rej := entitlements(ctx, s)
		if rej != nil {
			return rej, nil
		}
		if res.IsValid() {
			return nil, nil
		}
		return &Rejection{
			Status:  http.StatusForbidden,
			Code:    CodeSubscriptionInactive,
			Message: fmt.Sprintf("Your subscription is %s. Renew it to continue.", res.Subscription.Status),
			Plan:    res.PlanID(),
		}, nil
	})
}

// ResourceQuota admits the request when amount more units of lt fit into
// the plan. The admitted decision is attached to the State.
func ResourceQuota(lt quota.LimitType, amount AmountFunc) Guard {
	return NewGuard("resource_quota:"+lt.String(), func(ctx context.Context, s *State) (*Rejection, error) {
		if !lt.Valid() {
			return nil, fmt.Errorf("%w: %q", quota.ErrInvalidLimitType, lt)
		}
		res, rej := entitlements(ctx, s)
		if rej != nil {
			return rej, nil
		}

		n, rej, err := requested(s.Request, amount)
		if rej != nil || err != nil {
			return rej, err
		}

		d, err := quota.Check(res, lt, n)
		if err != nil {
			return nil, err
		}
		if !d.Allowed {
			return &Rejection{
				Status:    http.StatusForbidden,
				Code:      CodeQuotaExceeded,
				Message:   quotaMessage(d),
				Limit:     ptr(d.Limit),
				Current:   ptr(d.Current),
				Remaining: ptr(d.Remaining),
				Plan:      d.Plan,
				LimitType: d.LimitType.String(),
			}, nil
		}

		s.attach(d)
		return nil, nil
	})
}

// FileSizeLimit rejects with 413 when any uploaded file exceeds the plan's
// per-file size limit. Every offending file is listed.
func FileSizeLimit(files FilesFunc) Guard {
	return NewGuard("file_size_limit", func(ctx context.Context, s *State) (*Rejection, error) {
		if files == nil {
			return nil, fmt.Errorf("%w: files function is nil", ErrInvalidAmount)
		}
		res, rej := entitlements(ctx, s)
		if rej != nil {
			return rej, nil
		}

		limit := res.Limits().MaxFileBytes
		if limit == plans.Unlimited {
			return nil, nil
		}

		list, err := files(s.Request)
		if err != nil {
			if errors.Is(err, ErrMultipartRead) {
				return badRequest(err), nil
			}
			return nil, err
		}

		var oversized []OversizedFile
		for _, f := range list {
			if f.Size > limit {
				oversized = append(oversized, OversizedFile{Name: f.Name, Size: f.Size, Limit: limit})
			}
		}
		if len(oversized) == 0 {
			return nil, nil
		}

		return &Rejection{
			Status:  http.StatusRequestEntityTooLarge,
			Code:    CodeFileTooLarge,
			Message: fmt.Sprintf("%d file(s) exceed the %d byte limit of the %s plan.", len(oversized), limit, res.PlanID()),
			Limit:   ptr(limit),
			Plan:    res.PlanID(),
			Files:   oversized,
		}, nil
	})
}

// PlanTier rejects plans ranked below minPlan in the catalog's tier order.
// An unknown minPlan is a wiring error.
func PlanTier(minPlan string) Guard {
	return NewGuard("plan_tier:"+minPlan, func(ctx context.Context, s *State) (*Rejection, error) {
		need, err := s.catalog.Rank(minPlan)
		if err != nil {
			return nil, fmt.Errorf("minimum plan %q: %w", minPlan, err)
		}
		res, rej := entitlements(ctx, s)
		if rej != nil {
			return rej, nil
		}

		have, err := s.catalog.Rank(res.PlanID())
		if err != nil {
			return nil, fmt.Errorf("resolved plan %q: %w", res.PlanID(), err)
		}
		if have >= need {
			return nil, nil
		}

		return &Rejection{
			Status:  http.StatusForbidden,
			Code:    CodePlanRequired,
			Message: fmt.Sprintf("This operation requires the %s plan or higher.", minPlan),
			Plan:    res.PlanID(),
		}, nil
	})
}

// FeatureGate rejects plans that do not grant feature.
func FeatureGate(feature plans.Feature) Guard {
	return NewGuard("feature_gate:"+string(feature), func(ctx context.Context, s *State) (*Rejection, error) {
		res, rej := entitlements(ctx, s)
		if rej != nil {
			return rej, nil
		}

		d := quota.CheckFeature(res, s.catalog, feature)
		if d.HasAccess {
			return nil, nil
		}

		return &Rejection{
			Status:  http.StatusForbidden,
			Code:    CodeFeatureNotEntitled,
			Message: fmt.Sprintf("The %s feature is not available on the %s plan.", feature, d.Plan),
			Plan:    d.Plan,
			suggest: feature,
		}, nil
	})
}

// BatchSizeLimit rejects batches with more items than the plan allows per batch.
func BatchSizeLimit(count AmountFunc) Guard {
	return NewGuard("batch_size_limit", func(ctx context.Context, s *State) (*Rejection, error) {
		res, rej := entitlements(ctx, s)
		if rej != nil {
			return rej, nil
		}

		limit := res.Limits().MaxFilesPerBatch
		if limit == plans.Unlimited {
			return nil, nil
		}

		n, rej, err := requested(s.Request, count)
		if rej != nil || err != nil {
			return rej, err
		}
		if n <= limit {
			return nil, nil
		}

		return &Rejection{
			Status:    http.StatusForbidden,
			Code:      CodeBatchTooLarge,
			Message:   fmt.Sprintf("The %s plan allows up to %d files per batch.", res.PlanID(), limit),
			Limit:     ptr(limit),
			Current:   ptr(n),
			Plan:      res.PlanID(),
			LimitType: "batch",
		}, nil
	})
}

// requested evaluates fn, turning unreadable uploads into a 400 rejection.
func requested(r *http.Request, fn AmountFunc) (int64, *Rejection, error) {
	if fn == nil {
		return 0, nil, fmt.Errorf("%w: amount function is nil", ErrInvalidAmount)
	}
	n, err := fn(r)
	if err != nil {
		if errors.Is(err, ErrMultipartRead) {
			return 0, badRequest(err), nil
		}
		return 0, nil, err
	}
	if n < 0 {
		return 0, nil, fmt.Errorf("%w: %d", ErrInvalidAmount, n)
	}
	return n, nil, nil
}

func badRequest(err error) *Rejection {
	return &Rejection{
		Status:  http.StatusBadRequest,
		Code:    CodeInvalidRequest,
		Message: err.Error(),
	}
}

func quotaMessage(d quota.Decision) string {
	if d.Remaining == 0 {
		return fmt.Sprintf("You have used all %d %s of your %s plan this month.", d.Limit, unitOf(d.LimitType), d.Plan)
	}
	return fmt.Sprintf("This request needs %d %s but only %d of %d remain on your %s plan this month.",
		d.Requested, unitOf(d.LimitType), d.Remaining, d.Limit, d.Plan)
}

func unitOf(lt quota.LimitType) string {
	switch lt {
	case quota.Files:
		return "files"
	case quota.Storage:
		return "bytes of storage"
	case quota.AIOperations:
		return "AI operations"
	case quota.APICalls:
		return "API calls"
	}
	return lt.String()
}

// Package logx centralizes the logger annotations used across pitline
// so user and venue fields are attached once and not repeated by every
// caller down the stack.
package logx

import (
	"context"

	"github.com/pitline/pitline/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	userKey contextKey = iota
	venueKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithUser annotates the logger with the user id if present.
func WithUser(ctx context.Context, userID schema.UserID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if userID != "" {
		if current, ok := ctx.Value(userKey).(schema.UserID); ok && current == userID {
			return log
		}
		log = log.With("user", userID)
	}
	return log
}

// WithUserVenue annotates the logger with user and venue identifiers.
func WithUserVenue(ctx context.Context, userID schema.UserID, venue string) pslog.Logger {
	log := WithUser(ctx, userID)
	if venue != "" {
		if current, ok := ctx.Value(venueKey).(string); ok && current == venue {
			return log
		}
		log = log.With("venue", venue)
	}
	return log
}

// WithOrder annotates the logger with order metadata when available.
func WithOrder(log pslog.Logger, order schema.Order) pslog.Logger {
	if order.ID != "" {
		log = log.With("order", order.ID)
	}
	if order.Symbol != "" {
		log = log.With("symbol", order.Symbol)
	}
	return log
}

// ContextWithUser stores the user marker on the context for log de-duplication.
func ContextWithUser(ctx context.Context, userID schema.UserID) context.Context {
	if ctx == nil || userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userKey, userID)
}

// ContextWithVenue stores the venue marker on the context for log de-duplication.
func ContextWithVenue(ctx context.Context, venue string) context.Context {
	if ctx == nil || venue == "" {
		return ctx
	}
	return context.WithValue(ctx, venueKey, venue)
}

// ContextWithUserLogger attaches the logger and user marker to the context.
func ContextWithUserLogger(ctx context.Context, log pslog.Logger, userID schema.UserID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithUser(ctx, userID)
}

// CopyContextFields copies user/venue markers from src to dst. Used when
// an agent turn outlives the request context that started it.
func CopyContextFields(dst context.Context, src context.Context) context.Context {
	if src == nil {
		return dst
	}
	if user, ok := src.Value(userKey).(schema.UserID); ok && user != "" {
		dst = ContextWithUser(dst, user)
	}
	if venue, ok := src.Value(venueKey).(string); ok && venue != "" {
		dst = ContextWithVenue(dst, venue)
	}
	return dst
}

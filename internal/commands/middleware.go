package commands

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"genboard/internal/storage"
	logx "genboard/pkg/logx"
)

type Middleware func(next HandlerFunc) HandlerFunc

func chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func (r *Router) recoverPanic() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if p := recover(); p != nil {
					req.Logger.Error("panic recovered", logx.Any("panic", p), logx.Stack(string(debug.Stack())))
					err = fmt.Errorf("internal error")
				}
			}()
			return next(ctx, req)
		}
	}
}

func (r *Router) requestLog() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			fields := []logx.Field{
				logx.Int64("chat_id", req.Chat.ChatID),
				logx.Int("thread_id", req.Chat.ThreadID),
				logx.Int64("from_id", req.FromID),
				logx.Duration("dur", time.Since(start)),
			}
			if err != nil {
				req.Logger.Warn("request failed", append(fields, logx.Err(err))...)
			} else {
				req.Logger.Debug("request ok", fields...)
			}
			return err
		}
	}
}

func (r *Router) ownerOnly(c *Command) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if c.Access == AccessOwnerOnly && !r.isOwner(req.FromID) {
				return ErrForbidden
			}
			return next(ctx, req)
		}
	}
}

// auditLog appends one entry per mutating command, failed or not.
// Usage errors never reached the store and are not recorded.
func (r *Router) auditLog(c *Command) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			err := next(ctx, req)
			if !c.Mutates || r.audit == nil || err == errUsage {
				return err
			}
			e := storage.AuditEntry{
				At:       r.now().UTC(),
				ReqID:    req.ReqID,
				ActorID:  req.FromID,
				ChatID:   req.Chat.ChatID,
				ThreadID: req.Chat.ThreadID,
				Action:   "gen." + c.Name,
				List:     req.List,
				Target:   req.Target,
			}
			if err != nil {
				e.Error = err.Error()
			}
			if aerr := r.audit.AppendAudit(context.WithoutCancel(ctx), e); aerr != nil {
				req.Logger.Warn("audit append failed", logx.Err(aerr))
			}
			return err
		}
	}
}

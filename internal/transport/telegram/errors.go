package telegram

import (
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"genboard/internal/transport"
)

// classify maps telebot failures onto the transport error kinds.
// An edit that changes nothing is reported as success.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, tele.ErrMessageNotModified) {
		return nil
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return &transport.RateLimitError{RetryAfter: time.Duration(flood.RetryAfter) * time.Second, Err: err}
	}
	var floodPtr *tele.FloodError
	if errors.As(err, &floodPtr) && floodPtr != nil {
		return &transport.RateLimitError{RetryAfter: time.Duration(floodPtr.RetryAfter) * time.Second, Err: err}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "message is not modified"):
		return nil
	case strings.Contains(msg, "too many requests"):
		return &transport.RateLimitError{Err: err}
	case strings.Contains(msg, "message to edit not found"),
		strings.Contains(msg, "message not found"),
		strings.Contains(msg, "message can't be edited"),
		strings.Contains(msg, "chat not found"):
		return errors.Join(transport.ErrNotFound, err)
	}
	return err
}

package docker

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"

	"github.com/orenlab/pytmbot-sub000/pkg/errs"
	"github.com/orenlab/pytmbot-sub000/pkg/events"
	"github.com/orenlab/pytmbot-sub000/pkg/log"
	"github.com/orenlab/pytmbot-sub000/pkg/types"
)

const renameMaxLen = 64

var (
	errNotRunning = errors.New("container did not reach running state")

	// ErrInvalidName rejects rename targets outside 1-64 characters or
	// consisting only of whitespace.
	ErrInvalidName = errors.New("new name must be 1-64 characters and not whitespace-only")
)

// Manage runs a mutating action against a container on behalf of a
// user. Every call is authorised first: the user must be on the admin
// allow-list and hold an authenticated session. A refused call is
// logged with DENIED severity and never reaches the engine.
//
// RENAME requires newName; the other actions ignore it. After a RESTART
// the container is polled until it reports running, up to three times.
func (s *Service) Manage(ctx context.Context, userID int64, id string, action types.ContainerAction, newName string) error {
	if !s.isAdmin(userID) || !s.isAuthenticated(userID) {
		log.Denied(s.log).
			Int64("user_id", userID).
			Str("container_id", shorten(id)).
			Str("action", string(action)).
			Msg("container action refused")
		s.emit(events.EventContainerDenied, userID, "container action refused", map[string]string{
			"container_id": shorten(id),
			"action":       string(action),
		})
		return errs.New(errs.CodeUnauthorized, "manage container", nil,
			"container_id", shorten(id), "user_id", strconv.FormatInt(userID, 10), "action", string(action))
	}

	var err error
	switch action {
	case types.ActionStart:
		err = s.api.ContainerStart(ctx, id, container.StartOptions{})
	case types.ActionStop:
		err = s.api.ContainerStop(ctx, id, container.StopOptions{})
	case types.ActionRestart:
		err = s.restart(ctx, id)
	case types.ActionRename:
		err = s.rename(ctx, id, newName)
	default:
		return errs.New(errs.CodeContainerOp, "manage container", nil,
			"container_id", shorten(id), "action", string(action))
	}
	if err != nil {
		return s.typedManageError(userID, id, action, err)
	}

	s.log.Info().
		Int64("user_id", userID).
		Str("container_id", shorten(id)).
		Str("action", string(action)).
		Msg("container action applied")
	s.emit(events.EventContainerAction, userID, "container action applied", map[string]string{
		"container_id": shorten(id),
		"action":       string(action),
	})
	return nil
}

// restart issues the restart and then polls for the running state at
// 1.5 s intervals, giving up after the third check.
func (s *Service) restart(ctx context.Context, id string) error {
	if err := s.api.ContainerRestart(ctx, id, container.StopOptions{}); err != nil {
		return err
	}
	for attempt := 1; attempt <= s.restartPollAttempts; attempt++ {
		detail, err := s.api.ContainerInspect(ctx, id)
		if err == nil && detail.State != nil && detail.State.Running {
			return nil
		}
		if attempt == s.restartPollAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.restartPollInterval):
		}
	}
	return errs.New(errs.CodeContainerOp, "restart container",
		errNotRunning, "container_id", shorten(id))
}

func (s *Service) rename(ctx context.Context, id, newName string) error {
	if len(newName) < 1 || len(newName) > renameMaxLen || strings.TrimSpace(newName) == "" {
		return errs.New(errs.CodeContainerOp, "rename container", ErrInvalidName,
			"container_id", shorten(id))
	}
	return s.api.ContainerRename(ctx, id, newName)
}

func (s *Service) typedManageError(userID int64, id string, action types.ContainerAction, err error) error {
	if errs.CodeOf(err) == "" {
		err = s.opError("manage container", id, err)
	}
	s.log.Error().
		Int64("user_id", userID).
		Str("container_id", shorten(id)).
		Str("action", string(action)).
		Str("error", s.san.MaskError(err)).
		Msg("container action failed")
	return err
}

func (s *Service) emit(t events.EventType, userID int64, msg string, meta map[string]string) {
	if s.broker != nil {
		s.broker.Emit(t, userID, msg, meta)
	}
}


// Package authz holds the authorization rules shared by both services. Rules
// are pure: they see only the caller and the target, never storage.
package authz

import (
	"github.com/ekrsw/microservice/internal/apperr"
	"github.com/ekrsw/microservice/internal/models"
)

// Subject is the authenticated caller.
type Subject struct {
	ID      string
	IsAdmin bool
}

func SubjectOf(user models.User) Subject {
	return Subject{ID: user.ID, IsAdmin: user.IsAdmin}
}

func SelfOrAdmin(s Subject, targetID string) error {
	if s.IsAdmin || s.ID == targetID {
		return nil
	}
	return apperr.ErrForbidden.WithMessage("not permitted to act on another user")
}

func AdminOnly(s Subject) error {
	if s.IsAdmin {
		return nil
	}
	return apperr.ErrForbidden.WithMessage("admin privileges required")
}

// AdminFlagChange guards any write of is_admin.
func AdminFlagChange(s Subject) error {
	if s.IsAdmin {
		return nil
	}
	return apperr.ErrForbidden.WithMessage("not permitted to change admin privileges")
}

func SelfDelete(s Subject, targetID string) error {
	if s.ID == targetID {
		return apperr.ErrBadRequest.WithMessage("cannot delete your own account")
	}
	return nil
}

// CanReadPost allows anyone to read a published post; drafts are visible
// only to their owner.
func CanReadPost(s Subject, p models.Post) error {
	if p.IsPublished || p.UserID == s.ID {
		return nil
	}
	return apperr.ErrForbidden.WithMessage("not permitted to view this post")
}

func CanMutatePost(s Subject, p models.Post) error {
	if s.IsAdmin || p.UserID == s.ID {
		return nil
	}
	return apperr.ErrForbidden.WithMessage("not permitted to modify this post")
}

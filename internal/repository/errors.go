// Package repository defines the persistence operations for each resource
// on top of storage.Store, along with the error values handlers translate
// into HTTP responses. Domain failures are *apperr.Error values; handlers
// map them with apperr.HTTPStatus.
package repository

import (
	"errors"

	"github.com/iliyamo/vehicle-rental-marketplace/internal/apperr"
)

// ErrForbidden is returned when the caller attempts an operation on a
// resource owned by someone else. Handlers translate it into HTTP 403.
var ErrForbidden = apperr.New(apperr.KindForbidden, "you do not have permission to modify this resource")

// ErrEmailExists is returned by UserRepo.Create for a taken address.
// Handlers translate it into HTTP 409.
var ErrEmailExists = errors.New("email already exists")

// Actor is the authenticated caller on whose behalf a write is made.
type Actor struct {
	ID    string
	Email string
	Admin bool
}

// CanModify reports whether the actor may change a resource owned by ownerID.
func (a Actor) CanModify(ownerID string) bool {
	return a.Admin || (a.ID != "" && a.ID == ownerID)
}

func notFound(what string) error {
	return apperr.New(apperr.KindNotFound, what+" not found")
}

// translate replaces the store's generic not-found message with what.
func translate(err error, what string) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return notFound(what)
	}
	return err
}

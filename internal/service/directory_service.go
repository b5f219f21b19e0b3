package service

import (
	"context"
	"strings"

	"github.com/itsupport/helpdesk/internal/domain"
	"github.com/itsupport/helpdesk/internal/repository"
	"github.com/itsupport/helpdesk/internal/session"
	apperrors "github.com/itsupport/helpdesk/pkg/util"
)

// DirectoryService serves reference data: problem types, cabinets, contacts
// and the user directory.
type DirectoryService struct {
	store repository.Store
}

// NewDirectoryService constructs the service.
func NewDirectoryService(store repository.Store) *DirectoryService {
	return &DirectoryService{store: store}
}

// ProblemTypes returns the problem type catalog.
func (s *DirectoryService) ProblemTypes(ctx context.Context) ([]domain.ProblemType, error) {
	types, err := s.store.ListProblemTypes(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return types, nil
}

// Cabinets returns the known cabinets ordered by number.
func (s *DirectoryService) Cabinets(ctx context.Context) ([]domain.Cabinet, error) {
	cabinets, err := s.store.ListCabinets(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return cabinets, nil
}

// AddCabinet registers a new cabinet number. Duplicates are ignored by the
// backend.
func (s *DirectoryService) AddCabinet(ctx context.Context, principal *session.Principal, number string) error {
	number = strings.TrimSpace(number)
	if number == "" {
		return apperrors.NewValidationError("cabinet number is required", nil)
	}
	if err := s.store.AddCabinet(ctx, number, principal.UserID); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

// Contact returns the caller's saved contact details. A first read creates an
// empty record so the client always gets a row to edit.
func (s *DirectoryService) Contact(ctx context.Context, principal *session.Principal) (*domain.Contact, error) {
	contact, err := s.store.GetContact(ctx, principal.UserID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if contact == nil {
		if err := s.store.UpsertContact(ctx, principal.UserID, "", ""); err != nil {
			return nil, apperrors.MapError(err)
		}
		contact = &domain.Contact{UserID: principal.UserID}
	}
	return contact, nil
}

// SaveContact stores the caller's phone and email for future tickets.
func (s *DirectoryService) SaveContact(ctx context.Context, principal *session.Principal, phone, email string) error {
	phone = strings.TrimSpace(phone)
	email = strings.TrimSpace(email)
	if phone == "" && email == "" {
		return apperrors.NewValidationError("phone or email is required", nil)
	}
	if err := s.store.UpsertContact(ctx, principal.UserID, phone, email); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

// Users lists every known user, newest first.
func (s *DirectoryService) Users(ctx context.Context) ([]domain.User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return users, nil
}

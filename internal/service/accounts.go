package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/iliyamo/clinic-appointments/internal/access"
	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/repository"
	"github.com/iliyamo/clinic-appointments/internal/utils"
)

// UserStore is the credential store.  repository.UserRepo implements it.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id string) (model.User, error)
	List(ctx context.Context, q repository.UserQuery) ([]model.User, int, error)
	Update(ctx context.Context, u *model.User) error
	Delete(ctx context.Context, id string) error
}

// Password length bounds in bytes.  bcrypt rejects inputs over 72 bytes.
const (
	minPasswordLen = 6
	maxPasswordLen = 72
)

// RegisterInput is the self-registration form.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// UserPatch carries optional account changes.  Role is honoured only for
// administrators.
type UserPatch struct {
	Name     *string
	Email    *string
	Password *string
	Role     *string
}

// AccountService registers, authenticates and manages user accounts.
type AccountService struct {
	users      UserStore
	sessions   *SessionManager
	bcryptCost int
	// dummyHash is compared against on unknown emails so a failed login
	// costs the same bcrypt work whether or not the account exists.
	dummyHash string
}

func NewAccountService(users UserStore, sessions *SessionManager, bcryptCost int) *AccountService {
	s := &AccountService{users: users, sessions: sessions, bcryptCost: bcryptCost}
	if h, err := utils.HashPassword("no-such-account", bcryptCost); err == nil {
		s.dummyHash = h
	}
	return s
}

// Register creates a PATIENT account.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (model.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = repository.NormalizeEmail(in.Email)
	if in.Name == "" || in.Email == "" || in.Password == "" {
		return model.User{}, Validation("body", "name, email and password are required")
	}
	if err := checkEmail(in.Email); err != nil {
		return model.User{}, err
	}
	if err := checkPassword(in.Password); err != nil {
		return model.User{}, err
	}
	hash, err := utils.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return model.User{}, err
	}
	u := model.User{Name: in.Name, Email: in.Email, PasswordHash: hash, Role: model.RolePatient}
	if err := s.users.Create(ctx, &u); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return model.User{}, ErrEmailExists
		}
		return model.User{}, err
	}
	return u, nil
}

// Login verifies credentials and opens a session.  Unknown email and wrong
// password fail the same way.
func (s *AccountService) Login(ctx context.Context, email, password string) (model.User, TokenPair, error) {
	email = repository.NormalizeEmail(email)
	if email == "" || password == "" {
		return model.User{}, TokenPair{}, Validation("body", "email and password are required")
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			utils.VerifyPassword(s.dummyHash, password)
			return model.User{}, TokenPair{}, ErrInvalidCredentials
		}
		return model.User{}, TokenPair{}, err
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return model.User{}, TokenPair{}, ErrInvalidCredentials
	}
	pair, err := s.sessions.IssuePair(ctx, u)
	if err != nil {
		return model.User{}, TokenPair{}, err
	}
	return u, pair, nil
}

// Me returns the caller's account.
func (s *AccountService) Me(ctx context.Context, caller access.Identity) (model.User, error) {
	if !access.Authorize(caller.Role, access.ManageOwnAccount, caller.ID, caller.ID) {
		return model.User{}, ErrForbidden
	}
	return s.get(ctx, caller.ID)
}

// UpdateMe applies p to the caller's account.  The role cannot be changed
// this way.
func (s *AccountService) UpdateMe(ctx context.Context, caller access.Identity, p UserPatch) (model.User, error) {
	if !access.Authorize(caller.Role, access.ManageOwnAccount, caller.ID, caller.ID) {
		return model.User{}, ErrForbidden
	}
	if p.Role != nil {
		return model.User{}, Validation("role", "cannot be changed by the account owner")
	}
	return s.update(ctx, caller.ID, p)
}

// DeleteMe removes the caller's account.  Its refresh tokens go with it;
// appointments are kept.
func (s *AccountService) DeleteMe(ctx context.Context, caller access.Identity) error {
	if !access.Authorize(caller.Role, access.ManageOwnAccount, caller.ID, caller.ID) {
		return ErrForbidden
	}
	return s.delete(ctx, caller.ID)
}

// ListUsers pages through all accounts.
func (s *AccountService) ListUsers(ctx context.Context, caller access.Identity, q repository.UserQuery) ([]model.User, int, error) {
	if !access.Authorize(caller.Role, access.ManageUsers, "", caller.ID) {
		return nil, 0, ErrForbidden
	}
	return s.users.List(ctx, q)
}

// GetUser returns any account.
func (s *AccountService) GetUser(ctx context.Context, caller access.Identity, id string) (model.User, error) {
	if !access.Authorize(caller.Role, access.ManageUsers, "", caller.ID) {
		return model.User{}, ErrForbidden
	}
	return s.get(ctx, id)
}

// UpdateUser applies p, including a role change, to any account.
func (s *AccountService) UpdateUser(ctx context.Context, caller access.Identity, id string, p UserPatch) (model.User, error) {
	if !access.Authorize(caller.Role, access.ManageUsers, "", caller.ID) {
		return model.User{}, ErrForbidden
	}
	return s.update(ctx, id, p)
}

// DeleteUser removes any account.
func (s *AccountService) DeleteUser(ctx context.Context, caller access.Identity, id string) error {
	if !access.Authorize(caller.Role, access.ManageUsers, "", caller.ID) {
		return ErrForbidden
	}
	return s.delete(ctx, id)
}

func (s *AccountService) get(ctx context.Context, id string) (model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, ErrUserNotFound
	}
	return u, err
}

func (s *AccountService) update(ctx context.Context, id string, p UserPatch) (model.User, error) {
	u, err := s.get(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return model.User{}, Validation("name", "must not be empty")
		}
		u.Name = name
	}
	if p.Email != nil {
		email := repository.NormalizeEmail(*p.Email)
		if err := checkEmail(email); err != nil {
			return model.User{}, err
		}
		u.Email = email
	}
	if p.Password != nil {
		if err := checkPassword(*p.Password); err != nil {
			return model.User{}, err
		}
		hash, err := utils.HashPassword(*p.Password, s.bcryptCost)
		if err != nil {
			return model.User{}, err
		}
		u.PasswordHash = hash
	}
	if p.Role != nil {
		role, ok := model.ParseRole(*p.Role)
		if !ok {
			return model.User{}, Validation("role", "unknown role %q", *p.Role)
		}
		u.Role = role
	}
	if err := s.users.Update(ctx, &u); err != nil {
		switch {
		case errors.Is(err, repository.ErrEmailExists):
			return model.User{}, ErrEmailExists
		case errors.Is(err, repository.ErrNotFound):
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, err
	}
	return u, nil
}

func (s *AccountService) delete(ctx context.Context, id string) error {
	err := s.users.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

func checkEmail(email string) error {
	if a, err := mail.ParseAddress(email); err != nil || a.Address != email {
		return Validation("email", "is not a valid address")
	}
	return nil
}

func checkPassword(pw string) error {
	switch {
	case len(pw) < minPasswordLen:
		return Validation("password", "must be at least %d characters", minPasswordLen)
	case len(pw) > maxPasswordLen:
		return Validation("password", "must be at most %d bytes", maxPasswordLen)
	}
	return nil
}

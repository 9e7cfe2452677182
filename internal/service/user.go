package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/neopharm/pharmacy/internal/events"
	"github.com/neopharm/pharmacy/internal/models"
	"github.com/neopharm/pharmacy/internal/repo"
	pkg_hash "github.com/neopharm/pharmacy/pkg/hash"
	"github.com/neopharm/pharmacy/pkg/logging"
)

const MinPasswordLength = 8

// User list categories.
const (
	UsersAll        = "all"
	UsersAdmin      = "admin"
	UsersPharmacist = "pharmacist"
	UsersPharmTech  = "pharm-tech"
	UsersStaff      = "staff"
	UsersInactive   = "inactive"
)

var UserCategories = []string{UsersAll, UsersAdmin, UsersPharmacist, UsersPharmTech, UsersStaff, UsersInactive}

type UserService struct {
	Repo   *repo.GormRepo
	Events events.Publisher
	Now    func() time.Time
}

type RegisterInput struct {
	Username string
	Mobile   string
	FullName string
	UserType string
	Password string
	Confirm  string
	IsStaff  bool
}

type UserUpdate struct {
	Username    string
	Mobile      string
	FirstName   string
	LastName    string
	FullName    string
	UserType    string
	IsActive    bool
	IsStaff     bool
	IsSuperuser bool
	NewPassword string
}

type ProfileInput struct {
	Username string
	Mobile   string
	FullName string
	UserType string
}

func checkIdentity(username, mobile string) error {
	if username == "" || mobile == "" {
		return fmt.Errorf("username and mobile are required: %w", ErrValidation)
	}
	if len(username) > 150 {
		return fmt.Errorf("username is limited to 150 characters: %w", ErrValidation)
	}
	if len(mobile) > 20 || strings.IndexFunc(mobile, func(r rune) bool {
		return (r < '0' || r > '9') && r != '+'
	}) >= 0 {
		return fmt.Errorf("mobile must be digits only: %w", ErrValidation)
	}
	return nil
}

func checkUserType(t string) error {
	if t != "" && !slices.Contains(models.UserTypes, t) {
		return fmt.Errorf("unknown user type %q: %w", t, ErrValidation)
	}
	return nil
}

func checkPassword(password, confirm string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters: %w", MinPasswordLength, ErrValidation)
	}
	if password != confirm {
		return fmt.Errorf("passwords do not match: %w", ErrValidation)
	}
	return nil
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "user.register")

	in.Username = strings.TrimSpace(in.Username)
	in.Mobile = strings.TrimSpace(in.Mobile)
	if err := checkIdentity(in.Username, in.Mobile); err != nil {
		return nil, err
	}
	if err := checkUserType(in.UserType); err != nil {
		return nil, err
	}
	if err := checkPassword(in.Password, in.Confirm); err != nil {
		return nil, err
	}
	if in.UserType == "" {
		in.UserType = models.UserTypePharmTech
	}

	pwHash, err := pkg_hash.HashPassword(in.Password)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, err
	}
	u := models.User{
		Username:     in.Username,
		Mobile:       in.Mobile,
		PasswordHash: pwHash,
		IsActive:     true,
		IsStaff:      in.IsStaff,
		Profile:      models.Profile{FullName: strings.TrimSpace(in.FullName), UserType: in.UserType},
	}
	if err := s.Repo.CreateUser(ctx, &u); err != nil {
		err = mapRepoErr("register", err)
		if errors.Is(err, ErrConflict) {
			l.Warn("register_error", "status", 409, "reason", "user already exist")
			return nil, fmt.Errorf("a user with this mobile or username already exists: %w", ErrConflict)
		}
		l.Error("register_error", "status", 500, "error", err)
		return nil, err
	}

	l.Info("register_success", "user_id", u.ID)
	s.publish(ctx, "user_created", u.ID)
	return &u, nil
}

func (s *UserService) Get(ctx context.Context, id uint) (*models.User, error) {
	u, err := s.Repo.UserByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr("get user", err)
	}
	return u, nil
}

// List returns the users of one admin category.
func (s *UserService) List(ctx context.Context, category string) ([]models.User, error) {
	var f repo.UserFilter
	switch category {
	case "", UsersAll:
	case UsersAdmin:
		f.UserType = models.UserTypeAdmin
	case UsersPharmacist:
		f.UserType = models.UserTypePharmacist
	case UsersPharmTech:
		f.UserType = models.UserTypePharmTech
	case UsersStaff:
		f.Staff = true
	case UsersInactive:
		f.Inactive = true
	default:
		return nil, fmt.Errorf("unknown user category %q: %w", category, ErrValidation)
	}
	return s.Repo.ListUsers(ctx, f)
}

func (s *UserService) Counts(ctx context.Context) (repo.UserCounts, error) {
	return s.Repo.CountUsers(ctx)
}

func (s *UserService) ensureUnique(ctx context.Context, id uint, mobile, username string) error {
	taken, err := s.Repo.UniqueTaken(ctx, id, mobile, username)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("a user with this mobile or username already exists: %w", ErrConflict)
	}
	return nil
}

// Update is the admin edit of a user.
func (s *UserService) Update(ctx context.Context, id uint, in UserUpdate) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Mobile = strings.TrimSpace(in.Mobile)
	if err := checkIdentity(in.Username, in.Mobile); err != nil {
		return nil, err
	}
	if err := checkUserType(in.UserType); err != nil {
		return nil, err
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUnique(ctx, id, in.Mobile, in.Username); err != nil {
		return nil, err
	}

	u.Username = in.Username
	u.Mobile = in.Mobile
	u.FirstName = strings.TrimSpace(in.FirstName)
	u.LastName = strings.TrimSpace(in.LastName)
	u.IsActive = in.IsActive
	u.IsStaff = in.IsStaff
	u.IsSuperuser = in.IsSuperuser
	u.Profile.FullName = strings.TrimSpace(in.FullName)
	if in.UserType != "" {
		u.Profile.UserType = in.UserType
	}
	if in.NewPassword != "" {
		if err := checkPassword(in.NewPassword, in.NewPassword); err != nil {
			return nil, err
		}
		if u.PasswordHash, err = pkg_hash.HashPassword(in.NewPassword); err != nil {
			return nil, err
		}
	}
	if err := s.Repo.SaveUser(ctx, u); err != nil {
		return nil, mapRepoErr("update user", err)
	}
	if !u.IsActive {
		if err := s.Repo.RevokeAllForUser(ctx, u.ID); err != nil {
			return nil, err
		}
	}
	s.publish(ctx, "user_updated", u.ID)
	return u, nil
}

// UpdateProfile is a user's edit of their own profile. Only admins may change the user type.
func (s *UserService) UpdateProfile(ctx context.Context, userID uint, in ProfileInput, asAdmin bool) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Mobile = strings.TrimSpace(in.Mobile)
	if err := checkIdentity(in.Username, in.Mobile); err != nil {
		return nil, err
	}
	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if in.UserType != "" && in.UserType != u.Profile.UserType {
		if !asAdmin {
			return nil, fmt.Errorf("only admins can change the user type: %w", ErrForbidden)
		}
		if err := checkUserType(in.UserType); err != nil {
			return nil, err
		}
		u.Profile.UserType = in.UserType
	}
	if err := s.ensureUnique(ctx, userID, in.Mobile, in.Username); err != nil {
		return nil, err
	}
	u.Username = in.Username
	u.Mobile = in.Mobile
	u.Profile.FullName = strings.TrimSpace(in.FullName)
	if err := s.Repo.SaveUser(ctx, u); err != nil {
		return nil, mapRepoErr("update profile", err)
	}
	s.publish(ctx, "profile_updated", u.ID)
	return u, nil
}

// Delete removes a user; nobody can delete their own account.
func (s *UserService) Delete(ctx context.Context, actorID, id uint) error {
	if actorID == id {
		return fmt.Errorf("you cannot delete your own account: %w", ErrForbidden)
	}
	if err := s.Repo.DeleteUser(ctx, id, nowOr(s.Now)); err != nil {
		return mapRepoErr("delete user", err)
	}
	logging.FromContext(ctx).Info("user_deleted", "svc", "user.delete", "user_id", id, "by", actorID)
	s.publish(ctx, "user_deleted", id)
	return nil
}

func (s *UserService) SetPermissions(ctx context.Context, userID uint, groupIDs, permIDs []uint) error {
	if err := s.Repo.SetUserAccess(ctx, userID, groupIDs, permIDs); err != nil {
		return mapRepoErr("set permissions", err)
	}
	s.publish(ctx, "user_permissions_changed", userID)
	return nil
}

// ChangePassword requires the current password.
func (s *UserService) ChangePassword(ctx context.Context, userID uint, old, password, confirm string) error {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !pkg_hash.CheckPassword(u.PasswordHash, old) {
		return fmt.Errorf("current password is incorrect: %w", ErrValidation)
	}
	return s.setPassword(ctx, userID, password, confirm)
}

// SetPassword is the admin reset.
func (s *UserService) SetPassword(ctx context.Context, userID uint, password, confirm string) error {
	if _, err := s.Get(ctx, userID); err != nil {
		return err
	}
	return s.setPassword(ctx, userID, password, confirm)
}

func (s *UserService) setPassword(ctx context.Context, userID uint, password, confirm string) error {
	if err := checkPassword(password, confirm); err != nil {
		return err
	}
	h, err := pkg_hash.HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.Repo.UpdatePassword(ctx, userID, h); err != nil {
		return mapRepoErr("set password", err)
	}
	s.publish(ctx, "password_changed", userID)
	return nil
}

func (s *UserService) ListGroups(ctx context.Context) ([]models.Group, error) {
	return s.Repo.ListGroups(ctx)
}

func (s *UserService) GetGroup(ctx context.Context, id uint) (*models.Group, []models.User, error) {
	g, err := s.Repo.GroupByID(ctx, id)
	if err != nil {
		return nil, nil, mapRepoErr("get group", err)
	}
	members, err := s.Repo.GroupMembers(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return g, members, nil
}

func (s *UserService) CreateGroup(ctx context.Context, name string, permIDs []uint) (*models.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("group name is required: %w", ErrValidation)
	}
	g := models.Group{Name: name}
	if err := s.Repo.SaveGroup(ctx, &g, permIDs); err != nil {
		return nil, groupErr("create group", err)
	}
	return &g, nil
}

func (s *UserService) UpdateGroup(ctx context.Context, id uint, name string, permIDs []uint) (*models.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("group name is required: %w", ErrValidation)
	}
	g, err := s.Repo.GroupByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr("update group", err)
	}
	g.Name = name
	if err := s.Repo.SaveGroup(ctx, g, permIDs); err != nil {
		return nil, groupErr("update group", err)
	}
	return g, nil
}

func groupErr(what string, err error) error {
	err = mapRepoErr(what, err)
	if errors.Is(err, ErrConflict) {
		return fmt.Errorf("a group with this name already exists: %w", ErrConflict)
	}
	return err
}

func (s *UserService) DeleteGroup(ctx context.Context, id uint) error {
	return mapRepoErr("delete group", s.Repo.DeleteGroup(ctx, id))
}

func (s *UserService) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	return s.Repo.ListPermissions(ctx)
}

type AdminSeed struct {
	Username string
	Mobile   string
	Password string
}

// Seed installs the permission catalog and, when no superuser exists yet, the configured admin.
func (s *UserService) Seed(ctx context.Context, admin AdminSeed) error {
	l := logging.FromContext(ctx).With("svc", "user.seed")
	if err := s.Repo.EnsurePermissions(ctx, models.DefaultPermissions); err != nil {
		return err
	}
	if admin.Mobile == "" || admin.Password == "" {
		return nil
	}
	exists, err := s.Repo.AnySuperuser(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if _, err := s.Repo.UserByMobile(ctx, admin.Mobile); err == nil {
		l.Warn("seed_admin_skipped", "reason", "mobile already registered")
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if admin.Username == "" {
		admin.Username = "admin"
	}
	h, err := pkg_hash.HashPassword(admin.Password)
	if err != nil {
		return err
	}
	u := models.User{
		Username:     admin.Username,
		Mobile:       admin.Mobile,
		PasswordHash: h,
		IsActive:     true,
		IsStaff:      true,
		IsSuperuser:  true,
		Profile:      models.Profile{FullName: "Administrator", UserType: models.UserTypeAdmin},
	}
	if err := s.Repo.CreateUser(ctx, &u); err != nil {
		return mapRepoErr("seed admin", err)
	}
	l.Info("seed_admin_created", "user_id", u.ID)
	return nil
}

func (s *UserService) publish(ctx context.Context, typ string, userID uint) {
	events.Publish(ctx, s.Events, events.TopicUsers, strconv.FormatUint(uint64(userID), 10), map[string]any{
		"type":    typ,
		"user_id": userID,
	})
}

package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	UserTypeAdmin      = "Admin"
	UserTypePharmacist = "Pharmacist"
	UserTypePharmTech  = "Pharm-Tech"
)

var UserTypes = []string{UserTypeAdmin, UserTypePharmacist, UserTypePharmTech}

// Token roles, ordered from most to least privileged.
const (
	RoleAdmin      = "admin"
	RolePharmacist = "pharmacist"
	RolePharmTech  = "pharm-tech"
)

type User struct {
	ID           uint       `gorm:"primaryKey"                 json:"id"`
	Username     string     `gorm:"size:150;uniqueIndex;not null" json:"username"`
	Mobile       string     `gorm:"size:20;uniqueIndex;not null"  json:"mobile"`
	FirstName    string     `gorm:"size:150"                   json:"first_name"`
	LastName     string     `gorm:"size:150"                   json:"last_name"`
	PasswordHash string     `gorm:"not null"                   json:"-"`
	IsActive     bool       `gorm:"not null"                   json:"is_active"`
	IsStaff      bool       `gorm:"not null"                   json:"is_staff"`
	IsSuperuser  bool       `gorm:"not null"                   json:"is_superuser"`
	DateJoined   time.Time  `gorm:"autoCreateTime"             json:"date_joined"`
	LastLogin    *time.Time `json:"last_login"`

	Profile     Profile      `gorm:"constraint:OnDelete:CASCADE" json:"profile"`
	Groups      []Group      `gorm:"many2many:user_groups"       json:"groups,omitempty"`
	Permissions []Permission `gorm:"many2many:user_permissions"  json:"permissions,omitempty"`
}

// AfterCreate gives every new user a profile.
func (u *User) AfterCreate(tx *gorm.DB) error {
	if u.Profile.ID != 0 {
		return nil
	}
	u.Profile = Profile{UserID: u.ID, UserType: UserTypePharmTech}
	return tx.Create(&u.Profile).Error
}

func (u *User) Role() string {
	if u.IsSuperuser || u.IsStaff || u.Profile.UserType == UserTypeAdmin {
		return RoleAdmin
	}
	if u.Profile.UserType == UserTypePharmacist {
		return RolePharmacist
	}
	return RolePharmTech
}

func (u *User) DisplayName() string {
	if u.Profile.FullName != "" {
		return u.Profile.FullName
	}
	if u.FirstName != "" || u.LastName != "" {
		return u.FirstName + " " + u.LastName
	}
	return u.Username
}

// HasPerm reports whether the user holds codename directly or through a group.
func (u *User) HasPerm(codename string) bool {
	if u.IsSuperuser {
		return true
	}
	for _, p := range u.Permissions {
		if p.Codename == codename {
			return true
		}
	}
	for _, g := range u.Groups {
		for _, p := range g.Permissions {
			if p.Codename == codename {
				return true
			}
		}
	}
	return false
}

type Profile struct {
	ID       uint   `gorm:"primaryKey"           json:"id"`
	UserID   uint   `gorm:"uniqueIndex;not null" json:"user_id"`
	FullName string `gorm:"size:200"             json:"full_name"`
	UserType string `gorm:"size:20"              json:"user_type"`
}

type Group struct {
	ID          uint         `gorm:"primaryKey"                 json:"id"`
	Name        string       `gorm:"size:150;uniqueIndex;not null" json:"name"`
	Permissions []Permission `gorm:"many2many:group_permissions" json:"permissions,omitempty"`
}

type Permission struct {
	ID       uint   `gorm:"primaryKey"                 json:"id"`
	Codename string `gorm:"size:100;uniqueIndex;not null" json:"codename"`
	Name     string `gorm:"size:255;not null"          json:"name"`
}

// PermViewReport opens the reports to users below pharmacist.
const PermViewReport = "view_report"

// DefaultPermissions is the catalog seeded at start-up.
var DefaultPermissions = []Permission{
	{Codename: "view_drug", Name: "Can view drugs"},
	{Codename: "add_drug", Name: "Can add drugs"},
	{Codename: "change_drug", Name: "Can change drugs"},
	{Codename: "delete_drug", Name: "Can delete drugs"},
	{Codename: "return_drug", Name: "Can return drugs to stock"},
	{Codename: "dispense", Name: "Can dispense"},
	{Codename: "view_form", Name: "Can view forms"},
	{Codename: "change_form", Name: "Can change forms"},
	{Codename: PermViewReport, Name: "Can view reports"},
	{Codename: "manage_users", Name: "Can manage users"},
}

type RefreshToken struct {
	ID        uint   `gorm:"primaryKey"           json:"id"`
	Token     string `gorm:"uniqueIndex;not null" json:"-"`
	UserID    uint   `gorm:"index;not null"       json:"user_id"`
	JTI       string `gorm:"uniqueIndex;not null" json:"jti"`
	ExpiresAt int64  `gorm:"not null"             json:"expires_at"`
	Revoked   bool   `gorm:"not null"             json:"revoked"`
}

package domain

import (
	"context"
	"errors"
	"time"

	"github.com/tribewave/tribewave/pkg/db/pagination"
)

type RegisterUserRequest struct {
	Name           string
	Phone          string
	InvitationCode string
	City           string
	Neighborhood   string
	Gender         string
}

type CompleteQuestionnaireRequest struct {
	Code             string
	Email            string
	Birthdate        string
	PrimaryConcern   string
	SecondaryConcern string
}

type GetUserRequest struct {
	ID string
}

type GetUserByCodeRequest struct {
	Code string
}

type ListUserRequest struct {
	PageToken   string
	PageSize    int32
	Role        string
	City        string
	Completed   *bool
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

type ListUserResponse struct {
	pagination.PageInfo
	Users []User `json:"users"`
}

type Service interface {
	Register(context.Context, RegisterUserRequest) (User, error)
	CompleteQuestionnaire(context.Context, CompleteQuestionnaireRequest) (User, error)
	GetByID(context.Context, GetUserRequest) (User, error)
	GetByCode(context.Context, GetUserByCodeRequest) (User, error)
	List(context.Context, ListUserRequest) (ListUserResponse, error)
}

var (
	ErrInvalidName       = errors.New("invalid_name")
	ErrInvalidPhone      = errors.New("invalid_phone")
	ErrInvalidCode       = errors.New("invalid_code")
	ErrInvalidBirthdate  = errors.New("invalid_birthdate")
	ErrInvalidRole       = errors.New("invalid_role")
	ErrInvalidID         = errors.New("invalid_id")
	ErrUnknownInvitation = errors.New("unknown_invitation_code")
	ErrPhoneTaken        = errors.New("phone_taken")
	ErrNotFound          = errors.New("not_found")
)

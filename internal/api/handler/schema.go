package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zenspa/identity-service/internal/core/domain"
)

// errorResponse mirrors the envelope written by the API error handler.
type errorResponse struct {
	Error struct {
		Code    string `json:"code"    example:"forbidden"`
		Message string `json:"message" example:"access forbidden"`
		Detail  string `json:"detail,omitempty"`
	} `json:"error"`
}

type meResponse struct {
	UserID      string                  `json:"user_id"`
	Email       string                  `json:"email"`
	PrimaryRole string                  `json:"primary_role"`
	Roles       []domain.RoleAssignment `json:"roles"`
	Profile     *domain.ProfileSnapshot `json:"profile"`
}

type assignRoleRequest struct {
	UserID    string `json:"user_id"    validate:"required,max=255"`
	Role      string `json:"role"       validate:"required"`
	IsPrimary bool   `json:"is_primary"`
	Reason    string `json:"reason"     validate:"max=500"`
}

type assignRoleResponse struct {
	Message    string                `json:"message"`
	Outcome    domain.AssignOutcome  `json:"outcome"`
	Assignment domain.RoleAssignment `json:"assignment"`
}

type revokeRoleResponse struct {
	Message string `json:"message"`
	Removed bool   `json:"removed"`
	UserID  string `json:"user_id"`
	Role    string `json:"role"`
}

type userRolesResponse struct {
	UserID string                  `json:"user_id"`
	Roles  []domain.RoleAssignment `json:"roles"`
}

type auditLogsResponse struct {
	Total  int64               `json:"total"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
	Logs   []domain.AuditEvent `json:"logs"`
}

// updateProfileRequest is a partial update. An omitted field is kept and an
// explicit null clears avatar_url, phone or birth_date.
type updateProfileRequest struct {
	FullName  *string `json:"full_name"  validate:"omitnil,min=1,max=255"`
	AvatarURL *string `json:"avatar_url" validate:"omitempty,max=2048"`
	Phone     *string `json:"phone"      validate:"omitnil,phone"`
	BirthDate *string `json:"birth_date" validate:"omitnil,datetime=2006-01-02"`

	nulls map[string]bool
}

func (r *updateProfileRequest) UnmarshalJSON(b []byte) error {
	type fields updateProfileRequest
	if err := json.Unmarshal(b, (*fields)(r)); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	r.nulls = make(map[string]bool)
	for k, v := range raw {
		if string(bytes.TrimSpace(v)) == "null" {
			r.nulls[k] = true
		}
	}
	return nil
}

func (r updateProfileRequest) toUpdate() (domain.ProfileUpdate, error) {
	if r.nulls["full_name"] {
		return domain.ProfileUpdate{}, fmt.Errorf("%w: full_name cannot be cleared", domain.ErrInvalidInput)
	}
	upd := domain.ProfileUpdate{
		FullName:       r.FullName,
		AvatarURL:      r.AvatarURL,
		Phone:          r.Phone,
		ClearAvatarURL: r.nulls["avatar_url"],
		ClearPhone:     r.nulls["phone"],
		ClearBirthDate: r.nulls["birth_date"],
	}
	if r.BirthDate != nil {
		d, err := time.Parse(time.DateOnly, *r.BirthDate)
		if err != nil {
			return domain.ProfileUpdate{}, fmt.Errorf("%w: birth_date must be a date formatted YYYY-MM-DD", domain.ErrInvalidInput)
		}
		upd.BirthDate = &d
	}
	return upd, nil
}

type webhookResponse struct {
	Status  string `json:"status"`
	UserID  string `json:"user_id,omitempty"`
	Message string `json:"message"`
}

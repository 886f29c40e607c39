// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package auth

import (
	"errors"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
)

// validate caches struct metadata; it holds no request state.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// RegistrationRules describes what a role must supply to sign up.
type RegistrationRules struct {
	// SelfService is false for roles that can only be provisioned by an operator.
	SelfService           bool
	RequiresStudentNumber bool
	RequiresStaffID       bool
	MinPasswordLength     int
}

// registrationRules is the per-role rule table.
var registrationRules = map[Role]RegistrationRules{
	RoleStudent:  {SelfService: true, RequiresStudentNumber: true, MinPasswordLength: 8},
	RoleLecturer: {SelfService: true, RequiresStaffID: true, MinPasswordLength: 10},
	RoleGuest:    {SelfService: true, MinPasswordLength: 8},
	RoleAdmin:    {SelfService: false, MinPasswordLength: 12},
}

// RulesFor returns the registration rules of role.
func RulesFor(role Role) (RegistrationRules, bool) {
	rules, ok := registrationRules[role]
	return rules, ok
}

// RegistrationRequest is the sign-up payload.
type RegistrationRequest struct {
	Email         string `json:"email" validate:"required,email,max=254"`
	Password      string `json:"password" validate:"required,max=128"`
	Role          Role   `json:"role" validate:"required,oneof=student lecturer admin guest"`
	DisplayName   string `json:"display_name" validate:"omitempty,max=80"`
	StudentNumber string `json:"student_number" validate:"omitempty,numeric,min=6,max=12"`
	StaffID       string `json:"staff_id" validate:"omitempty,alphanum,min=4,max=16"`
}

// FieldErrors maps request field names to the rule they broke.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fe[k])
	}
	return "invalid fields: " + strings.Join(parts, ", ")
}

// ValidateRegistration checks req against its struct tags and the rules of
// the requested role. All problems are reported together as FieldErrors.
func ValidateRegistration(req RegistrationRequest) error {
	fields := FieldErrors{}

	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return oops.Code("USER_INVALID_REGISTRATION").Wrap(err)
		}
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
	}

	if rules, ok := registrationRules[req.Role]; ok {
		if !rules.SelfService {
			fields["role"] = "not_self_service"
		}
		if rules.RequiresStudentNumber && req.StudentNumber == "" {
			fields["student_number"] = "required"
		}
		if rules.RequiresStaffID && req.StaffID == "" {
			fields["staff_id"] = "required"
		}
		if _, bad := fields["password"]; !bad && len(req.Password) < rules.MinPasswordLength {
			fields["password"] = "min"
		}
	}

	if len(fields) > 0 {
		return oops.Code("USER_INVALID_REGISTRATION").
			With("role", string(req.Role)).
			Wrap(fields)
	}
	return nil
}

package validator

import (
	"context"
	"errors"
	"regexp"
	"strings"

	auth "authservice/internal/usecase/auth_usecase"

	"github.com/go-playground/validator/v10"
)

// 先頭 + は任意、数字10〜15桁
var phonePattern = regexp.MustCompile(`^\+?[0-9]{10,15}$`)

type registerRules struct {
	Email     string `validate:"required,email,max=100"`
	Password  string `validate:"required,min=8,max=72"`
	Name      string `validate:"required,max=100"`
	Surname   string `validate:"required,max=100"`
	Phone     string `validate:"omitempty,phone"`
	Address   string `validate:"max=255"`
	Role      string `validate:"required"`
	FleetType string `validate:"omitempty,max=30"`
	ZoneID    string `validate:"max=50"`
}

type loginRules struct {
	Email    string `validate:"required,email,max=100"`
	Password string `validate:"required,max=100"`
}

// 部分更新。*Set は「その項目を変更する」
type updateAccountRules struct {
	NameSet    bool
	SurnameSet bool
	Name       string `validate:"required_if=NameSet true,max=100"`
	Surname    string `validate:"required_if=SurnameSet true,max=100"`
	Phone      string `validate:"omitempty,phone"`
	Address    string `validate:"max=255"`
	FleetType  string `validate:"max=30"`
	ZoneID     string `validate:"max=50"`
}

// JSON のキー名でエラーを返す
var fieldNames = map[string]string{
	"Email":     "email",
	"Password":  "password",
	"Name":      "name",
	"Surname":   "surname",
	"Phone":     "phone",
	"Address":   "address",
	"Role":      "role",
	"FleetType": "fleetType",
	"ZoneID":    "zoneId",
}

type authValidator struct {
	validate *validator.Validate
}

// Usecaseは interface を依存注入
func NewAuthValidator() auth.AuthValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	// 登録に失敗するのは起動時のバグなので panic でよい
	if err := v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return &authValidator{validate: v}
}

// サインアップの入力を検証
func (v *authValidator) ValidateRegister(ctx context.Context, in auth.RegisterInput) error {
	return v.check(registerRules{
		Email:     strings.TrimSpace(in.Email),
		Password:  in.Password,
		Name:      strings.TrimSpace(in.Name),
		Surname:   strings.TrimSpace(in.Surname),
		Phone:     strings.TrimSpace(in.Phone),
		Address:   strings.TrimSpace(in.Address),
		Role:      strings.TrimSpace(in.Role),
		FleetType: strings.TrimSpace(in.FleetType),
		ZoneID:    strings.TrimSpace(in.ZoneID),
	})
}

// ログインの入力を検証
func (v *authValidator) ValidateLogin(ctx context.Context, in auth.LoginInput) error {
	return v.check(loginRules{
		Email:    strings.TrimSpace(in.Email),
		Password: in.Password,
	})
}

// 管理者によるプロフィール更新
func (v *authValidator) ValidateUpdateAccount(ctx context.Context, in auth.UpdateAccountInput) error {
	return v.check(updateAccountRules{
		NameSet:    in.Name != nil,
		SurnameSet: in.Surname != nil,
		Name:       trimmed(in.Name),
		Surname:    trimmed(in.Surname),
		Phone:      trimmed(in.Phone),
		Address:    trimmed(in.Address),
		FleetType:  trimmed(in.FleetType),
		ZoneID:     trimmed(in.ZoneID),
	})
}

func trimmed(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

func (v *authValidator) check(rules any) error {
	err := v.validate.Struct(rules)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return auth.ErrValidation
	}

	fields := make([]auth.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, auth.FieldError{
			Field:   jsonName(fe.Field()),
			Tag:     fe.Tag(),
			Message: message(fe),
		})
	}
	return &auth.ValidationError{Fields: fields}
}

func jsonName(field string) string {
	if n, ok := fieldNames[field]; ok {
		return n
	}
	return field
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "This field is required"
	case "email":
		return "Invalid email format"
	case "min":
		return "Value is too short"
	case "max":
		return "Value is too long"
	case "phone":
		return "Phone must be 10 to 15 digits"
	default:
		return "Invalid value"
	}
}

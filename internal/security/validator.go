package security

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator はgo-playground/validatorのラッパー。
// フィールド名にはjsonタグの名前を使う。
type Validator struct {
	validate *validator.Validate
}

// NewValidator はValidatorを生成する。
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v}
}

// ValidationError はフィールドごとの検証エラーを保持する。
type ValidationError struct {
	Fields map[string]string
}

// Error はerrorインターフェースを実装する。
// フィールド名順に並べるため出力は決定的。
func (e *ValidationError) Error() string {
	return "validation failed: " + e.Detail()
}

// Detail はUIに表示するためのエラー詳細を返す。
func (e *ValidationError) Detail() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, e.Fields[name])
	}
	return strings.Join(parts, ", ")
}

// Struct は構造体のvalidateタグを検証する。
// 検証エラーは*ValidationErrorとして返す。
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate: %w", err)
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return &ValidationError{Fields: fields}
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + "は必須です"
	case "email":
		return field + "はメールアドレスの形式で入力してください"
	case "min":
		return fmt.Sprintf("%sは%s文字以上で入力してください", field, fe.Param())
	case "max":
		return fmt.Sprintf("%sは%s文字以内で入力してください", field, fe.Param())
	default:
		return field + "が不正です"
	}
}

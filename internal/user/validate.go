package user

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hitoshi/friendsplace/internal/model"
)

// minBirthYear は受け付ける生年の下限。
const minBirthYear = 1900

// newValidator はjsonタグ名でエラーを報告するvalidatorを生成する。
// nowは生年の上限判定に使う。
func newValidator(now func() time.Time) *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	v.RegisterValidation("notfuture_year", func(fl validator.FieldLevel) bool {
		return fl.Field().Int() <= int64(now().Year())
	})
	v.RegisterValidation("relationship", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "", model.RelationshipSingle, model.RelationshipInRelationship,
			model.RelationshipMarried, model.RelationshipDivorced:
			return true
		}
		return false
	})
	return v
}

// validationError はvalidatorのエラーを1つのValidationErrorにまとめる。
func validationError(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return fmt.Errorf("入力検証に失敗しました: %w", err)
	}
	messages := make([]string, 0, len(ve))
	for _, fe := range ve {
		messages = append(messages, fieldMessage(fe))
	}
	return model.NewValidationError(messages...)
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	isString := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%sは必須です", field)
	case "alpha":
		return fmt.Sprintf("%sは英字のみで入力してください", field)
	case "email":
		return fmt.Sprintf("%sの形式が正しくありません", field)
	case "oneof":
		return fmt.Sprintf("%sは次のいずれかを指定してください: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "relationship":
		return fmt.Sprintf("%sは次のいずれかを指定してください: single, in a relationship, married, divorced", field)
	case "notfuture_year":
		return fmt.Sprintf("%sは現在の年以前を指定してください", field)
	case "min":
		if isString {
			return fmt.Sprintf("%sは%s文字以上で入力してください", field, fe.Param())
		}
		return fmt.Sprintf("%sは%s以上を指定してください", field, fe.Param())
	case "max":
		if isString {
			return fmt.Sprintf("%sは%s文字以内で入力してください", field, fe.Param())
		}
		return fmt.Sprintf("%sは%s以下を指定してください", field, fe.Param())
	default:
		return fmt.Sprintf("%sが不正です", field)
	}
}

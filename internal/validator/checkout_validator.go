package validator

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"marketplace/internal/domain/model"
	"marketplace/internal/usecase"

	playground "github.com/go-playground/validator/v10"
)

// 先頭の+は任意、数字で始まり数字で終わる。間は数字・空白・括弧・ハイフン。
var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ()\-]{6,18}[0-9]$`)

type checkoutValidator struct {
	v *playground.Validate
}

// Usecaseは interface を依存注入
func NewCheckoutValidator() usecase.CheckoutValidator {
	v := playground.New()

	// エラーの項目名はJSONの名前で返す
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	mustRegister(v, "phone", func(fl playground.FieldLevel) bool {
		return phonePattern.MatchString(strings.TrimSpace(fl.Field().String()))
	})

	return &checkoutValidator{v: v}
}

// 登録失敗は起動時の設定ミスなので落とす
func mustRegister(v *playground.Validate, tag string, fn playground.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validation %q: %v", tag, err))
	}
}

func (c *checkoutValidator) ValidateDeliveryAddress(addr model.DeliveryAddress) map[string]string {
	err := c.v.Struct(trimAddress(addr))
	if err == nil {
		return nil
	}

	verrs, ok := err.(playground.ValidationErrors)
	if !ok {
		return map[string]string{"deliveryInfo": "invalid"}
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = message(fe)
	}
	return fields
}

func message(fe playground.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "len":
		return "must be " + fe.Param() + " characters"
	case "numeric":
		return "must contain digits only"
	case "phone":
		return "invalid phone number"
	}
	return "invalid"
}

func trimAddress(a model.DeliveryAddress) model.DeliveryAddress {
	a.FullName = strings.TrimSpace(a.FullName)
	a.StreetAddress = strings.TrimSpace(a.StreetAddress)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.City = strings.TrimSpace(a.City)
	a.Phone = strings.TrimSpace(a.Phone)
	return a
}

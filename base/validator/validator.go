// Package validator plugs go-playground/validator into echo's c.Validate.
package validator

import (
	"reflect"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// TagAddress is the struct tag for fields holding a hex address
const TagAddress = "address"

// IsValidAddress wants the 0x prefix and exactly 40 hex digits, checksum
// casing is not enforced
func IsValidAddress(s string) bool {
	return len(s) == 2+2*common.AddressLength && common.IsHexAddress(s)
}

type structValidator struct {
	v *validator.Validate
}

// NewCustomValidator registers the address tag on v
func NewCustomValidator(v *validator.Validate) echo.Validator {
	if err := v.RegisterValidation(TagAddress, isAddressField); err != nil {
		// only fails for an empty tag or a nil func
		panic(err)
	}
	return &structValidator{v: v}
}

func isAddressField(fl validator.FieldLevel) bool {
	f := fl.Field()
	return f.Kind() == reflect.String && IsValidAddress(f.String())
}

func (s *structValidator) Validate(i interface{}) error {
	return s.v.Struct(i)
}

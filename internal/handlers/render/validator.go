package render

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/numrent/internal/models"
)

func configureValidator(validate *validator.Validate) {
	// Validate money amounts by their text form
	validate.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
	_ = validate.RegisterValidation("positive", validatePositiveDecimal)
	validate.RegisterTagNameFunc(useJSONTagNames)
}

func useJSONTagNames(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	// skip if tag key says it should be ignored
	if name == "-" {
		return ""
	}
	return name
}

func decimalValue(field reflect.Value) any {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		return d.String()
	}
	return nil
}

func validatePositiveDecimal(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return false
	}
	return models.ValidAmount(d)
}

// Package checkout validates the delivery-method-specific address form a
// shopper submits to turn a cart into an order.
package checkout

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/rudotcom/electron/internal/pricing"
)

const (
	PaymentOnline = "online"
	PaymentCash   = "cash"
)

var ErrUnknownDelivery = errors.New("unknown delivery type")

// Form is the checkout submission. Which fields are required depends on the
// delivery method: self-pickup needs no address at all, courier needs an
// address and phone, postal methods need the full postal address.
type Form struct {
	DeliveryType pricing.DeliveryType `json:"delivery_type" validate:"required"`
	PaymentType  string               `json:"payment_type" validate:"required,oneof=online cash"`
	FirstName    string               `json:"first_name" validate:"required,max=255"`
	LastName     string               `json:"last_name" validate:"required,max=255"`
	Patronymic   string               `json:"patronymic" validate:"max=255"`
	Email        string               `json:"email" validate:"required,email"`
	Phone        string               `json:"phone" validate:"max=20"`
	PostalCode   string               `json:"postal_code" validate:"max=30"`
	Settlement   string               `json:"settlement" validate:"max=255"`
	Address      string               `json:"address" validate:"max=1024"`
	Comment      string               `json:"comment"`
}

// requiredByDelivery lists the extra fields each delivery method demands on
// top of the baseline tags above.
var requiredByDelivery = map[pricing.DeliveryType][]string{
	pricing.DeliverySelf:      {},
	pricing.DeliveryCourier:   {"phone", "address"},
	pricing.DeliveryPickup:    {"phone", "settlement", "address"},
	pricing.DeliveryPostRu:    {"phone", "postal_code", "settlement", "address"},
	pricing.DeliveryPostWorld: {"phone", "postal_code", "settlement", "address"},
}

// FieldErrors maps a field name to a validation message, mirroring how the
// checkout page redisplays the form.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	return "invalid checkout form: " + strings.Join(fields, ", ")
}

var validate = validator.New()

func init() {
	// report errors under the field's wire name
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Validate checks the baseline tags and the delivery-specific requirements.
// It returns FieldErrors so the handler can redisplay field-level messages.
func (f Form) Validate() error {
	rules, ok := requiredByDelivery[f.DeliveryType]
	if !ok {
		return ErrUnknownDelivery
	}

	fieldErrs := FieldErrors{}

	if err := validate.Struct(f); err != nil {
		var vErrs validator.ValidationErrors
		if !errors.As(err, &vErrs) {
			return fmt.Errorf("validating form: %w", err)
		}
		for _, vErr := range vErrs {
			switch vErr.Tag() {
			case "required":
				fieldErrs[strings.ToLower(vErr.Field())] = "value missing"
			case "email":
				fieldErrs[strings.ToLower(vErr.Field())] = "invalid e-mail address"
			case "oneof":
				fieldErrs[strings.ToLower(vErr.Field())] = "must be one of: " + vErr.Param()
			default:
				fieldErrs[strings.ToLower(vErr.Field())] = "invalid value"
			}
		}
	}

	for _, field := range rules {
		if f.fieldValue(field) == "" {
			fieldErrs[field] = "value missing"
		}
	}

	// only self-pickup can be paid at the counter
	if f.DeliveryType != pricing.DeliverySelf && f.PaymentType == PaymentCash {
		fieldErrs["payment_type"] = "cash payment is available for self-pickup only"
	}

	if len(fieldErrs) > 0 {
		return fieldErrs
	}
	return nil
}

func (f Form) fieldValue(name string) string {
	switch name {
	case "phone":
		return strings.TrimSpace(f.Phone)
	case "postal_code":
		return strings.TrimSpace(f.PostalCode)
	case "settlement":
		return strings.TrimSpace(f.Settlement)
	case "address":
		return strings.TrimSpace(f.Address)
	default:
		return "?"
	}
}

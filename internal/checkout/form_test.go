package checkout_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rudotcom/electron/internal/checkout"
	"github.com/rudotcom/electron/internal/pricing"
)

func baseForm(dt pricing.DeliveryType) checkout.Form {
	return checkout.Form{
		DeliveryType: dt,
		PaymentType:  checkout.PaymentOnline,
		FirstName:    "Anna",
		LastName:     "Petrova",
		Email:        "anna@example.com",
		Phone:        "+79990001122",
		PostalCode:   "190000",
		Settlement:   "Saint Petersburg",
		Address:      "Nevsky 1-2-3",
	}
}

func TestFormValidatePerDeliveryMethod(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*checkout.Form)
		wantField string
	}{
		{
			name:   "self pickup needs no address",
			mutate: func(f *checkout.Form) { f.DeliveryType = pricing.DeliverySelf; f.Address = ""; f.PostalCode = ""; f.Phone = "" },
		},
		{
			name:      "courier requires address",
			mutate:    func(f *checkout.Form) { f.Address = "" },
			wantField: "address",
		},
		{
			name:      "courier requires phone",
			mutate:    func(f *checkout.Form) { f.Phone = "" },
			wantField: "phone",
		},
		{
			name:      "domestic post requires postal code",
			mutate:    func(f *checkout.Form) { f.DeliveryType = pricing.DeliveryPostRu; f.PostalCode = "" },
			wantField: "postal_code",
		},
		{
			name:      "international post requires settlement",
			mutate:    func(f *checkout.Form) { f.DeliveryType = pricing.DeliveryPostWorld; f.Settlement = "" },
			wantField: "settlement",
		},
		{
			name:      "first name always required",
			mutate:    func(f *checkout.Form) { f.FirstName = "" },
			wantField: "first_name",
		},
		{
			name:      "email must be valid",
			mutate:    func(f *checkout.Form) { f.Email = "nope" },
			wantField: "email",
		},
		{
			name:      "cash only for self pickup",
			mutate:    func(f *checkout.Form) { f.PaymentType = checkout.PaymentCash },
			wantField: "payment_type",
		},
		{
			name:   "cash allowed for self pickup",
			mutate: func(f *checkout.Form) { f.DeliveryType = pricing.DeliverySelf; f.PaymentType = checkout.PaymentCash },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := baseForm(pricing.DeliveryCourier)
			tt.mutate(&form)

			err := form.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}

			var fieldErrs checkout.FieldErrors
			require.ErrorAs(t, err, &fieldErrs)
			assert.Contains(t, fieldErrs, tt.wantField)
		})
	}
}

func TestFormValidateUnknownDelivery(t *testing.T) {
	form := baseForm("teleport")
	err := form.Validate()
	assert.True(t, errors.Is(err, checkout.ErrUnknownDelivery))
}

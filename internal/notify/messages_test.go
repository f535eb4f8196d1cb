package notify

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/rudotcom/electron/internal/orders"
	"github.com/rudotcom/electron/internal/pricing"
)

func TestShopperMessages(t *testing.T) {
	assert.Equal(t, "Товар «Чайник» добавлен в корзину", ItemAdded("Чайник"))
	assert.Equal(t, "Товар «Чайник» удален из корзины", ItemRemoved("Чайник"))
	assert.Equal(t, "Количество товара «Чайник» изменено на 3 шт.", QuantityChanged("Чайник", 3))
	assert.Equal(t, "К Вашему заказу добавлен подарок: «Кружка»", GiftAdded("Кружка"))
	assert.Equal(t, "Заказ №7 оформлен. Спасибо за покупку!", OrderPlacedMessage(7))
}

func TestQuantityClampedZeroStock(t *testing.T) {
	assert.Equal(t, "Товара «Чайник» больше нет на складе, извините!", QuantityClamped("Чайник", 0))
	assert.Contains(t, QuantityClamped("Чайник", 1), "изменено на 1 шт.")
}

func TestOrderSummary(t *testing.T) {
	giftID := int64(5)
	order := orders.Order{
		ID: 12,
		Items: []orders.Item{
			{Title: "Чайник", Qty: 2},
		},
		GiftProductID: &giftID,
		TotalGross:    decimal.RequireFromString("3950.00"),
		Delivery:      pricing.DeliveryCourier,
		DeliveryCost:  decimal.RequireFromString("450.00"),
	}

	text := OrderSummary(order)
	assert.Contains(t, text, "Заказ №12")
	assert.Contains(t, text, "- Чайник, 2 шт")
	assert.Contains(t, text, "- Подарок: товар #5")
	assert.Contains(t, text, "Итого: 3950.00 р")
	assert.Contains(t, text, "Доставка: delivery_spb (450.00 р)")
}

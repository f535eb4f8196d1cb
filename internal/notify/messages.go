package notify

import (
	"fmt"
	"strings"

	"github.com/rudotcom/electron/internal/orders"
)

// Shopper-visible messages live here, outside the pricing/state-machine
// core, so wording (including grammatical agreement) can change without
// touching order logic.

func ItemAdded(title string) string {
	return fmt.Sprintf("Товар «%s» добавлен в корзину", title)
}

func ItemRemoved(title string) string {
	return fmt.Sprintf("Товар «%s» удален из корзины", title)
}

func QuantityChanged(title string, qty int) string {
	return fmt.Sprintf("Количество товара «%s» изменено на %d шт.", title, qty)
}

func QuantityClamped(title string, qty int) string {
	if qty == 0 {
		return fmt.Sprintf("Товара «%s» больше нет на складе, извините!", title)
	}
	return fmt.Sprintf("Количество товара «%s» изменено на %d шт.\nНа складе больше нет, извините!", title, qty)
}

func GiftRemoved(title string) string {
	return fmt.Sprintf("Подарок «%s» удален из заказа.\nЭтот товар уже раскупили, извините!", title)
}

func OrderPlacedMessage(orderID int64) string {
	return fmt.Sprintf("Заказ №%d оформлен. Спасибо за покупку!", orderID)
}

func GiftAdded(title string) string {
	return fmt.Sprintf("К Вашему заказу добавлен подарок: «%s»", title)
}

// OrderSummary builds the operator-channel text: contents, total and
// delivery details.
func OrderSummary(order orders.Order) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Заказ №%d\n", order.ID)
	for _, item := range order.Items {
		fmt.Fprintf(&b, "- %s, %d шт\n", item.Title, item.Qty)
	}
	if order.GiftProductID != nil {
		fmt.Fprintf(&b, "- Подарок: товар #%d\n", *order.GiftProductID)
	}
	fmt.Fprintf(&b, "Итого: %s р\n", order.TotalGross.StringFixed(2))
	if order.Delivery != "" {
		fmt.Fprintf(&b, "Доставка: %s (%s р)\n", order.Delivery, order.DeliveryCost.StringFixed(2))
	}
	if order.Address != "" {
		fmt.Fprintf(&b, "%s\n%s %s\n", order.Address, order.Settlement, order.PostalCode)
	}

	return b.String()
}

// Package notify dispatches order notifications: e-mail to the shopper and
// operator broadcasts over Kafka. Every method is fire-and-forget from the
// caller's point of view — a failed notification never rolls back an order
// transition.
package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/smtp"
	"strconv"
	"time"

	"github.com/rudotcom/electron/internal/orders"
	"github.com/rudotcom/electron/internal/stores/kafka"
	"github.com/rudotcom/electron/pkg/logkey"
)

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

type Conf struct {
	smtp SMTPConfig
	k    *kafka.Conf
}

func NewConf(smtpCfg SMTPConfig, k *kafka.Conf) (*Conf, error) {
	if k == nil {
		return nil, fmt.Errorf("kafka conf is nil")
	}
	return &Conf{smtp: smtpCfg, k: k}, nil
}

// OrderPlaced sends the confirmation e-mail and broadcasts the order to the
// operations channel. Called in a goroutine after checkout commits.
func (c *Conf) OrderPlaced(order orders.Order) {
	if order.Email != "" {
		subject := fmt.Sprintf("Заказ №%d оформлен", order.ID)
		body := fmt.Sprintf("Спасибо за Ваш заказ №%d на сумму %s р.\nМы уже начали его собирать.",
			order.ID, order.TotalGross.StringFixed(2))
		if err := c.sendMail(order.Email, subject, body); err != nil {
			slog.Error("order placed email failed",
				slog.Int64(logkey.OrderID, order.ID), slog.String(logkey.ERROR, err.Error()))
		}
	}

	event, err := json.Marshal(kafka.OrderPlacedEvent{
		OrderId:      order.ID,
		TotalGross:   order.TotalGross.StringFixed(2),
		DeliveryType: string(order.Delivery),
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		slog.Error("marshal order placed event", slog.String(logkey.ERROR, err.Error()))
		return
	}
	if err := c.k.ProduceMessage(kafka.TopicOrderPlaced, orderKey(order.ID), event); err != nil {
		slog.Error("produce order placed event",
			slog.Int64(logkey.OrderID, order.ID), slog.String(logkey.ERROR, err.Error()))
	}

	c.opsBroadcast("Новый заказ", OrderSummary(order))
}

// PaymentSucceeded notifies the shopper and operations about a captured
// payment and emits one order-paid event per line item.
func (c *Conf) PaymentSucceeded(order orders.Order) {
	if order.Email != "" {
		subject := fmt.Sprintf("Заказ №%d оплачен", order.ID)
		body := fmt.Sprintf("Оплата заказа №%d на сумму %s р. получена.\nСпасибо, что выбрали нас!",
			order.ID, order.TotalGross.StringFixed(2))
		if err := c.sendMail(order.Email, subject, body); err != nil {
			slog.Error("payment email failed",
				slog.Int64(logkey.OrderID, order.ID), slog.String(logkey.ERROR, err.Error()))
		}
	}

	now := time.Now().UTC()
	for _, item := range order.Items {
		event, err := json.Marshal(kafka.OrderPaidEvent{
			OrderId:   order.ID,
			ProductId: item.ProductID,
			Quantity:  item.Qty,
			CreatedAt: now,
		})
		if err != nil {
			slog.Error("marshal order paid event", slog.String(logkey.ERROR, err.Error()))
			return
		}
		if err := c.k.ProduceMessage(kafka.TopicOrderPaid, orderKey(order.ID), event); err != nil {
			slog.Error("produce order paid event",
				slog.Int64(logkey.OrderID, order.ID), slog.String(logkey.ERROR, err.Error()))
			return
		}
	}

	c.opsBroadcast("Заказ оплачен", OrderSummary(order))
}

// OrderShipped mails the tracking code to the shopper.
func (c *Conf) OrderShipped(order orders.Order) {
	if order.Email == "" {
		return
	}
	subject := fmt.Sprintf("Заказ №%d отправлен", order.ID)
	body := fmt.Sprintf("Ваш заказ №%d передан в доставку.", order.ID)
	if order.TrackingCode != "" {
		body += fmt.Sprintf("\nТрек-номер для отслеживания: %s", order.TrackingCode)
	}
	if err := c.sendMail(order.Email, subject, body); err != nil {
		slog.Error("shipped email failed",
			slog.Int64(logkey.OrderID, order.ID), slog.String(logkey.ERROR, err.Error()))
	}
}

func (c *Conf) opsBroadcast(subject, text string) {
	msg, err := json.Marshal(kafka.OpsMessage{
		Subject:   subject,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		slog.Error("marshal ops message", slog.String(logkey.ERROR, err.Error()))
		return
	}
	if err := c.k.ProduceMessage(kafka.TopicOpsChannel, nil, msg); err != nil {
		slog.Error("produce ops message", slog.String(logkey.ERROR, err.Error()))
	}
}

func (c *Conf) sendMail(to, subject, body string) error {
	message := []byte("To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"\r\n" +
		body + "\r\n")

	auth := smtp.PlainAuth("", c.smtp.Username, c.smtp.Password, c.smtp.Host)
	if err := smtp.SendMail(c.smtp.Host+":"+c.smtp.Port, auth, c.smtp.From, []string{to}, message); err != nil {
		return fmt.Errorf("sending mail: %w", err)
	}
	return nil
}

func orderKey(orderID int64) []byte {
	return []byte(strconv.FormatInt(orderID, 10))
}

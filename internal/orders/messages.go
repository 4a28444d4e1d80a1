package orders

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/VladKvetkin/keyflow/internal/entities"
	"github.com/VladKvetkin/keyflow/internal/notifier"
	"github.com/VladKvetkin/keyflow/internal/services/converter"
	"github.com/shopspring/decimal"
)

const (
	dateLayout     = "02.01.2006"
	dateTimeLayout = "02.01.2006 15:04"
	payloadRule    = "━━━━━━━━━━━━━━━━━━━━"
)

var paymentIcons = map[string]string{
	entities.PaymentMethodSBP:    "🏦",
	entities.PaymentMethodCrypto: "₿",
	entities.PaymentMethodCard:   "💳",
}

func orderArg(orderID int64) []string {
	return []string{strconv.FormatInt(orderID, 10)}
}

// MainMenu is the user keyboard shown after delivery and on /start.
func (s *Service) MainMenu() [][]notifier.Button {
	var rows [][]notifier.Button

	if s.options.WebAppURL != "" {
		rows = append(rows, []notifier.Button{{Text: "🛍 Открыть магазин", WebApp: s.options.WebAppURL}})
	}

	rows = append(rows,
		[]notifier.Button{{Text: "📋 Мои заказы", Action: notifier.ActionOrders}},
		[]notifier.Button{{Text: "🎁 Реферальная программа", Action: notifier.ActionReferral}},
	)

	if s.options.Support != "" {
		rows = append(rows, []notifier.Button{{Text: "💬 Поддержка", URL: "https://t.me/" + s.options.Support}})
	}

	return rows
}

func orderCreatedMessage(orderID int64, label string, amount decimal.Decimal) notifier.Message {
	return notifier.Message{
		Text: fmt.Sprintf(
			"🛍 <b>Заказ #%d создан!</b>\n\n📦 %s\n💰 Сумма: <b>%s₽</b>\n\n⏳ Ожидаем оплату...",
			orderID, notifier.Escape(label), converter.FormatAmount(amount),
		),
	}
}

func paymentMessage(orderID int64, instructions string) notifier.Message {
	return notifier.Message{
		Text: instructions,
		Buttons: [][]notifier.Button{
			{{Text: "✅ Я оплатил", Action: notifier.ActionClaim, Args: orderArg(orderID)}},
		},
	}
}

func (s *Service) newOrderMessage(orderID int64, user entities.User, label string, amount decimal.Decimal, method string) notifier.Message {
	return notifier.Message{
		Text: fmt.Sprintf(
			"🔔 <b>Новый заказ #%d</b>\n\n👤 %s (ID: %d)\n🛍 %s\n💰 %s₽ %s %s\n⏰ %s",
			orderID, notifier.Escape(displayName(user)), user.ID, notifier.Escape(label), converter.FormatAmount(amount),
			paymentIcons[method], strings.ToUpper(method), s.options.Now().Format(dateTimeLayout),
		),
	}
}

func claimedMessage(orderID int64) notifier.Message {
	return notifier.Message{
		Text: fmt.Sprintf(
			"🔍 <b>Проверяем оплату по заказу #%d</b>\n\n"+
				"Обычно подтверждение занимает 5–15 минут.\nМы сразу уведомим тебя!",
			orderID,
		),
	}
}

func (s *Service) claimedOperatorMessage(order entities.Order) notifier.Message {
	return notifier.Message{
		Text: fmt.Sprintf(
			"💰 <b>Клиент заявил об оплате — Заказ #%d</b>\n\n📦 %s\n👤 ID: %d\n💰 %s₽\n⏰ %s",
			order.ID, notifier.Escape(order.Label()), order.UserID, converter.FormatAmount(order.Amount),
			s.options.Now().Format(dateTimeLayout),
		),
		Buttons: [][]notifier.Button{
			{{Text: "✅ Подтвердить оплату", Action: notifier.ActionConfirm, Args: orderArg(order.ID)}},
			{{Text: "❌ Отклонить", Action: notifier.ActionReject, Args: orderArg(order.ID)}},
		},
	}
}

func confirmedMessage(orderID int64) notifier.Message {
	return notifier.Message{
		Text: fmt.Sprintf(
			"✅ <b>Оплата подтверждена!</b>\n\nЗаказ #%d принят в обработку.\n"+
				"Данные подписки придут в течение 15 минут.",
			orderID,
		),
	}
}

func (s *Service) rejectedMessage(orderID int64) notifier.Message {
	return notifier.Message{
		Text: fmt.Sprintf(
			"❌ <b>Заказ #%d отклонён.</b>\n\nОплата не найдена или отменена.\n"+
				"Если ты уже оплатил — напиши в поддержку: @%s",
			orderID, s.options.Support,
		),
	}
}

func (s *Service) cancelledMessage(orderID int64) notifier.Message {
	return notifier.Message{
		Text: fmt.Sprintf(
			"❌ <b>Заказ #%d отменён.</b>\n\nОплата будет возвращена.\n"+
				"Вопросы по возврату: @%s",
			orderID, s.options.Support,
		),
	}
}

func (s *Service) deliveryMessage(order entities.Order, payload string) notifier.Message {
	var expires string
	if order.ExpiresAt != nil {
		expires = fmt.Sprintf("\n\n📅 Подписка до: <b>%s</b>", order.ExpiresAt.Format(dateLayout))
	}

	return notifier.Message{
		Text: fmt.Sprintf(
			"🎉 <b>Твоя подписка готова!</b>\n\n📦 Заказ #%d · %s\n%s\n%s\n%s%s\n\n"+
				"✨ Спасибо за покупку в KeyFlow!\nПри проблемах: @%s",
			order.ID, notifier.Escape(order.ServiceName), payloadRule, notifier.Escape(payload), payloadRule, expires, s.options.Support,
		),
		Buttons: s.MainMenu(),
	}
}

func referralBonusMessage(bonus decimal.Decimal) notifier.Message {
	return notifier.Message{
		Text: fmt.Sprintf(
			"🎉 <b>Тебе начислен бонус %s₽!</b>\n\nТвой друг совершил первую покупку в KeyFlow.\n"+
				"Бонус доступен в разделе «Реферальная программа».",
			converter.FormatAmount(bonus),
		),
	}
}

func (s *Service) reminderMessage(order entities.Order, daysLeft int) notifier.Message {
	buttons := [][]notifier.Button{
		{{Text: "🔄 Продлить в 1 клик", Action: notifier.ActionReorder, Args: orderArg(order.ID)}},
	}

	if s.options.WebAppURL != "" {
		buttons = append(buttons, []notifier.Button{{Text: "🛍 В магазин", WebApp: s.options.WebAppURL}})
	}

	var expires string
	if order.ExpiresAt != nil {
		expires = order.ExpiresAt.Format(dateLayout)
	}

	return notifier.Message{
		Text: fmt.Sprintf(
			"⏰ <b>Напоминание о подписке</b>\n\n📦 <b>%s</b> — %s\n"+
				"⚠️ Заканчивается через <b>%s</b> (%s)\n\nПродли прямо сейчас в 1 клик 👇",
			notifier.Escape(order.ServiceName), notifier.Escape(order.Duration), pluralDays(daysLeft), expires,
		),
		Buttons: buttons,
	}
}

func displayName(user entities.User) string {
	if user.Username != "" {
		return "@" + user.Username
	}

	if user.FullName != "" {
		return user.FullName
	}

	return "без ника"
}

func pluralDays(n int) string {
	switch {
	case n%10 == 1 && n%100 != 11:
		return fmt.Sprintf("%d день", n)
	case n%10 >= 2 && n%10 <= 4 && (n%100 < 10 || n%100 >= 20):
		return fmt.Sprintf("%d дня", n)
	default:
		return fmt.Sprintf("%d дней", n)
	}
}

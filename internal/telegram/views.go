package telegram

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/VladKvetkin/keyflow/internal/entities"
	"github.com/VladKvetkin/keyflow/internal/ledger"
	"github.com/VladKvetkin/keyflow/internal/notifier"
	"github.com/VladKvetkin/keyflow/internal/orders"
	"github.com/VladKvetkin/keyflow/internal/services/converter"
	"github.com/shopspring/decimal"
)

// Operator menu actions.
const (
	actionAdminMain      = "adm_main"
	actionAdminStats     = "adm_stats"
	actionAdminBalance   = "adm_balance"
	actionAdminWithdraw  = "adm_withdraw"
	actionAdminOrders    = "adm_orders"
	actionAdminUsers     = "adm_users"
	actionAdminBroadcast = "adm_broadcast"
	actionAdminServices  = "adm_services"
	actionAdminToggle    = "adm_toggle"
	actionBackMain       = "back_main"
)

const (
	dateLayout      = "02.01.2006"
	userOrdersShown = 8
	recentUsers     = 10
	shareText       = "Покупай зарубежные подписки через KeyFlow — быстро, надёжно, из России!"
)

var statusIcons = map[string]string{
	entities.OrderStatusPending:        "⏳",
	entities.OrderStatusWaitingConfirm: "🔍",
	entities.OrderStatusPaid:           "💰",
	entities.OrderStatusCompleted:      "✅",
	entities.OrderStatusCancelled:      "❌",
}

func backToAdmin() [][]notifier.Button {
	return [][]notifier.Button{{{Text: "◀️ Назад в админку", Action: actionAdminMain}}}
}

func adminMenu() notifier.Message {
	return notifier.Message{
		Text: "👑 <b>Панель администратора</b>",
		Buttons: [][]notifier.Button{
			{{Text: "📊 Статистика", Action: actionAdminStats}, {Text: "💰 Баланс и вывод", Action: actionAdminBalance}},
			{{Text: "📦 Активные заказы", Action: actionAdminOrders}, {Text: "👥 Пользователи", Action: actionAdminUsers}},
			{{Text: "📢 Рассылка", Action: actionAdminBroadcast}, {Text: "⚙️ Услуги", Action: actionAdminServices}},
		},
	}
}

func welcomeView(firstName string, registration orders.Registration, discount decimal.Decimal, menu [][]notifier.Button) notifier.Message {
	var discountText string
	if registration.Referred && discount.IsPositive() {
		discountText = fmt.Sprintf(
			"\n\n🎁 Ты пришёл по реферальной ссылке — тебе <b>скидка %s₽</b> на первый заказ!",
			converter.FormatAmount(discount),
		)
	}

	return notifier.Message{
		Text: fmt.Sprintf(
			"👋 Привет, <b>%s</b>!%s\n\n"+
				"🔑 <b>KeyFlow</b> — зарубежные подписки из России\n\n"+
				"✅ Spotify, ChatGPT, Claude, Discord и другие\n"+
				"✅ Оплата СБП, картой РФ или криптой\n"+
				"✅ Выдача за 15 минут · Поддержка 24/7\n"+
				"✅ Напомним за 3 дня до окончания подписки",
			escape(firstName), discountText,
		),
		Buttons: menu,
	}
}

func operatorWelcomeView(firstName string) notifier.Message {
	menu := adminMenu()
	menu.Text = fmt.Sprintf("👑 Добро пожаловать, <b>%s</b>!\n\nИспользуй /admin для управления магазином.", escape(firstName))

	return menu
}

func ordersView(list []entities.Order, menu [][]notifier.Button) notifier.Message {
	if len(list) == 0 {
		return notifier.Message{
			Text:    "📭 У тебя пока нет заказов.\n\nОткрой магазин и оформи первый!",
			Buttons: menu,
		}
	}

	if len(list) > userOrdersShown {
		list = list[:userOrdersShown]
	}

	var (
		text    strings.Builder
		buttons [][]notifier.Button
	)

	text.WriteString("📋 <b>Твои заказы:</b>\n\n")

	for _, order := range list {
		var expires string
		if order.ExpiresAt != nil {
			expires = " · до " + order.ExpiresAt.Format(dateLayout)
		}

		fmt.Fprintf(
			&text, "%s <b>#%d</b> %s\n   %s₽ · %s%s\n\n",
			statusIcon(order.Status), order.ID, escape(order.Label()),
			converter.FormatAmount(order.Amount), order.CreatedAt.Format(dateLayout), expires,
		)

		if order.Status == entities.OrderStatusCompleted {
			buttons = append(buttons, []notifier.Button{{
				Text:   "🔄 Купить снова: " + order.Label(),
				Action: notifier.ActionReorder,
				Args:   []string{strconv.FormatInt(order.ID, 10)},
			}})
		}
	}

	buttons = append(buttons, []notifier.Button{{Text: "◀️ Назад", Action: actionBackMain}})

	return notifier.Message{Text: text.String(), Buttons: buttons}
}

func referralView(referral orders.Referral) notifier.Message {
	share := "https://t.me/share/url?" + url.Values{"url": {referral.Link}, "text": {shareText}}.Encode()

	return notifier.Message{
		Text: fmt.Sprintf(
			"🎁 <b>Реферальная программа KeyFlow</b>\n\n"+
				"Приглашай друзей — зарабатывай бонусы!\n\n"+
				"💰 <b>Ты получаешь:</b> %s₽ за каждого друга\n"+
				"🎉 <b>Друг получает:</b> скидку %s₽ на первый заказ\n\n"+
				"👥 Приглашено друзей: <b>%d</b>\n"+
				"💳 Бонусный баланс: <b>%s₽</b>\n\n"+
				"🔗 <b>Твоя ссылка:</b>\n<code>%s</code>",
			converter.FormatAmount(referral.BonusPerFriend), converter.FormatAmount(referral.Discount),
			referral.Count, converter.FormatAmount(referral.BonusBalance), referral.Link,
		),
		Buttons: [][]notifier.Button{
			{{Text: "📤 Поделиться ссылкой", URL: share}},
			{{Text: "◀️ Назад", Action: actionBackMain}},
		},
	}
}

func statsView(stats ledger.Stats) notifier.Message {
	active := stats.ByStatus[entities.OrderStatusPending].Count +
		stats.ByStatus[entities.OrderStatusWaitingConfirm].Count +
		stats.ByStatus[entities.OrderStatusPaid].Count

	return notifier.Message{
		Text: fmt.Sprintf(
			"📊 <b>Статистика KeyFlow</b>\n\n"+
				"👥 Пользователей: <b>%d</b>\n\n"+
				"📦 Заказов всего: <b>%d</b>\n"+
				"   ✅ Выполнено: %d\n   🔄 Активных: %d\n   ❌ Отменено: %d\n\n"+
				"💰 Выручка:\n"+
				"   Сегодня: <b>%s₽</b> (%d заказов)\n"+
				"   Неделя:  <b>%s₽</b>\n   Месяц:   <b>%s₽</b>\n   Всего:   <b>%s₽</b>\n\n"+
				"💳 По способам:\n   СБП: %s₽ · Крипта: %s₽ · Карта: %s₽",
			stats.Users, stats.Total.Orders,
			stats.ByStatus[entities.OrderStatusCompleted].Count, active,
			stats.ByStatus[entities.OrderStatusCancelled].Count,
			converter.FormatAmount(stats.Today.Revenue), stats.Today.Orders,
			converter.FormatAmount(stats.Week.Revenue), converter.FormatAmount(stats.Month.Revenue),
			converter.FormatAmount(stats.Total.Revenue),
			converter.FormatAmount(stats.ByMethod[entities.PaymentMethodSBP]),
			converter.FormatAmount(stats.ByMethod[entities.PaymentMethodCrypto]),
			converter.FormatAmount(stats.ByMethod[entities.PaymentMethodCard]),
		),
		Buttons: backToAdmin(),
	}
}

func balanceView(balance ledger.Balance) notifier.Message {
	return notifier.Message{
		Text: fmt.Sprintf(
			"💰 <b>Баланс</b>\n\nВсего заработано: <b>%s₽</b>\nДоступно:         <b>%s₽</b>\n"+
				"Заморожено:       <b>%s₽</b>\nВыведено:         <b>%s₽</b>",
			converter.FormatAmount(balance.TotalEarned), converter.FormatAmount(balance.Available),
			converter.FormatAmount(balance.Frozen), converter.FormatAmount(balance.Withdrawn),
		),
		Buttons: [][]notifier.Button{
			{{Text: "💸 Вывести средства", Action: actionAdminWithdraw}},
			{{Text: "◀️ Назад", Action: actionAdminMain}},
		},
	}
}

func activeOrdersView(list []entities.Order) notifier.Message {
	if len(list) == 0 {
		return notifier.Message{Text: "📭 Активных заказов нет.", Buttons: backToAdmin()}
	}

	var (
		text    strings.Builder
		buttons [][]notifier.Button
	)

	text.WriteString("📦 <b>Активные заказы:</b>\n\n")

	for _, order := range list {
		username := order.Username
		if username == "" {
			username = "?"
		}

		fmt.Fprintf(
			&text, "#%d @%s · %s · %s₽ · %s\n",
			order.ID, escape(username), escape(order.Label()), converter.FormatAmount(order.Amount), order.Status,
		)

		args := []string{strconv.FormatInt(order.ID, 10)}

		switch order.Status {
		case entities.OrderStatusWaitingConfirm:
			buttons = append(buttons, []notifier.Button{
				{Text: fmt.Sprintf("✅ Подтвердить #%d", order.ID), Action: notifier.ActionConfirm, Args: args},
				{Text: "❌", Action: notifier.ActionReject, Args: args},
			})
		case entities.OrderStatusPaid:
			buttons = append(buttons, []notifier.Button{
				{Text: fmt.Sprintf("📦 Выдать #%d", order.ID), Action: notifier.ActionDeliver, Args: args},
				{Text: "🚫", Action: notifier.ActionCancelPaid, Args: args},
			})
		}
	}

	buttons = append(buttons, backToAdmin()...)

	return notifier.Message{Text: text.String(), Buttons: buttons}
}

func usersView(total int64, users []entities.User) notifier.Message {
	var text strings.Builder

	fmt.Fprintf(&text, "👥 <b>Пользователи</b>\n\nВсего: <b>%d</b>\n\n<b>Последние:</b>\n", total)

	for _, user := range users {
		username := user.Username
		if username == "" {
			username = "без ника"
		}

		fmt.Fprintf(&text, "• @%s — %s\n", escape(username), user.CreatedAt.Format(dateLayout))
	}

	return notifier.Message{Text: text.String(), Buttons: backToAdmin()}
}

func servicesView(services []entities.Service) notifier.Message {
	var (
		text    strings.Builder
		buttons [][]notifier.Button
	)

	text.WriteString("⚙️ <b>Управление услугами</b>\n\n")

	for _, service := range services {
		status, toggle := "❌", "🟢"
		if service.IsActive {
			status, toggle = "✅", "🔴"
		}

		fmt.Fprintf(&text, "%s %s — от %s₽\n", status, escape(service.Name), converter.FormatAmount(service.MinPrice))

		buttons = append(buttons, []notifier.Button{{
			Text:   toggle + " " + service.Name,
			Action: actionAdminToggle,
			Args:   []string{strconv.FormatInt(service.ID, 10)},
		}})
	}

	buttons = append(buttons, []notifier.Button{{Text: "◀️ Назад", Action: actionAdminMain}})

	return notifier.Message{Text: text.String(), Buttons: buttons}
}

func statusIcon(status string) string {
	if icon, ok := statusIcons[status]; ok {
		return icon
	}

	return "❓"
}

// errorText is the short answer shown to a chat user for a failed action.
func errorText(err error) string {
	switch {
	case errors.Is(err, orders.ErrUnauthorized):
		return "⛔️ Недостаточно прав"
	case errors.Is(err, orders.ErrAlreadyClaimed):
		return "🔍 Оплата уже на проверке"
	case errors.Is(err, orders.ErrInvalidTransition):
		return "⚠️ Заказ уже обработан"
	case errors.Is(err, orders.ErrOrderNotFound):
		return "❌ Заказ не найден"
	case errors.Is(err, orders.ErrServiceInactive),
		errors.Is(err, orders.ErrUnknownService),
		errors.Is(err, orders.ErrUnknownVariant):
		return "❌ Услуга недоступна"
	case errors.Is(err, orders.ErrUnknownUser):
		return "Нажми /start, чтобы начать"
	case errors.Is(err, orders.ErrInsufficientBalance):
		return "❌ Недостаточно средств"
	case errors.Is(err, orders.ErrInvalidAmount):
		return "❌ Неверная сумма"
	case errors.Is(err, orders.ErrEmptyCart):
		return "🛒 Корзина пуста"
	case errors.Is(err, orders.ErrEmptyPayload), errors.Is(err, orders.ErrEmptyDetails):
		return "✏️ Пустое сообщение, введи текст"
	case errors.Is(err, orders.ErrCorrelationInUse):
		return "❌ Этот заказ оформлен другим пользователем"
	default:
		return "⚠️ Что-то пошло не так, попробуй позже"
	}
}

func escape(text string) string {
	return notifier.Escape(text)
}

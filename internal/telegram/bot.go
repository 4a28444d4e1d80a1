package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/VladKvetkin/keyflow/internal/notifier"
	"github.com/VladKvetkin/keyflow/internal/orders"
	"github.com/VladKvetkin/keyflow/internal/services/converter"
	"github.com/VladKvetkin/keyflow/internal/sessions"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

const (
	pollTimeout    = 10 * time.Second
	handlerTimeout = 30 * time.Second
)

// Bot is the chat front of the store: user commands, web app submissions and
// the operator panel.
type Bot struct {
	bot      *tele.Bot
	service  *orders.Service
	sessions *sessions.Store
	location *time.Location
	ctx      context.Context
}

// NewClient connects to the Bot API with the given token.
func NewClient(token string) (*tele.Bot, error) {
	client, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: pollTimeout},
		OnError: func(err error, c tele.Context) {
			var userID int64
			if c != nil && c.Sender() != nil {
				userID = c.Sender().ID
			}

			zap.L().Error("error handle telegram update", zap.Int64("user_id", userID), zap.Error(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("error create telegram bot: %w", err)
	}

	return client, nil
}

func NewBot(client *tele.Bot, service *orders.Service, sessions *sessions.Store, location *time.Location) *Bot {
	if location == nil {
		location = time.Local
	}

	bot := &Bot{
		bot:      client,
		service:  service,
		sessions: sessions,
		location: location,
		ctx:      context.Background(),
	}

	bot.registerHandlers()

	return bot
}

func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", b.handleStart)
	b.bot.Handle("/admin", b.handleAdmin)
	b.bot.Handle("/cancel", b.handleCancel)
	b.bot.Handle(tele.OnText, b.handleText)
	b.bot.Handle(tele.OnWebApp, b.handleWebApp)

	callbacks := map[string]tele.HandlerFunc{
		notifier.ActionOrders:     b.handleOrders,
		notifier.ActionReferral:   b.handleReferral,
		notifier.ActionClaim:      b.handleClaim,
		notifier.ActionReorder:    b.handleReorder,
		notifier.ActionConfirm:    b.handleConfirm,
		notifier.ActionReject:     b.handleReject,
		notifier.ActionCancelPaid: b.handleCancelPaid,
		notifier.ActionDeliver:    b.handleDeliver,
		actionBackMain:            b.handleBackMain,
		actionAdminMain:           b.handleAdminMain,
		actionAdminStats:          b.handleAdminStats,
		actionAdminBalance:        b.handleAdminBalance,
		actionAdminWithdraw:       b.handleAdminWithdraw,
		actionAdminOrders:         b.handleAdminOrders,
		actionAdminUsers:          b.handleAdminUsers,
		actionAdminBroadcast:      b.handleAdminBroadcast,
		actionAdminServices:       b.handleAdminServices,
		actionAdminToggle:         b.handleAdminToggle,
	}

	for action, handler := range callbacks {
		b.bot.Handle(&tele.InlineButton{Unique: action}, handler)
	}
}

// Start polls for updates until ctx is done.
func (b *Bot) Start(ctx context.Context) error {
	b.ctx = ctx

	go func() {
		<-ctx.Done()
		b.bot.Stop()
	}()

	zap.L().Info("starting telegram bot", zap.String("username", b.bot.Me.Username))

	b.bot.Start()

	return nil
}

func (b *Bot) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(b.ctx, handlerTimeout)
}

func (b *Bot) handleStart(c tele.Context) error {
	ctx, cancel := b.context()
	defer cancel()

	sender := c.Sender()

	registration, err := b.service.RegisterUser(ctx, orders.Profile{
		ID:       sender.ID,
		Username: sender.Username,
		FullName: strings.TrimSpace(sender.FirstName + " " + sender.LastName),
	}, strings.TrimSpace(c.Message().Payload))
	if err != nil {
		return fmt.Errorf("error register user: %w", err)
	}

	if b.service.IsOperator(sender.ID) {
		return send(c, operatorWelcomeView(sender.FirstName))
	}

	return send(c, welcomeView(sender.FirstName, registration, b.service.ReferralDiscount(), b.service.MainMenu()))
}

func (b *Bot) handleAdmin(c tele.Context) error {
	if !b.service.IsOperator(c.Sender().ID) {
		return nil
	}

	return send(c, adminMenu())
}

func (b *Bot) handleCancel(c tele.Context) error {
	if b.sessions.Cancel(c.Sender().ID) {
		return c.Send("↩️ Ввод отменён.")
	}

	return nil
}

func (b *Bot) handleBackMain(c tele.Context) error {
	_ = c.Respond()

	return send(c, notifier.Message{Text: "Главное меню:", Buttons: b.service.MainMenu()})
}

func (b *Bot) handleOrders(c tele.Context) error {
	ctx, cancel := b.context()
	defer cancel()

	list, err := b.service.UserOrders(ctx, c.Sender().ID)
	if err != nil {
		return fmt.Errorf("error get user orders: %w", err)
	}

	_ = c.Respond()

	return send(c, ordersView(list, b.service.MainMenu()))
}

func (b *Bot) handleReferral(c tele.Context) error {
	ctx, cancel := b.context()
	defer cancel()

	referral, err := b.service.ReferralInfo(ctx, c.Sender().ID)
	if err != nil {
		return respondError(c, err)
	}

	_ = c.Respond()

	return send(c, referralView(referral))
}

func (b *Bot) handleClaim(c tele.Context) error {
	orderID, err := orderArg(c)
	if err != nil {
		return respondError(c, err)
	}

	ctx, cancel := b.context()
	defer cancel()

	if _, err := b.service.ClaimPayment(ctx, c.Sender().ID, orderID); err != nil {
		return respondError(c, err)
	}

	return c.Respond()
}

func (b *Bot) handleReorder(c tele.Context) error {
	orderID, err := orderArg(c)
	if err != nil {
		return respondError(c, err)
	}

	ctx, cancel := b.context()
	defer cancel()

	if _, err := b.service.Reorder(ctx, c.Sender().ID, orderID); err != nil {
		return respondError(c, err)
	}

	return c.Respond()
}

func (b *Bot) handleConfirm(c tele.Context) error {
	orderID, err := orderArg(c)
	if err != nil {
		return respondError(c, err)
	}

	ctx, cancel := b.context()
	defer cancel()

	if _, err := b.service.Confirm(ctx, c.Sender().ID, orderID); err != nil {
		return respondError(c, err)
	}

	_ = c.Respond(&tele.CallbackResponse{Text: "✅ Подтверждено"})

	return edit(c, notifier.Message{
		Text: fmt.Sprintf("✅ Оплата по заказу #%d подтверждена. Выдай подписку клиенту.", orderID),
		Buttons: [][]notifier.Button{
			{{Text: "📦 Выдать подписку", Action: notifier.ActionDeliver, Args: []string{strconv.FormatInt(orderID, 10)}}},
			{{Text: "🚫 Отменить заказ", Action: notifier.ActionCancelPaid, Args: []string{strconv.FormatInt(orderID, 10)}}},
		},
	})
}

func (b *Bot) handleReject(c tele.Context) error {
	orderID, err := orderArg(c)
	if err != nil {
		return respondError(c, err)
	}

	ctx, cancel := b.context()
	defer cancel()

	if _, err := b.service.Reject(ctx, c.Sender().ID, orderID); err != nil {
		return respondError(c, err)
	}

	_ = c.Respond()

	return edit(c, notifier.Message{Text: fmt.Sprintf("❌ Заказ #%d отклонён.", orderID), Buttons: backToAdmin()})
}

func (b *Bot) handleCancelPaid(c tele.Context) error {
	orderID, err := orderArg(c)
	if err != nil {
		return respondError(c, err)
	}

	ctx, cancel := b.context()
	defer cancel()

	if _, err := b.service.CancelPaid(ctx, c.Sender().ID, orderID); err != nil {
		return respondError(c, err)
	}

	_ = c.Respond()

	return edit(c, notifier.Message{Text: fmt.Sprintf("🚫 Заказ #%d отменён после подтверждения.", orderID), Buttons: backToAdmin()})
}

func (b *Bot) handleDeliver(c tele.Context) error {
	if !b.service.IsOperator(c.Sender().ID) {
		return respondError(c, orders.ErrUnauthorized)
	}

	orderID, err := orderArg(c)
	if err != nil {
		return respondError(c, err)
	}

	b.sessions.Begin(c.Sender().ID, sessions.StepDeliveryPayload, orderID)

	_ = c.Respond()

	return c.Send(
		fmt.Sprintf(
			"📦 <b>Выдача подписки — Заказ #%d</b>\n\nВведи данные для клиента:\n\n"+
				"<code>Логин: example@gmail.com\nПароль: Pass123!\nПримечание: смени пароль после входа</code>\n\n"+
				"/cancel — отменить",
			orderID,
		),
		tele.ModeHTML,
	)
}

func (b *Bot) handleWebApp(c tele.Context) error {
	data := c.Message().WebAppData
	if data == nil {
		return nil
	}

	request, err := ParseWebAppData(c.Sender().ID, data.Data)
	if err != nil {
		zap.L().Warn("invalid web app data", zap.Int64("user_id", c.Sender().ID), zap.Error(err))
		return nil
	}

	ctx, cancel := b.context()
	defer cancel()

	switch {
	case request.Order != nil:
		_, err = b.service.Create(ctx, *request.Order)
	case request.Cart != nil:
		_, err = b.service.CreateCart(ctx, *request.Cart)
	default:
		_, err = b.service.ClaimPaymentByCorrelation(ctx, c.Sender().ID, request.Paid)
	}

	if err != nil {
		zap.L().Warn(
			"web app request failed",
			zap.Int64("user_id", c.Sender().ID),
			zap.String("action", request.Action),
			zap.Error(err),
		)

		return c.Send(errorText(err))
	}

	return nil
}

func (b *Bot) handleText(c tele.Context) error {
	operatorID := c.Sender().ID
	if !b.service.IsOperator(operatorID) {
		return nil
	}

	session, ok := b.sessions.Get(operatorID)
	if !ok {
		return nil
	}

	ctx, cancel := b.context()
	defer cancel()

	switch session.Step {
	case sessions.StepWithdrawAmount:
		return b.withdrawAmount(ctx, c)
	case sessions.StepWithdrawDetails:
		return b.withdrawDetails(ctx, c)
	case sessions.StepDeliveryPayload:
		return b.deliveryPayload(c)
	case sessions.StepDeliveryExpiry:
		return b.deliveryExpiry(ctx, c)
	case sessions.StepBroadcastText:
		return b.broadcast(c)
	default:
		b.sessions.Cancel(operatorID)
		return nil
	}
}

func (b *Bot) withdrawAmount(ctx context.Context, c tele.Context) error {
	amount, err := converter.ParseAmount(c.Text())
	if err != nil || !amount.IsPositive() {
		return c.Send("❌ Введи число")
	}

	balance, err := b.service.Balance(ctx, c.Sender().ID)
	if err != nil {
		return c.Send(errorText(err))
	}

	if amount.GreaterThan(balance.Available) {
		return c.Send(fmt.Sprintf("❌ Недостаточно средств. Доступно: %s₽", converter.FormatAmount(balance.Available)))
	}

	if _, err := b.sessions.Update(c.Sender().ID, func(s *sessions.Session) {
		s.Amount = amount
		s.Step = sessions.StepWithdrawDetails
	}); err != nil {
		return nil
	}

	return c.Send("Введи реквизиты для вывода (номер карты, СБП или крипто-адрес):")
}

func (b *Bot) withdrawDetails(ctx context.Context, c tele.Context) error {
	operatorID := c.Sender().ID

	err := b.sessions.Commit(operatorID, func(s sessions.Session) error {
		withdrawal, err := b.service.Withdraw(ctx, operatorID, s.Amount, c.Text())
		if err != nil {
			return err
		}

		return send(c, notifier.Message{
			Text:    fmt.Sprintf("✅ Вывод <b>%s₽</b> зафиксирован.", converter.FormatAmount(withdrawal.Amount)),
			Buttons: backToAdmin(),
		})
	})
	if err == nil || errors.Is(err, sessions.ErrNoSession) {
		return nil
	}

	if errors.Is(err, orders.ErrInsufficientBalance) {
		b.sessions.Cancel(operatorID)
	}

	return c.Send(errorText(err))
}

func (b *Bot) deliveryPayload(c tele.Context) error {
	payload := strings.TrimSpace(c.Text())
	if payload == "" {
		return c.Send(errorText(orders.ErrEmptyPayload))
	}

	if _, err := b.sessions.Update(c.Sender().ID, func(s *sessions.Session) {
		s.Payload = payload
		s.Step = sessions.StepDeliveryExpiry
	}); err != nil {
		return nil
	}

	return c.Send(
		"📅 Укажи дату окончания подписки (для авто-напоминания):\n\n"+
			"Формат: <code>ДД.ММ.ГГГГ</code>\nНапример: <code>27.05.2026</code>\n\n"+
			"Или напиши <b>пропустить</b>",
		tele.ModeHTML,
	)
}

func (b *Bot) deliveryExpiry(ctx context.Context, c tele.Context) error {
	expiresAt, err := ParseExpiry(c.Text(), b.location)
	if err != nil {
		return c.Send("❌ Неверный формат даты. Введи ДД.ММ.ГГГГ или «пропустить»")
	}

	operatorID := c.Sender().ID

	var delivered string
	err = b.sessions.Commit(operatorID, func(s sessions.Session) error {
		order, err := b.service.Deliver(ctx, operatorID, s.OrderID, s.Payload, expiresAt)
		if err != nil {
			var deliveryErr *orders.DeliveryError
			if errors.As(err, &deliveryErr) {
				delivered = fmt.Sprintf(
					"❌ Не удалось отправить клиенту: %v\n\nЗаказ #%d выполнен, данные:\n%s",
					deliveryErr.Err, deliveryErr.OrderID, escape(deliveryErr.Payload),
				)

				return nil
			}

			if order.ID == 0 || errors.Is(err, orders.ErrInvalidTransition) {
				return err
			}

			delivered = fmt.Sprintf("✅ Заказ #%d выполнен, но дата окончания не сохранена: %v", order.ID, err)

			return nil
		}

		delivered = fmt.Sprintf("✅ Данные отправлены клиенту — заказ #%d выполнен!", order.ID)
		if order.ExpiresAt != nil {
			delivered += " · До " + order.ExpiresAt.Format(dateLayout)
		}

		return nil
	})

	switch {
	case err == nil:
		return c.Send(delivered, tele.ModeHTML)
	case errors.Is(err, sessions.ErrNoSession):
		return nil
	case errors.Is(err, orders.ErrInvalidTransition), errors.Is(err, orders.ErrOrderNotFound):
		b.sessions.Cancel(operatorID)
		return c.Send(errorText(err))
	default:
		return c.Send(errorText(err))
	}
}

func (b *Bot) broadcast(c tele.Context) error {
	operatorID := c.Sender().ID
	text := c.Text()

	// The broadcast is paced and may outlive a handler timeout.
	ctx := b.ctx

	err := b.sessions.Commit(operatorID, func(sessions.Session) error {
		result, err := b.service.Broadcast(ctx, operatorID, text)
		if err != nil {
			return err
		}

		return send(c, notifier.Message{
			Text:    fmt.Sprintf("✅ <b>Рассылка завершена</b>\n\nОтправлено: %d/%d", result.Sent, result.Total),
			Buttons: backToAdmin(),
		})
	})
	if err == nil || errors.Is(err, sessions.ErrNoSession) {
		return nil
	}

	return c.Send(errorText(err))
}

func (b *Bot) handleAdminMain(c tele.Context) error {
	if !b.service.IsOperator(c.Sender().ID) {
		return respondError(c, orders.ErrUnauthorized)
	}

	b.sessions.Cancel(c.Sender().ID)
	_ = c.Respond()

	return edit(c, adminMenu())
}

func (b *Bot) handleAdminStats(c tele.Context) error {
	ctx, cancel := b.context()
	defer cancel()

	stats, err := b.service.Stats(ctx, c.Sender().ID)
	if err != nil {
		return respondError(c, err)
	}

	_ = c.Respond()

	return edit(c, statsView(stats))
}

func (b *Bot) handleAdminBalance(c tele.Context) error {
	ctx, cancel := b.context()
	defer cancel()

	balance, err := b.service.Balance(ctx, c.Sender().ID)
	if err != nil {
		return respondError(c, err)
	}

	_ = c.Respond()

	return edit(c, balanceView(balance))
}

func (b *Bot) handleAdminWithdraw(c tele.Context) error {
	if !b.service.IsOperator(c.Sender().ID) {
		return respondError(c, orders.ErrUnauthorized)
	}

	b.sessions.Begin(c.Sender().ID, sessions.StepWithdrawAmount, 0)
	_ = c.Respond()

	return edit(c, notifier.Message{Text: "💸 <b>Вывод средств</b>\n\nВведи сумму для вывода (₽):\n\n/cancel — отменить"})
}

func (b *Bot) handleAdminOrders(c tele.Context) error {
	ctx, cancel := b.context()
	defer cancel()

	list, err := b.service.ActiveOrders(ctx, c.Sender().ID)
	if err != nil {
		return respondError(c, err)
	}

	_ = c.Respond()

	return edit(c, activeOrdersView(list))
}

func (b *Bot) handleAdminUsers(c tele.Context) error {
	ctx, cancel := b.context()
	defer cancel()

	stats, err := b.service.Stats(ctx, c.Sender().ID)
	if err != nil {
		return respondError(c, err)
	}

	users, err := b.service.RecentUsers(ctx, c.Sender().ID, recentUsers)
	if err != nil {
		return respondError(c, err)
	}

	_ = c.Respond()

	return edit(c, usersView(stats.Users, users))
}

func (b *Bot) handleAdminBroadcast(c tele.Context) error {
	if !b.service.IsOperator(c.Sender().ID) {
		return respondError(c, orders.ErrUnauthorized)
	}

	b.sessions.Begin(c.Sender().ID, sessions.StepBroadcastText, 0)
	_ = c.Respond()

	return edit(c, notifier.Message{Text: "📢 <b>Рассылка</b>\n\nВведи текст сообщения (поддерживается HTML):\n\n/cancel — отменить"})
}

func (b *Bot) handleAdminServices(c tele.Context) error {
	ctx, cancel := b.context()
	defer cancel()

	services, err := b.service.Services(ctx, c.Sender().ID)
	if err != nil {
		return respondError(c, err)
	}

	_ = c.Respond()

	return edit(c, servicesView(services))
}

func (b *Bot) handleAdminToggle(c tele.Context) error {
	serviceID, err := orderArg(c)
	if err != nil {
		return respondError(c, err)
	}

	ctx, cancel := b.context()
	defer cancel()

	if _, err := b.service.ToggleService(ctx, c.Sender().ID, serviceID); err != nil {
		return respondError(c, err)
	}

	return b.handleAdminServices(c)
}

// orderArg reads the numeric id carried by an action button.
func orderArg(c tele.Context) (int64, error) {
	args := c.Args()
	if len(args) == 0 {
		return 0, orders.ErrOrderNotFound
	}

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, orders.ErrOrderNotFound
	}

	return id, nil
}

func respondError(c tele.Context, err error) error {
	zap.L().Info("chat action failed", zap.Int64("user_id", c.Sender().ID), zap.Error(err))

	if c.Callback() == nil {
		return c.Send(errorText(err))
	}

	return c.Respond(&tele.CallbackResponse{Text: errorText(err), ShowAlert: true})
}

func send(c tele.Context, message notifier.Message) error {
	return c.Send(message.Text, options(message)...)
}

// edit replaces the callback's message and falls back to a new one when the
// original cannot be edited.
func edit(c tele.Context, message notifier.Message) error {
	if c.Callback() == nil {
		return send(c, message)
	}

	if err := c.Edit(message.Text, options(message)...); err != nil {
		zap.L().Debug("error edit message", zap.Error(err))
		return send(c, message)
	}

	return nil
}

func options(message notifier.Message) []interface{} {
	options := []interface{}{tele.ModeHTML, tele.NoPreview}
	if markup := Markup(message.Buttons); markup != nil {
		options = append(options, markup)
	}

	return options
}

// Package commands implements the chat command language on top of the
// brokerage session.
package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"flatex_bot/internal/broker"
	"flatex_bot/internal/broker/flatex"
	"flatex_bot/internal/broker/onvista"
	"flatex_bot/internal/cache"
	"flatex_bot/internal/chat"
	apperrors "flatex_bot/internal/errors"
	"flatex_bot/internal/services"
	"flatex_bot/internal/session"
)

// QuoteSource provides market data for the quote command.
type QuoteSource interface {
	Search(ctx context.Context, query string, limit int) (*onvista.SearchResponse, error)
	Snapshot(ctx context.Context, entityType onvista.EntityType, entityValue string) (*onvista.SnapshotResponse, error)
}

// StatusSource reports the session state for the status command.
type StatusSource interface {
	DebugInfo() session.DebugInfo
}

// Options configures a Router. Trader and Pins are required.
type Options struct {
	Trader   broker.Trader
	Pins     *PinPrompt
	Audit    *services.AuditService
	Quotes   QuoteSource
	Status   StatusSource
	Cache    *cache.Cache
	Location *time.Location // order timestamps; defaults to Europe/Berlin
	Logger   *zap.Logger
}

// Router parses chat input and runs commands against the brokerage.
type Router struct {
	trader   broker.Trader
	pins     *PinPrompt
	audit    *services.AuditService
	quotes   QuoteSource
	status   StatusSource
	cache    *cache.Cache
	location *time.Location
	logger   *zap.Logger
}

// NewRouter creates a Router.
func NewRouter(opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := opts.Location
	if loc == nil {
		var err error
		if loc, err = time.LoadLocation("Europe/Berlin"); err != nil {
			loc = time.UTC
		}
	}
	return &Router{
		trader:   opts.Trader,
		pins:     opts.Pins,
		audit:    opts.Audit,
		quotes:   opts.Quotes,
		status:   opts.Status,
		cache:    opts.Cache,
		location: loc,
		logger:   logger.Named("commands"),
	}
}

// Handle is a chat.Handler running input and replying to room.
func (r *Router) Handle(room chat.Replier) chat.Handler {
	return func(ctx context.Context, sender, body string) {
		r.Execute(ctx, sender, body, room)
	}
}

// Execute runs every command of input in order, replying through out.
// Commands are separated by &&; a failing command does not stop the rest.
func (r *Router) Execute(ctx context.Context, sender, input string, out chat.Replier) {
	lines, err := splitCommands(input)
	if err != nil {
		r.replyError(ctx, out, err)
		return
	}
	for _, args := range lines {
		r.run(ctx, sender, args, out)
	}
}

// splitCommands tokenizes input like a shell and splits it at && tokens.
func splitCommands(input string) ([][]string, error) {
	words, err := shellquote.Split(input)
	if err != nil {
		return nil, err
	}

	var lines [][]string
	var current []string
	for _, w := range words {
		if w == "&&" {
			if len(current) > 0 {
				lines = append(lines, current)
			}
			current = nil
			continue
		}
		current = append(current, w)
	}
	if len(current) > 0 {
		lines = append(lines, current)
	}
	return lines, nil
}

// invocation is the context of one command run.
type invocation struct {
	ctx    context.Context
	sender string
	out    chat.Replier
}

func (r *Router) run(ctx context.Context, sender string, args []string, out chat.Replier) {
	inv := &invocation{ctx: ctx, sender: sender, out: out}
	root := r.newRoot(inv)

	var help bytes.Buffer
	root.SetOut(&help)
	root.SetErr(&help)
	root.SetArgs(args)

	r.logger.Debug("running command", zap.String("command", args[0]), zap.String("sender", sender))
	if err := root.ExecuteContext(ctx); err != nil {
		r.replyError(ctx, out, err)
		return
	}
	if help.Len() > 0 {
		r.reply(ctx, out, "<pre>"+html.EscapeString(strings.TrimSpace(help.String()))+"</pre>", true)
	}
}

func (r *Router) newRoot(inv *invocation) *cobra.Command {
	root := &cobra.Command{
		Use:           "bot",
		Short:         "Trade on flatex from the chat",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return apperrors.Validation(err.Error())
	})

	root.AddCommand(
		r.authorizeCmd(inv),
		r.tanCmd(inv),
		r.balanceCmd(inv),
		r.securitiesCmd(inv),
		r.ordersCmd(inv),
		r.cancelCmd(inv),
		r.buyCmd(inv),
		r.sellCmd(inv),
		r.quoteCmd(inv),
		r.statusCmd(inv),
	)
	return root
}

func (r *Router) authorizeCmd(inv *invocation) *cobra.Command {
	return &cobra.Command{
		Use:   "authorize",
		Short: "Authorize transaction PIN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if r.trader.IsAuthorized() {
				return inv.text("Already authorized.")
			}
			err := r.trader.Authorize(inv.ctx, 0)
			r.record(services.AuditAuthorize, inv.sender, "", "", nil, err)
			if err != nil {
				return err
			}
			return inv.text("Authorization succeeded.")
		},
	}
}

func (r *Router) tanCmd(inv *invocation) *cobra.Command {
	return &cobra.Command{
		Use:   "tan <digits...>",
		Short: "Enter pTAN",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !r.pins.Resolve(strings.Join(args, "")) {
				r.logger.Debug("tan without pending authorization")
			}
			return nil
		},
	}
}

func (r *Router) balanceCmd(inv *invocation) *cobra.Command {
	return &cobra.Command{
		Use:     "balance",
		Aliases: []string{"cash"},
		Short:   "Portfolio balance",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := r.trader.Balance(inv.ctx)
			if err != nil {
				return err
			}
			if resp.BalanceInfo == nil {
				return inv.text("No balance information.")
			}
			return inv.render("balance", newBalanceView(resp.BalanceInfo))
		},
	}
}

func (r *Router) securitiesCmd(inv *invocation) *cobra.Command {
	return &cobra.Command{
		Use:     "securities",
		Aliases: []string{"depot", "portfolio"},
		Short:   "Portfolio securities",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := r.trader.Securities(inv.ctx)
			if err != nil {
				return err
			}
			views := make([]securityView, 0, len(resp.Securities))
			for i := range resp.Securities {
				views = append(views, newSecurityView(&resp.Securities[i]))
			}
			return inv.render("securities", views)
		},
	}
}

func (r *Router) ordersCmd(inv *invocation) *cobra.Command {
	q := OrderQuery{}
	cmd := &cobra.Command{
		Use:       "orders [all|today|open]",
		Short:     "Show orders",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{ModeAll, ModeToday, ModeOpen},
		RunE: func(cmd *cobra.Command, args []string) error {
			q.Mode = ModeToday
			if len(args) == 1 {
				q.Mode = args[0]
			}
			orders, err := ListOrders(inv.ctx, r.trader, q)
			if err != nil {
				return err
			}
			views := make([]orderView, 0, len(orders))
			for i := range orders {
				views = append(views, newOrderView(&orders[i], r.location))
			}
			return inv.render("orders", views)
		},
	}
	cmd.Flags().IntVarP(&q.PageSize, "n", "n", defaultPageSize, "number of orders")
	cmd.Flags().BoolVar(&q.ShowHidden, "show-hidden", false, "include cancelled, expired and rejected orders")
	return cmd
}

func (r *Router) cancelCmd(inv *invocation) *cobra.Command {
	return &cobra.Command{
		Use:     "orders-cancel <id...>",
		Aliases: []string{"order-cancel"},
		Short:   "Cancel orders",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				id := cleanOrderID(arg)
				if id == "" {
					inv.text(fmt.Sprintf("%s: not an order id", arg))
					continue
				}
				_, err := r.trader.CancelOrder(inv.ctx, id)
				r.record(services.AuditCancelOrder, inv.sender, id, "", nil, err)
				if err != nil {
					inv.text(fmt.Sprintf("Unable to cancel order %s: %s", id, describe(err)))
					continue
				}
				inv.text(fmt.Sprintf("Order %s successfully cancelled", id))
			}
			return nil
		},
	}
}

func (r *Router) buyCmd(inv *invocation) *cobra.Command {
	var f priceFlags
	cmd := &cobra.Command{
		Use:     "orders-buy <sin> <qty>",
		Aliases: []string{"order-buy"},
		Short:   "Place buy order",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sin := args[0]
			qty, err := parseQuantity(args[1])
			if err != nil {
				return apperrors.Validation(err.Error())
			}

			paper, err := r.findPaper(inv.ctx, sin)
			if err != nil {
				return err
			}
			exchange, err := selectExchange(paper, sin, f.exchange)
			if err != nil {
				return err
			}
			order, err := f.buyOrder(exchange.Currency)
			if err != nil {
				return apperrors.Validation(err.Error())
			}

			return r.place(inv, flatex.PlaceOrderArgs{
				ISIN:     paper.ISIN,
				Quantity: qty,
				Exchange: exchange.Exchange,
				Order:    order,
			})
		},
	}
	f.register(cmd, false)
	return cmd
}

func (r *Router) sellCmd(inv *invocation) *cobra.Command {
	var f priceFlags
	cmd := &cobra.Command{
		Use:     "orders-sell <sin> [qty]",
		Aliases: []string{"order-sell"},
		Short:   "Place sell order",
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sin := args[0]
			var requested *decimal.Decimal
			if len(args) == 2 {
				qty, err := parseQuantity(args[1])
				if err != nil {
					return apperrors.Validation(err.Error())
				}
				requested = &qty
			}

			portfolio, err := r.trader.Securities(inv.ctx)
			if err != nil {
				return err
			}
			position := portfolio.Find(sin)
			if position == nil {
				return apperrors.Validation(sin + ": " + errNoPosition.Error())
			}
			qty, err := sellQuantity(position, requested)
			if err != nil {
				return apperrors.Validation(sin + ": " + err.Error())
			}

			paper, err := r.findPaper(inv.ctx, sin)
			if err != nil {
				return err
			}
			exchange, err := selectExchange(paper, sin, f.exchange)
			if err != nil {
				return err
			}
			order, err := f.sellOrder(positionCurrency(position, exchange.Currency))
			if err != nil {
				return apperrors.Validation(err.Error())
			}

			return r.place(inv, flatex.PlaceOrderArgs{
				ISIN:     paper.ISIN,
				Quantity: qty,
				Exchange: exchange.Exchange,
				Order:    order,
			})
		},
	}
	f.register(cmd, true)
	return cmd
}

func (f *priceFlags) register(cmd *cobra.Command, sell bool) {
	cmd.Flags().StringVar(&f.limit, "limit", "", "limit price")
	cmd.Flags().StringVar(&f.stopMarket, "stop-market", "", "stop price")
	cmd.Flags().BoolVarP(&f.force, "force", "f", false, "place a market order")
	cmd.Flags().StringVar(&f.exchange, "exchange", "", "exchange code")
	if sell {
		cmd.Flags().BoolVar(&f.oco, "oco", false, "one-cancels-other with --limit and --stop-market")
	}
}

func (r *Router) place(inv *invocation, args flatex.PlaceOrderArgs) error {
	resp, err := r.trader.PlaceOrder(inv.ctx, args)
	orderID := ""
	if resp != nil {
		orderID = resp.OrderID
	}
	r.record(services.AuditPlaceOrder, inv.sender, orderID, args.ISIN, map[string]any{
		"kind":     args.Order.Kind().String(),
		"quantity": args.Quantity.String(),
		"exchange": args.Exchange,
		"order":    args.Order,
	}, err)
	if err != nil {
		return err
	}
	return inv.text(fmt.Sprintf("Order %s successfully placed", resp.OrderID))
}

func (r *Router) quoteCmd(inv *invocation) *cobra.Command {
	return &cobra.Command{
		Use:   "quote <query>",
		Short: "Show market quotes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if r.quotes == nil {
				return apperrors.New(apperrors.ErrUnavailable, "market data is not configured")
			}
			query := strings.Join(args, " ")
			found, err := r.quotes.Search(inv.ctx, query, 1)
			if err != nil {
				return err
			}
			if len(found.List) == 0 {
				return apperrors.NotFoundf("%s: no instrument found", query)
			}
			inst := found.List[0]
			snap, err := r.quotes.Snapshot(inv.ctx, inst.EntityType, inst.EntityValue)
			if err != nil {
				return err
			}
			return inv.render("quote", quoteView{Instrument: snap.Instrument, Quotes: snap.Quotes()})
		},
	}
}

func (r *Router) statusCmd(inv *invocation) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := session.DebugInfo{State: "unknown", Authorized: r.trader.IsAuthorized()}
			if r.status != nil {
				info = r.status.DebugInfo()
			}
			return inv.render("status", info)
		},
	}
}

func (r *Router) record(action services.AuditAction, actor, orderID, isin string, details any, err error) {
	if r.audit != nil {
		r.audit.Record(action, actor, orderID, isin, details, err)
	}
}

func (inv *invocation) text(msg string) error {
	if err := inv.out.SendText(inv.ctx, msg); err != nil {
		return fmt.Errorf("sending reply: %w", err)
	}
	return nil
}

func (inv *invocation) render(name string, data any) error {
	out, err := render(name, data)
	if err != nil {
		return apperrors.Internal("rendering "+name, err)
	}
	if err := inv.out.SendHTML(inv.ctx, out); err != nil {
		return fmt.Errorf("sending reply: %w", err)
	}
	return nil
}

func (r *Router) reply(ctx context.Context, out chat.Replier, msg string, isHTML bool) {
	var err error
	if isHTML {
		err = out.SendHTML(ctx, msg)
	} else {
		err = out.SendText(ctx, msg)
	}
	if err != nil {
		r.logger.Warn("sending reply failed", zap.Error(err))
	}
}

func (r *Router) replyError(ctx context.Context, out chat.Replier, err error) {
	var exErr *exchangeError
	if errors.As(err, &exErr) {
		r.reply(ctx, out, exErr.html, true)
		return
	}

	app := apperrors.Translate(err)
	if errors.Is(app, apperrors.ErrInternal) {
		r.logger.Error("command failed", zap.Error(err))
	} else {
		r.logger.Info("command failed", zap.Error(err))
	}
	r.reply(ctx, out, "<pre>"+html.EscapeString(describe(err))+"</pre>", true)
}

// describe renders err for the chat. Brokerage failures keep their code.
func describe(err error) string {
	app := apperrors.Translate(err)
	switch {
	case errors.Is(app, apperrors.ErrBrokerage):
		return fmt.Sprintf("%v: %s", app.Details["code"], app.Message)
	case errors.Is(app, apperrors.ErrInternal):
		return err.Error()
	default:
		return app.Error()
	}
}

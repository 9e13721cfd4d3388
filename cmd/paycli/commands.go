package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hupay-bridge/internal/config"
	"github.com/hupay-bridge/internal/payment/xunhu"
	"github.com/hupay-bridge/internal/polling"
	"github.com/hupay-bridge/internal/reconcile"

	"github.com/shopspring/decimal"
)

// 退出码
const (
	exitOK      = 0
	exitError   = 1
	exitUsage   = 2
	exitPending = 3
)

const usage = `usage: paycli <command> [flags]

commands:
  create  -order-id ID -amount 0.01 -title TITLE [-attach TEXT] [-return-url URL]
  query   -order-id ID | -gateway-order-id ID
  poll    -order-id ID [-interval 5s] [-max 5m]
`

func run(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return exitUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "create":
		return runCreate(ctx, cfg, rest, stdout, stderr)
	case "query":
		return runQuery(ctx, cfg, rest, stdout, stderr)
	case "poll":
		return runPoll(ctx, cfg, rest, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return exitUsage
	}
}

func newGatewayClient(cfg *config.Config) (*xunhu.Client, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	return xunhu.NewClient(cfg.Gateway.ToXunhuConfig())
}

func writeJSON(w io.Writer, value interface{}) {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(value)
}

func fail(stderr io.Writer, err error) int {
	var rejected *xunhu.RejectedError
	if errors.As(err, &rejected) {
		fmt.Fprintf(stderr, "gateway rejected: errcode=%d errmsg=%s\n", rejected.Code, rejected.Message)
		return exitError
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	return exitError
}

func runCreate(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	fs.SetOutput(stderr)
	orderID := fs.String("order-id", "", "商户订单号")
	amount := fs.String("amount", "", "金额，单位元，最多两位小数")
	title := fs.String("title", "", "订单标题")
	attach := fs.String("attach", "", "附加数据，回调时原样返回")
	returnURL := fs.String("return-url", "", "支付完成跳转地址")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if strings.TrimSpace(*orderID) == "" || strings.TrimSpace(*amount) == "" {
		fmt.Fprintln(stderr, "create requires -order-id and -amount")
		return exitUsage
	}
	value, err := decimal.NewFromString(strings.TrimSpace(*amount))
	if err != nil {
		fmt.Fprintf(stderr, "invalid amount %q\n", *amount)
		return exitUsage
	}
	client, err := newGatewayClient(cfg)
	if err != nil {
		return fail(stderr, err)
	}
	result, err := client.CreateOrder(ctx, xunhu.CreateInput{
		OrderID:   *orderID,
		Amount:    value,
		Title:     *title,
		Attach:    *attach,
		ReturnURL: *returnURL,
	})
	if err != nil {
		return fail(stderr, err)
	}
	writeJSON(stdout, map[string]string{
		"order_id":         strings.TrimSpace(*orderID),
		"gateway_order_id": result.GatewayOrderID,
		"redirect_url":     result.RedirectURL,
		"qrcode_url":       result.QRCodeURL,
	})
	return exitOK
}

func runQuery(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	fs.SetOutput(stderr)
	orderID := fs.String("order-id", "", "商户订单号")
	gatewayOrderID := fs.String("gateway-order-id", "", "网关订单号")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	client, err := newGatewayClient(cfg)
	if err != nil {
		return fail(stderr, err)
	}
	result, err := client.QueryOrder(ctx, xunhu.QueryInput{OrderID: *orderID, GatewayOrderID: *gatewayOrderID})
	if errors.Is(err, xunhu.ErrInvalidQuery) {
		fmt.Fprintln(stderr, "query requires exactly one of -order-id or -gateway-order-id")
		return exitUsage
	}
	if err != nil {
		return fail(stderr, err)
	}
	writeJSON(stdout, map[string]string{
		"order_id":         result.OrderID,
		"gateway_order_id": result.GatewayOrderID,
		"gateway_status":   result.StatusCode,
		"state":            result.State,
		"transaction_id":   result.TransactionID,
		"total_fee":        result.TotalFee,
	})
	return exitOK
}

func runPoll(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("poll", flag.ContinueOnError)
	fs.SetOutput(stderr)
	orderID := fs.String("order-id", "", "商户订单号")
	interval := fs.Duration("interval", cfg.Polling.Interval(), "轮询间隔")
	maxDuration := fs.Duration("max", cfg.Polling.MaxDuration(), "最长轮询时长")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if strings.TrimSpace(*orderID) == "" {
		fmt.Fprintln(stderr, "poll requires -order-id")
		return exitUsage
	}
	client, err := newGatewayClient(cfg)
	if err != nil {
		return fail(stderr, err)
	}

	reconciler := reconcile.NewReconciler(reconcile.NewMemoryStore(), reconcile.HookFunc(func(_ context.Context, record reconcile.Record) error {
		fmt.Fprintf(stdout, "settled order=%s transaction_id=%s\n", record.OrderID, record.RawPayload["transaction_id"])
		return nil
	}))
	session := polling.NewSession(reconciler, client, polling.Config{
		Interval:    *interval,
		MaxDuration: *maxDuration,
	}, polling.WithUpdate(func(r polling.Result) {
		fmt.Fprintf(stdout, "[%s] attempt=%d state=%s\n", time.Now().Format(time.TimeOnly), r.Attempts, r.State)
	}))

	result, err := session.Run(ctx, *orderID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(stderr, "polling cancelled")
			return exitPending
		}
		return fail(stderr, err)
	}
	writeJSON(stdout, map[string]interface{}{
		"order_id":  result.OrderID,
		"state":     result.State,
		"terminal":  result.Terminal,
		"timed_out": result.TimedOut,
		"attempts":  result.Attempts,
	})
	if result.TimedOut {
		return exitPending
	}
	return exitOK
}

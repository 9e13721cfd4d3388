package constants

// 网关订单状态码（虎皮椒原生）
const (
	GatewayStatusPaid          = "OD"
	GatewayStatusWaitPay       = "WP"
	GatewayStatusCancelled     = "CD"
	GatewayStatusRefunding     = "RD"
	GatewayStatusRefundFailed  = "UD"
	GatewayCallbackAck         = "success"
	GatewayAPIVersion          = "1.1"
	GatewayDefaultCreatePath   = "/do"
	GatewayDefaultQueryPath    = "/query"
	GatewayDefaultPlugins      = "hupay-bridge"
	GatewayResponseCodeSuccess = 0
)

// 结算语义状态
const (
	SettlementStatePending      = "pending"
	SettlementStateSuccess      = "success"
	SettlementStateCancelled    = "cancelled"
	SettlementStateRefunding    = "refunding"
	SettlementStateRefundFailed = "refund_failed"
)

// 状态来源渠道
const (
	SourceChannelWebhook = "webhook"
	SourceChannelPoll    = "poll"
)

// 回调审计结果
const (
	NotificationOutcomeVerified         = "verified"
	NotificationOutcomeSignatureInvalid = "signature_invalid"
	NotificationOutcomeParseFailed      = "parse_failed"
	NotificationOutcomeAppIDMismatch    = "appid_mismatch"
	NotificationOutcomeReplayed         = "replayed"
	NotificationOutcomeStale            = "stale"
	NotificationOutcomeStatusUnknown    = "status_unknown"
	NotificationOutcomeApplyFailed      = "apply_failed"
	NotificationOutcomeSettlementFailed = "settlement_failed"
)

// 异步队列任务类型
const (
	TaskSettlementSucceeded = "settlement:succeeded"
	TaskPaymentReconcile    = "payment:reconcile"
)

// 队列名称
const (
	QueueDefault  = "default"
	QueueCritical = "critical"
)

// 数据库驱动
const (
	DatabaseDriverSQLite   = "sqlite"
	DatabaseDriverPostgres = "postgres"
)

// 状态存储后端
const (
	ReconcileBackendMemory = "memory"
	ReconcileBackendRedis  = "redis"
)

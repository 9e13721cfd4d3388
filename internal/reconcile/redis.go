package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// putScript 在 Redis 端原子完成状态比较与写入
// KEYS[1] 记录键
// ARGV: order_id, state, source, observed_at(ms), gateway_order_id, raw_payload, terminal(1/0), ttl(ms), now(ms), settle_lease(ms)
// 返回 {applied, previous_state, HGETALL, claimed}
var putScript = redis.NewScript(`
local prev = redis.call("HGET", KEYS[1], "state")
if not prev then
  prev = ""
end
local nextState = ARGV[2]
local terminal = ARGV[7] == "1"
local apply = 0
if prev == "" then
  apply = 1
elseif prev == "success" then
  if nextState == "success" then
    apply = 1
  end
elseif prev == "cancelled" or prev == "refund_failed" then
  if terminal then
    apply = 1
  end
else
  apply = 1
end
if apply == 1 then
  redis.call("HSET", KEYS[1],
    "order_id", ARGV[1],
    "state", nextState,
    "source", ARGV[3],
    "observed_at", ARGV[4],
    "raw_payload", ARGV[6])
  if ARGV[5] ~= "" then
    redis.call("HSET", KEYS[1], "gateway_order_id", ARGV[5])
  end
  local ttl = tonumber(ARGV[8])
  if ttl > 0 then
    redis.call("PEXPIRE", KEYS[1], ttl)
  else
    redis.call("PERSIST", KEYS[1])
  end
end
local claimed = 0
if apply == 1 and nextState == "success" and redis.call("HGET", KEYS[1], "settled") ~= "1" then
  local now = tonumber(ARGV[9])
  local claimedAt = tonumber(redis.call("HGET", KEYS[1], "settle_claim") or "0")
  if claimedAt == 0 or now - claimedAt >= tonumber(ARGV[10]) then
    redis.call("HSET", KEYS[1], "settle_claim", ARGV[9])
    claimed = 1
  end
end
return {apply, prev, redis.call("HGETALL", KEYS[1]), claimed}
`)

// markSettledScript 记录存在时标记结算已交付
var markSettledScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  redis.call("HSET", KEYS[1], "settled", "1")
  redis.call("HDEL", KEYS[1], "settle_claim")
end
return 1
`)

// RedisStore 基于 Redis Hash 的状态存储，多实例部署共享
type RedisStore struct {
	client            *redis.Client
	prefix            string
	terminalRetention time.Duration
	pendingRetention  time.Duration
	settleLease       time.Duration
	now               func() time.Time
}

// NewRedisStore 创建 Redis 状态存储
func NewRedisStore(client *redis.Client, prefix string, terminalRetention, pendingRetention time.Duration) *RedisStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "hp"
	}
	return &RedisStore{
		client:            client,
		prefix:            prefix,
		terminalRetention: terminalRetention,
		pendingRetention:  pendingRetention,
		settleLease:       defaultSettleLease,
		now:               time.Now,
	}
}

func (s *RedisStore) key(orderID string) string {
	return fmt.Sprintf("%s:order_status:%s", s.prefix, orderID)
}

// Get 获取订单状态
func (s *RedisStore) Get(ctx context.Context, orderID string) (*Record, error) {
	orderID, err := normalizeLookup(orderID)
	if err != nil {
		return nil, err
	}
	values, err := s.client.HGetAll(ctx, s.key(orderID)).Result()
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	return decodeRecord(values)
}

// Put 原子写入订单状态
func (s *RedisStore) Put(ctx context.Context, input PutInput) (Transition, error) {
	input, err := normalizeInput(input)
	if err != nil {
		return Transition{}, err
	}
	payload := ""
	if len(input.RawPayload) > 0 {
		raw, err := json.Marshal(input.RawPayload)
		if err != nil {
			return Transition{}, err
		}
		payload = string(raw)
	}
	terminal := "0"
	ttl := s.pendingRetention
	if IsTerminal(input.State) {
		terminal = "1"
		ttl = s.terminalRetention
	}

	res, err := putScript.Run(ctx, s.client, []string{s.key(input.OrderID)},
		input.OrderID,
		input.State,
		input.Source,
		strconv.FormatInt(input.ObservedAt.UnixMilli(), 10),
		input.GatewayOrderID,
		payload,
		terminal,
		ttl.Milliseconds(),
		s.now().UnixMilli(),
		s.settleLease.Milliseconds(),
	).Slice()
	if err != nil {
		return Transition{}, err
	}
	if len(res) != 4 {
		return Transition{}, fmt.Errorf("unexpected script result length %d", len(res))
	}
	applied, _ := res[0].(int64)
	previous, _ := res[1].(string)
	claimed, _ := res[3].(int64)
	current, err := decodeRecord(pairsToMap(res[2]))
	if err != nil {
		return Transition{}, err
	}
	return Transition{
		PreviousState: previous,
		Current:       current,
		Applied:       applied == 1,
		claimed:       claimed == 1,
	}, nil
}

// MarkSettled 标记结算已交付
func (s *RedisStore) MarkSettled(ctx context.Context, orderID string) error {
	orderID, err := normalizeLookup(orderID)
	if err != nil {
		return err
	}
	return markSettledScript.Run(ctx, s.client, []string{s.key(orderID)}).Err()
}

// ReleaseSettlement 释放结算执行权
func (s *RedisStore) ReleaseSettlement(ctx context.Context, orderID string) error {
	orderID, err := normalizeLookup(orderID)
	if err != nil {
		return err
	}
	return s.client.HDel(ctx, s.key(orderID), "settle_claim").Err()
}

func pairsToMap(raw interface{}) map[string]string {
	items, _ := raw.([]interface{})
	values := make(map[string]string, len(items)/2)
	for i := 0; i+1 < len(items); i += 2 {
		k, _ := items[i].(string)
		v, _ := items[i+1].(string)
		values[k] = v
	}
	return values
}

func decodeRecord(values map[string]string) (*Record, error) {
	record := &Record{
		OrderID:        values["order_id"],
		State:          values["state"],
		Source:         values["source"],
		GatewayOrderID: values["gateway_order_id"],

		SettlementDelivered: values["settled"] == "1",
	}
	if raw := values["settle_claim"]; raw != "" {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			record.settleClaimedAt = time.UnixMilli(ms).UTC()
		}
	}
	if raw := values["observed_at"]; raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode observed_at: %w", err)
		}
		record.ObservedAt = time.UnixMilli(ms).UTC()
	}
	if raw := values["raw_payload"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &record.RawPayload); err != nil {
			return nil, fmt.Errorf("decode raw_payload: %w", err)
		}
	}
	return record, nil
}

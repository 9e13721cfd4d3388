package xunhu

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// FieldHash 签名字段名
const FieldHash = "hash"

// Sign 按网关规则计算签名：剔除空值与 hash 字段，键名升序拼接 k=v&...，末尾直接追加密钥后取 MD5。
func Sign(fields map[string]string, secret string) string {
	return signMD5(buildSignContent(fields) + secret)
}

// Verify 重新计算签名并做常量时间比较
func Verify(fields map[string]string, claimedHash, secret string) error {
	claimed := strings.ToLower(strings.TrimSpace(claimedHash))
	if claimed == "" {
		return fmt.Errorf("%w: hash is empty", ErrSignatureInvalid)
	}
	expected := Sign(fields, secret)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(claimed)) != 1 {
		return ErrSignatureInvalid
	}
	return nil
}

// FormFields 取表单每个字段的首个值
func FormFields(form map[string][]string) map[string]string {
	fields := make(map[string]string, len(form))
	for key, values := range form {
		if len(values) == 0 {
			continue
		}
		fields[key] = values[0]
	}
	return fields
}

func buildSignContent(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		if v == "" || k == FieldHash {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+fields[k])
	}
	return strings.Join(pairs, "&")
}

func signMD5(content string) string {
	sum := md5.Sum([]byte(content))
	return strings.ToLower(hex.EncodeToString(sum[:]))
}

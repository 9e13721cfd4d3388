package repository

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

const (
	dialectSQLite   = "sqlite"
	dialectPostgres = "postgres"
)

// dialectOf 审计库只支持 sqlite 与 postgres，未知方言按 sqlite 处理
func dialectOf(db *gorm.DB) string {
	if db == nil || db.Dialector == nil {
		return dialectSQLite
	}
	switch strings.ToLower(strings.TrimSpace(db.Dialector.Name())) {
	case dialectPostgres, "postgresql":
		return dialectPostgres
	default:
		return dialectSQLite
	}
}

// payloadFieldExpr 取回调原文（JSON 文本列）中的某个字段
func payloadFieldExpr(dialect, column, key string) string {
	if dialect == dialectPostgres {
		return fmt.Sprintf("(%s::jsonb ->> '%s')", column, key)
	}
	return fmt.Sprintf("json_extract(%s, '$.\"%s\"')", column, key)
}

// containsClause 不区分大小写的子串匹配条件
func containsClause(dialect, column string) string {
	if dialect == dialectPostgres {
		return column + " ILIKE ?"
	}
	return column + " LIKE ?"
}

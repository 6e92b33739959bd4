package repository

import (
	"math"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"school-health/backend/pkg/querybuilder"
)

// Pagination 分页参数
type Pagination struct {
	Page  int
	Limit int
}

// Offset 偏移量；乘积溢出时取 math.MaxInt，结果为空页
func (p Pagination) Offset() int {
	if p.Page <= 1 || p.Limit <= 0 {
		return 0
	}
	if p.Page-1 > math.MaxInt/p.Limit {
		return math.MaxInt
	}
	return (p.Page - 1) * p.Limit
}

// PaginationOf 从 Builder 取分页参数
func PaginationOf(qb *querybuilder.Builder) Pagination {
	return Pagination{Page: qb.GetPage(), Limit: qb.GetLimit()}
}

// isUUID 主键与外键列均为 uuid 类型，格式不合法的 ID 不下发到数据库
func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// fieldSet 对外字段名 → 列名白名单；uuid 列需要校验取值格式
type fieldSet struct {
	columns map[string]string
	uuids   map[string]bool
}

// applyConditions 将过滤条件追加到查询上，白名单外的字段忽略
// prefix 为表名或别名加点，如 "p."
func (f fieldSet) applyConditions(db *gorm.DB, conds []querybuilder.Condition, prefix string) (*gorm.DB, error) {
	for _, c := range conds {
		col, ok := f.columns[c.Field]
		if !ok {
			continue
		}
		if f.uuids[c.Field] {
			values := c.Values
			if c.Op != querybuilder.OpIn {
				values = []string{c.Value}
			}
			for _, v := range values {
				if !isUUID(v) {
					return nil, ErrInvalidFilterValue
				}
			}
		}
		if c.Op == querybuilder.OpIn {
			db = db.Where(prefix+col+" IN ?", c.Values)
			continue
		}
		db = db.Where(prefix+col+" "+c.Op.SQL()+" ?", c.Value)
	}
	return db, nil
}

// orderBy 排序子句，未知字段回退到 created_at
func (f fieldSet) orderBy(sort querybuilder.Sort, prefix string) string {
	col, ok := f.columns[sort.Field]
	if !ok {
		col = "created_at"
	}
	if sort.Desc {
		return prefix + col + " DESC"
	}
	return prefix + col + " ASC"
}

// userSummary 只取用户摘要字段，不含 password_hash
func userSummary(tx *gorm.DB) *gorm.DB {
	return tx.Select("user_id", "name", "email", "role")
}

// Package querybuilder 将 HTTP 查询参数转换为结构化的过滤/排序/分页/关键字描述
// 供持久层消费，本身不访问数据库。
package querybuilder

import (
	"errors"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// 保留参数，不参与过滤
const (
	ParamPage      = "page"
	ParamLimit     = "limit"
	ParamSortBy    = "sortBy"
	ParamSortOrder = "sortOrder"
	ParamKeyword   = "keyword"
)

const (
	DefaultPage      = 1
	DefaultLimit     = 10
	DefaultMaxLimit  = 100
	DefaultSortField = "createdAt"

	// MaxPage 页码上限，保证 (page-1)*limit 不溢出
	MaxPage = math.MaxInt32
)

// Operator 过滤比较符
type Operator string

const (
	OpEq  Operator = "eq"
	OpNe  Operator = "ne"
	OpGt  Operator = "gt"
	OpGte Operator = "gte"
	OpLt  Operator = "lt"
	OpLte Operator = "lte"
	OpIn  Operator = "in"
)

// SQL 返回比较符对应的 SQL 片段，in 除外
func (o Operator) SQL() string {
	switch o {
	case OpNe:
		return "<>"
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	case OpIn:
		return "IN"
	default:
		return "="
	}
}

// Condition 单个过滤条件；Op 为 in 时使用 Values
type Condition struct {
	Field  string
	Op     Operator
	Value  string
	Values []string
}

// Sort 排序描述
type Sort struct {
	Field string
	Desc  bool
}

// Options 分页默认值，由配置注入
type Options struct {
	DefaultLimit int
	MaxLimit     int
}

// Builder 查询参数解析器，无副作用
type Builder struct {
	params url.Values
	opts   Options
}

// New 基于原始查询参数创建 Builder
func New(params url.Values, opts Options) *Builder {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = DefaultLimit
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = DefaultMaxLimit
	}
	if opts.DefaultLimit > opts.MaxLimit {
		opts.DefaultLimit = opts.MaxLimit
	}
	if params == nil {
		params = url.Values{}
	}
	return &Builder{params: params, opts: opts}
}

// With 返回追加了一个等值参数的副本，原 Builder 不变
func (b *Builder) With(key, value string) *Builder {
	cp := make(url.Values, len(b.params)+1)
	for k, v := range b.params {
		cp[k] = append([]string(nil), v...)
	}
	cp.Set(key, value)
	return &Builder{params: cp, opts: b.opts}
}

func isReserved(key string) bool {
	switch key {
	case ParamPage, ParamLimit, ParamSortBy, ParamSortOrder, ParamKeyword:
		return true
	}
	return false
}

// parseKey 拆分 field[op]，无比较符时为等值
func parseKey(key string) (string, Operator, bool) {
	open := strings.IndexByte(key, '[')
	if open < 0 {
		return key, OpEq, key != ""
	}
	if !strings.HasSuffix(key, "]") || open == 0 {
		return "", "", false
	}
	field := key[:open]
	op := Operator(key[open+1 : len(key)-1])
	switch op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn:
		return field, op, true
	}
	return "", "", false
}

// BuildFilter 结构化的等值/范围过滤条件，不含关键字
// 结果按参数名排序，保证生成的 SQL 稳定
func (b *Builder) BuildFilter() []Condition {
	keys := make([]string, 0, len(b.params))
	for k := range b.params {
		if !isReserved(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	conds := make([]Condition, 0, len(keys))
	for _, k := range keys {
		field, op, ok := parseKey(k)
		if !ok {
			continue
		}
		raw := strings.TrimSpace(b.params.Get(k))
		if raw == "" {
			continue
		}
		if op == OpIn {
			var values []string
			for _, v := range strings.Split(raw, ",") {
				if v = strings.TrimSpace(v); v != "" {
					values = append(values, v)
				}
			}
			if len(values) == 0 {
				continue
			}
			conds = append(conds, Condition{Field: field, Op: op, Values: values})
			continue
		}
		conds = append(conds, Condition{Field: field, Op: op, Value: raw})
	}
	return conds
}

// GetKeyword 去除首尾空白后的关键字
func (b *Builder) GetKeyword() string {
	return strings.TrimSpace(b.params.Get(ParamKeyword))
}

// HasKeyword 是否提供了关键字
func (b *Builder) HasKeyword() bool {
	return b.GetKeyword() != ""
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// BuildKeywordMatch 生成大小写不敏感的多列 LIKE 匹配表达式（OR 连接）
// 列名由调用方给出，必须是联表后的限定列名；无关键字时返回空串
func (b *Builder) BuildKeywordMatch(columns ...string) (string, []interface{}) {
	kw := b.GetKeyword()
	if kw == "" || len(columns) == 0 {
		return "", nil
	}

	pattern := "%" + likeEscaper.Replace(strings.ToLower(kw)) + "%"
	parts := make([]string, len(columns))
	args := make([]interface{}, len(columns))
	for i, col := range columns {
		parts[i] = "LOWER(" + col + `) LIKE ? ESCAPE '\'`
		args[i] = pattern
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

// GetSort 排序字段与方向，默认 createdAt 倒序
func (b *Builder) GetSort() Sort {
	field := strings.TrimSpace(b.params.Get(ParamSortBy))
	if field == "" {
		field = DefaultSortField
	}
	order := strings.ToLower(strings.TrimSpace(b.params.Get(ParamSortOrder)))
	return Sort{Field: field, Desc: order != "asc"}
}

// positiveInt 超出 int 范围的正数视为 math.MaxInt，由调用方截断
func positiveInt(raw string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if errors.Is(err, strconv.ErrRange) && n > 0 {
		return math.MaxInt, true
	}
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// GetPage 页码，非法值回退为 1，超过 MaxPage 时截断
func (b *Builder) GetPage() int {
	n, ok := positiveInt(b.params.Get(ParamPage))
	if !ok {
		return DefaultPage
	}
	if n > MaxPage {
		return MaxPage
	}
	return n
}

// GetLimit 每页条数，非法值回退为默认值，超过上限时截断
func (b *Builder) GetLimit() int {
	n, ok := positiveInt(b.params.Get(ParamLimit))
	if !ok {
		return b.opts.DefaultLimit
	}
	if n > b.opts.MaxLimit {
		return b.opts.MaxLimit
	}
	return n
}

// GetSkip 偏移量 (page-1)*limit
func (b *Builder) GetSkip() int {
	return (b.GetPage() - 1) * b.GetLimit()
}

package loads

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"rate-desk-go/negotiation"
)

// Load 一条可报盘的货源记录，来自货源盘 CSV。
type Load struct {
	LoadID           string  `json:"load_id"`
	Origin           string  `json:"origin"`
	Destination      string  `json:"destination"`
	PickupDatetime   string  `json:"pickup_datetime"`
	DeliveryDatetime string  `json:"delivery_datetime"`
	EquipmentType    string  `json:"equipment_type"`
	LoadboardRate    float64 `json:"loadboard_rate"`
	Notes            string  `json:"notes,omitempty"`
	Weight           float64 `json:"weight,omitempty"`
	CommodityType    string  `json:"commodity_type,omitempty"`
	NumOfPieces      int     `json:"num_of_pieces,omitempty"`
	Miles            float64 `json:"miles,omitempty"`
	Dimensions       string  `json:"dimensions,omitempty"`
}

// Context 转换为协商引擎的只读输入。
func (l Load) Context() negotiation.LoadContext {
	return negotiation.LoadContext{
		LoadID:        l.LoadID,
		BoardRate:     l.LoadboardRate,
		Miles:         l.Miles,
		EquipmentType: l.EquipmentType,
	}
}

// Query 检索条件。Origin/Destination 为大小写不敏感的子串匹配。
type Query struct {
	EquipmentType string
	Origin        string
	Destination   string
	Limit         int // <=0 时取默认 3 条
}

const defaultLimit = 3

// Catalog 内存中的货源盘，启动时从 CSV 装载，检索期间只读。
type Catalog struct {
	loads []Load
}

// NewCatalog 构造空货源盘，随后通过 FromCSV 装载。
func NewCatalog() *Catalog {
	return &Catalog{}
}

// Len 当前记录数。
func (c *Catalog) Len() int { return len(c.loads) }

// FromCSVFile 打开文件并装载，启动路径的便捷写法。
func FromCSVFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open loads csv: %w", err)
	}
	defer f.Close()
	c := NewCatalog()
	if err := c.FromCSV(f); err != nil {
		return nil, err
	}
	return c, nil
}

// FromCSV 从货源盘 CSV 读入记录并整体替换现有内容。
// 首行必须是表头，缺列按零值处理。
func (c *Catalog) FromCSV(src io.Reader) error {
	r := csv.NewReader(src)
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read csv header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := idx["load_id"]; !ok {
		return errors.New("loads csv missing load_id column")
	}

	field := func(row []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	num := func(row []string, name string) float64 {
		v, err := strconv.ParseFloat(field(row, name), 64)
		if err != nil {
			return 0
		}
		return v
	}

	var loads []Load
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read csv row: %w", err)
		}
		l := Load{
			LoadID:           field(row, "load_id"),
			Origin:           field(row, "origin"),
			Destination:      field(row, "destination"),
			PickupDatetime:   field(row, "pickup_datetime"),
			DeliveryDatetime: field(row, "delivery_datetime"),
			EquipmentType:    field(row, "equipment_type"),
			LoadboardRate:    num(row, "loadboard_rate"),
			Notes:            field(row, "notes"),
			Weight:           num(row, "weight"),
			CommodityType:    field(row, "commodity_type"),
			NumOfPieces:      int(num(row, "num_of_pieces")),
			Miles:            num(row, "miles"),
			Dimensions:       field(row, "dimensions"),
		}
		if l.LoadID == "" {
			continue
		}
		loads = append(loads, l)
	}
	c.loads = loads
	return nil
}

// Search 过滤 + 打分排序，返回前 N 条。
// 打分规则沿用简单文本命中：起讫点都命中的排前面。
func (c *Catalog) Search(q Query) []Load {
	eq := norm(q.EquipmentType)
	origin := norm(q.Origin)
	dest := norm(q.Destination)

	type scored struct {
		l     Load
		score int
		pos   int
	}
	var hits []scored
	for i, l := range c.loads {
		if eq != "" && norm(l.EquipmentType) != eq {
			continue
		}
		if origin != "" && !strings.Contains(norm(l.Origin), origin) {
			continue
		}
		if dest != "" && !strings.Contains(norm(l.Destination), dest) {
			continue
		}
		s := 0
		if origin != "" && strings.Contains(norm(l.Origin), origin) {
			s++
		}
		if dest != "" && strings.Contains(norm(l.Destination), dest) {
			s++
		}
		hits = append(hits, scored{l: l, score: s, pos: i})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].pos < hits[j].pos
	})

	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > len(hits) {
		limit = len(hits)
	}
	out := make([]Load, 0, limit)
	for _, h := range hits[:limit] {
		out = append(out, h.l)
	}
	return out
}

// Get 按 load_id 查找。
func (c *Catalog) Get(loadID string) (Load, bool) {
	for _, l := range c.loads {
		if l.LoadID == loadID {
			return l, true
		}
	}
	return Load{}, false
}

func norm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

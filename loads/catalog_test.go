package loads

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `load_id,origin,destination,pickup_datetime,delivery_datetime,equipment_type,loadboard_rate,notes,weight,commodity_type,num_of_pieces,miles,dimensions
L-1001,"Chicago, IL","Dallas, TX",2026-09-01T08:00:00,2026-09-02T17:00:00,Dry Van,1400,,42000,Paper,22,925,
L-1002,"Chicago, IL","Atlanta, GA",2026-09-01T10:00:00,2026-09-02T20:00:00,Reefer,2100,Keep at 34F,38000,Produce,18,720,
L-1003,"Milwaukee, WI","Dallas, TX",2026-09-03T06:00:00,2026-09-04T18:00:00,Dry Van,1350,,40000,Retail,20,990,
L-1004,"Denver, CO","Phoenix, AZ",2026-09-02T07:00:00,2026-09-03T12:00:00,Flatbed,1800,Tarps required,45000,Steel,8,860,
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "loads.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))
	return path
}

func sampleCatalog(t *testing.T) *Catalog {
	t.Helper()
	c := NewCatalog()
	require.NoError(t, c.FromCSV(strings.NewReader(sampleCSV)))
	return c
}

// 空目录 + 任意 io.Reader 装载是服务端和容器的标准用法。
func TestNewCatalogFromReader(t *testing.T) {
	c := NewCatalog()
	assert.Equal(t, 0, c.Len())

	require.NoError(t, c.FromCSV(strings.NewReader(sampleCSV)))
	assert.Equal(t, 4, c.Len())

	l, ok := c.Get("L-1001")
	require.True(t, ok)
	assert.Equal(t, 1400.0, l.LoadboardRate)
	assert.Equal(t, 925.0, l.Miles)
	assert.Equal(t, "Dry Van", l.EquipmentType)
}

// 重复装载整体替换，不追加。
func TestFromCSV_Replaces(t *testing.T) {
	c := sampleCatalog(t)
	require.NoError(t, c.FromCSV(strings.NewReader("load_id,loadboard_rate\nL-2001,900\n")))
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("L-1001")
	assert.False(t, ok)
}

func TestFromCSVFile(t *testing.T) {
	c, err := FromCSVFile(writeSample(t))
	require.NoError(t, err)
	assert.Equal(t, 4, c.Len())
}

func TestFromCSVFile_MissingFile(t *testing.T) {
	_, err := FromCSVFile(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

func TestSearch_EquipmentFilter(t *testing.T) {
	c := sampleCatalog(t)

	res := c.Search(Query{EquipmentType: "dry van"})
	require.Len(t, res, 2)
	for _, l := range res {
		assert.Equal(t, "Dry Van", l.EquipmentType)
	}
}

// 起讫点都命中的排在只命中一项的前面。
func TestSearch_Scoring(t *testing.T) {
	c := sampleCatalog(t)

	res := c.Search(Query{EquipmentType: "Dry Van", Destination: "dallas"})
	require.Len(t, res, 2)
	assert.Equal(t, "L-1001", res[0].LoadID)

	res = c.Search(Query{Origin: "chicago", Destination: "dallas"})
	require.Len(t, res, 1)
	assert.Equal(t, "L-1001", res[0].LoadID)
}

func TestSearch_Limit(t *testing.T) {
	c := sampleCatalog(t)
	assert.Len(t, c.Search(Query{}), 3) // 默认 top-3
	assert.Len(t, c.Search(Query{Limit: 1}), 1)
}

func TestSearch_NoMatch(t *testing.T) {
	c := sampleCatalog(t)
	assert.Empty(t, c.Search(Query{EquipmentType: "Power Only"}))
}

func TestLoadContext(t *testing.T) {
	c := sampleCatalog(t)
	l, _ := c.Get("L-1003")
	ctx := l.Context()
	assert.Equal(t, "L-1003", ctx.LoadID)
	assert.Equal(t, 1350.0, ctx.BoardRate)
	assert.Equal(t, 990.0, ctx.Miles)
}

func TestFromCSV_MissingHeader(t *testing.T) {
	c := NewCatalog()
	assert.Error(t, c.FromCSV(strings.NewReader("a,b\n1,2\n")))
}

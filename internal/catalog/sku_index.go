package catalog

import (
	"strings"
	"sync"

	"github.com/google/btree"
)

// SkuIndex is an ordered in-memory SKU lookup used by the register's scan and
// type-ahead search. Keys are case-folded.
type SkuIndex struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[SkuEntry]
}

func skuLess(a, b SkuEntry) bool {
	return strings.ToUpper(a.Sku) < strings.ToUpper(b.Sku)
}

func NewSkuIndex() *SkuIndex {
	return &SkuIndex{tree: btree.NewG[SkuEntry](16, skuLess)}
}

// Reset replaces the whole index
func (x *SkuIndex) Reset(entries []SkuEntry) {
	tree := btree.NewG[SkuEntry](16, skuLess)
	for _, e := range entries {
		if e.Sku != "" {
			tree.ReplaceOrInsert(e)
		}
	}
	x.mu.Lock()
	x.tree = tree
	x.mu.Unlock()
}

func (x *SkuIndex) Put(e SkuEntry) {
	if e.Sku == "" {
		return
	}
	x.mu.Lock()
	x.tree.ReplaceOrInsert(e)
	x.mu.Unlock()
}

func (x *SkuIndex) Remove(sku string) {
	x.mu.Lock()
	x.tree.Delete(SkuEntry{Sku: sku})
	x.mu.Unlock()
}

// Get finds an exact SKU, ignoring case
func (x *SkuIndex) Get(sku string) (SkuEntry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.tree.Get(SkuEntry{Sku: sku})
}

// Prefix returns up to limit entries whose SKU starts with prefix
func (x *SkuIndex) Prefix(prefix string, limit int) []SkuEntry {
	upper := strings.ToUpper(prefix)
	var out []SkuEntry
	x.mu.RLock()
	defer x.mu.RUnlock()
	x.tree.AscendGreaterOrEqual(SkuEntry{Sku: prefix}, func(e SkuEntry) bool {
		if !strings.HasPrefix(strings.ToUpper(e.Sku), upper) {
			return false
		}
		out = append(out, e)
		return limit <= 0 || len(out) < limit
	})
	return out
}

func (x *SkuIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.tree.Len()
}

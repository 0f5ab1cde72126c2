package suggest

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuggestPrefixMatch(t *testing.T) {
	m := NewMemory(10)
	m.Record("exporterName", "Acme Exports Ltd")
	m.Record("exporterName", "Apex Trading Co")
	m.Record("exporterName", "Zenith Industrial")

	got := m.Suggest("exporterName", "a", 10)
	assert.Equal(t, []string{"Apex Trading Co", "Acme Exports Ltd"}, got, "most recent first")

	got = m.Suggest("exporterName", "ZEN", 10)
	assert.Equal(t, []string{"Zenith Industrial"}, got)

	assert.Empty(t, m.Suggest("exporterName", "xyz", 10))
}

func TestSuggestEmptyPrefixReturnsAll(t *testing.T) {
	m := NewMemory(10)
	m.Record("portOfLoading", "Shanghai")
	m.Record("portOfLoading", "Ningbo")

	got := m.Suggest("portOfLoading", "", 10)
	assert.Equal(t, []string{"Ningbo", "Shanghai"}, got)
}

func TestSuggestFieldsAreIsolated(t *testing.T) {
	m := NewMemory(10)
	m.Record("exporterName", "Acme Exports Ltd")

	assert.Empty(t, m.Suggest("importerName", "a", 10))
	assert.Empty(t, m.Suggest("unknownField", "", 10))
}

func TestRecordRefreshesRecency(t *testing.T) {
	m := NewMemory(10)
	m.Record("exporterName", "Acme Exports Ltd")
	m.Record("exporterName", "Apex Trading Co")
	m.Record("exporterName", "Acme Exports Ltd")

	got := m.Suggest("exporterName", "", 10)
	require.Len(t, got, 2)
	assert.Equal(t, "Acme Exports Ltd", got[0])
}

func TestRecordIgnoresBlankValues(t *testing.T) {
	m := NewMemory(10)
	m.Record("exporterName", "   ")
	m.Record("", "Acme")

	assert.Empty(t, m.Suggest("exporterName", "", 10))
}

func TestCapacityEvictsOldest(t *testing.T) {
	m := NewMemory(3)
	for i := 1; i <= 5; i++ {
		m.Record("exporterName", fmt.Sprintf("Supplier %d", i))
	}

	got := m.Suggest("exporterName", "", 10)
	assert.Equal(t, []string{"Supplier 5", "Supplier 4", "Supplier 3"}, got)
}

func TestSuggestLimit(t *testing.T) {
	m := NewMemory(10)
	for i := 1; i <= 5; i++ {
		m.Record("exporterName", fmt.Sprintf("Supplier %d", i))
	}

	assert.Len(t, m.Suggest("exporterName", "", 2), 2)
}

package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnection_Defaults(t *testing.T) {
	connection := NewConnection(nil)

	assert.False(t, connection.UseDatapackage())
	assert.False(t, connection.UseMemoryDB())
	assert.False(t, connection.PurgeBeforeWriting())
	assert.Equal(t, 1, connection.WriteIndex())
	assert.True(t, connection.IsFilterOnlineByDefault())
	assert.Empty(t, connection.Notifications())
}

func TestConnection_ConvertForward_MarksDatabasesInMemory(t *testing.T) {
	connection := NewConnection(map[string]any{OptionUseMemoryDB: true})

	database := NewDatabaseResource("Store", "sqlite:///db.sqlite")
	file := NewFileResource("Store", "/data/report.txt")

	converted := connection.ConvertForward([]*Resource{database, file})

	require.Len(t, converted, 2)
	assert.Equal(t, true, converted[0].Metadata[MetadataMemory])
	assert.Nil(t, database.Metadata[MetadataMemory])
	assert.Nil(t, converted[1].Metadata[MetadataMemory])
}

func TestConnection_ConvertForward_BundlesCSVsIntoDatapackage(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.csv")
	second := filepath.Join(dir, "nested", "b.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(second), 0o755))
	require.NoError(t, os.WriteFile(first, []byte("x\n"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("y\n"), 0o644))

	connection := NewConnection(map[string]any{OptionUseDatapackage: true})

	other := NewFileResource("Tool", filepath.Join(dir, "log.txt"))
	converted := connection.ConvertForward([]*Resource{
		NewFileResource("Tool", first),
		NewFileResource("Tool", second),
		other,
	})

	require.Len(t, converted, 2)
	assert.Equal(t, other.URL, converted[0].URL)

	bundle := converted[1]
	assert.Equal(t, "datapackage@Tool", bundle.Label())
	assert.FileExists(t, bundle.Path())
	assert.Equal(t, "datapackage.json", filepath.Base(bundle.Path()))
}

func TestConnection_ConvertForward_DatapackageDescriptorInCommonDirectory(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "data", "a.csv")
	// "data-x" shares a name prefix with "data" but is a sibling directory.
	second := filepath.Join(dir, "data-x", "b.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(first), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Dir(second), 0o755))
	require.NoError(t, os.WriteFile(first, []byte("x\n"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("y\n"), 0o644))

	connection := NewConnection(map[string]any{OptionUseDatapackage: true})
	converted := connection.ConvertForward([]*Resource{
		NewFileResource("Tool", first),
		NewFileResource("Tool", second),
	})

	require.Len(t, converted, 1)
	assert.Equal(t, filepath.Join(dir, "datapackage.json"), converted[0].Path())
}

func TestConnection_ConvertBackward_StampsWriteOrdering(t *testing.T) {
	destination := "Store"
	edge := EdgePair{Source: "Second writer", Destination: destination}
	siblings := map[EdgePair]*Connection{
		{Source: "First writer", Destination: destination}:  NewConnection(map[string]any{OptionWriteIndex: 1}),
		{Source: "Second writer", Destination: destination}: NewConnection(map[string]any{OptionWriteIndex: 2}),
		{Source: "Third writer", Destination: destination}:  NewConnection(map[string]any{OptionWriteIndex: 3}),
	}
	connection := siblings[edge]

	database := NewDatabaseResource(destination, "sqlite:///db.sqlite")
	converted := connection.ConvertBackward([]*Resource{database}, edge, siblings)

	require.Len(t, converted, 1)
	stamped := converted[0]

	assert.Equal(t, edge, stamped.Metadata[MetadataCurrent])

	precursors, ok := stamped.Metadata[MetadataPrecursors].(map[EdgePair]struct{})
	require.True(t, ok)
	assert.Equal(t, map[EdgePair]struct{}{
		{Source: "First writer", Destination: destination}: {},
	}, precursors)

	_, ok = stamped.Metadata[MetadataPartCount].(*PartCount)
	assert.True(t, ok)

	// The stamp happens regardless of the memory option.
	assert.Nil(t, stamped.Metadata[MetadataMemory])
}

func TestConnection_ConvertBackward_AppliesMemoryOption(t *testing.T) {
	connection := NewConnection(map[string]any{OptionUseMemoryDB: true})
	edge := EdgePair{Source: "Writer", Destination: "Store"}

	database := NewDatabaseResource("Store", "sqlite:///db.sqlite")
	converted := connection.ConvertBackward([]*Resource{database}, edge, map[EdgePair]*Connection{edge: connection})

	require.Len(t, converted, 1)
	assert.Equal(t, true, converted[0].Metadata[MetadataMemory])
	assert.NotNil(t, converted[0].Metadata[MetadataPartCount])
}

func TestConnection_Notifications_RequiredFilterOffline(t *testing.T) {
	connection := NewConnection(nil)
	connection.SetRequireFilterOnline(ScenarioFilterType)
	connection.FilterSettings.AutoOnline = false

	notifications := connection.Notifications()
	require.Len(t, notifications, 1)
	assert.Contains(t, notifications[0], "scenario")
}

func TestConnection_Notifications_AutoOnlineSatisfiesRequirement(t *testing.T) {
	connection := NewConnection(nil)
	connection.SetRequireFilterOnline(ScenarioFilterType)

	assert.Empty(t, connection.Notifications())
}

func TestConnection_Notifications_ExplicitOnlineFilterSatisfiesRequirement(t *testing.T) {
	connection := NewConnection(nil)
	connection.SetRequireFilterOnline(ScenarioFilterType)
	connection.FilterSettings.AutoOnline = false
	connection.FilterSettings.SetFilterOnline("db@Store", ScenarioFilterType, "Base scenario", true)

	assert.Empty(t, connection.Notifications())
}

func TestConnection_Notifications_KnownOfflineFilterOverridesAutoOnline(t *testing.T) {
	connection := NewConnection(nil)
	connection.SetRequireFilterOnline(ScenarioFilterType)
	connection.FilterSettings.SetFilterOnline("db@Store", ScenarioFilterType, "Base scenario", false)

	notifications := connection.Notifications()
	require.Len(t, notifications, 1)
}

func TestFilterSettings(t *testing.T) {
	settings := FilterSettings{AutoOnline: true}
	assert.False(t, settings.HasFilters())
	assert.False(t, settings.HasAnyFilterOnline())

	settings.SetFilterOnline("db@Store", ScenarioFilterType, "Base scenario", false)
	assert.True(t, settings.HasFilters())
	assert.False(t, settings.HasAnyFilterOnline())
	assert.False(t, settings.HasFilterOnline(ScenarioFilterType))

	settings.SetFilterOnline("db@Store", ScenarioFilterType, "High demand", true)
	assert.True(t, settings.HasAnyFilterOnline())
	assert.True(t, settings.HasFilterOnline(ScenarioFilterType))
	assert.False(t, settings.HasFilterOnline("tool_filter"))
}

package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaveflow/weft/pkg/models"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	p := New("Round trip", "A project with one of everything")

	specification := &Specification{
		Name:       "importer spec",
		ItemType:   "importer",
		Definition: map[string]any{"mappings": []any{"csv"}},
	}
	require.NoError(t, p.AddSpecification(specification))

	importer := NewNode("Importer", "importer", map[string]any{"on_conflict": "replace"})
	importer.SetSpecification(specification)
	require.NoError(t, p.AddNode(importer))
	require.NoError(t, p.AddNode(NewNode("Store", "data_store", nil)))
	require.NoError(t, p.AddNode(NewNode("Tool", "tool", nil)))

	connection := models.NewConnection(map[string]any{models.OptionUseMemoryDB: true})
	connection.FilterSettings.SetFilterOnline("db@Store", models.ScenarioFilterType, "base", true)
	require.NoError(t, p.AddConnection("Importer", "Store", connection))
	require.NoError(t, p.AddConnection("Store", "Tool", nil))

	jump, err := p.MakeJump("Tool", "Store")
	require.NoError(t, err)
	jump.Condition = models.JumpCondition{Type: models.ConditionTypeIterations, MaxIterations: 3}

	data, err := Marshal(p)
	require.NoError(t, err)

	restored, err := Unmarshal(data)
	require.NoError(t, err)

	assert.Equal(t, "Round trip", restored.Name())
	assert.Equal(t, "A project with one of everything", restored.Description())
	assert.True(t, restored.IsMemoryOnly())
	require.Len(t, restored.Nodes(), 3)

	restoredImporter, err := restored.Node("Importer")
	require.NoError(t, err)
	assert.Equal(t, "importer", restoredImporter.Type())
	assert.Equal(t, map[string]any{"on_conflict": "replace"}, restoredImporter.Config())
	require.NotNil(t, restoredImporter.Specification())
	assert.Equal(t, "importer spec", restoredImporter.Specification().Name)

	restoredConnection, err := restored.Connection("Importer", "Store")
	require.NoError(t, err)
	assert.True(t, restoredConnection.UseMemoryDB())
	assert.True(t, restoredConnection.FilterSettings.HasFilterOnline(models.ScenarioFilterType))

	restoredJump, err := restored.Jump("Tool", "Store")
	require.NoError(t, err)
	assert.Equal(t, models.ConditionTypeIterations, restoredJump.Condition.Type)
	assert.Equal(t, 3, restoredJump.Condition.MaxIterations)
}

func TestUnmarshalConnectionWithoutFilterSettingsKeepsAutoOnline(t *testing.T) {
	document := `{
		"version": 1,
		"name": "hand written",
		"items": [
			{"name": "a", "type": "tool"},
			{"name": "b", "type": "tool"}
		],
		"connections": [
			{"from": "a", "to": "b", "options": {"require_scenario_filter": true}}
		]
	}`

	p, err := Unmarshal([]byte(document))
	require.NoError(t, err)

	connection, err := p.Connection("a", "b")
	require.NoError(t, err)
	assert.True(t, connection.IsFilterOnlineByDefault())

	// With auto-online intact, the required filter resolves by default.
	assert.Empty(t, connection.Notifications())
}

func TestUnmarshalFilterSettingsWithoutAutoOnlineKeepsDefault(t *testing.T) {
	document := `{
		"version": 1,
		"name": "hand written",
		"items": [
			{"name": "a", "type": "tool"},
			{"name": "b", "type": "tool"}
		],
		"connections": [
			{"from": "a", "to": "b", "filter_settings": {"known_filters": {}}}
		]
	}`

	p, err := Unmarshal([]byte(document))
	require.NoError(t, err)

	connection, err := p.Connection("a", "b")
	require.NoError(t, err)
	assert.True(t, connection.IsFilterOnlineByDefault())
}

func TestUnmarshalExplicitAutoOnlineFalseSurvives(t *testing.T) {
	document := `{
		"version": 1,
		"name": "hand written",
		"items": [
			{"name": "a", "type": "tool"},
			{"name": "b", "type": "tool"}
		],
		"connections": [
			{"from": "a", "to": "b", "filter_settings": {"auto_online": false}}
		]
	}`

	p, err := Unmarshal([]byte(document))
	require.NoError(t, err)

	connection, err := p.Connection("a", "b")
	require.NoError(t, err)
	assert.False(t, connection.IsFilterOnlineByDefault())
}

func TestUnmarshalRejectsNewerVersion(t *testing.T) {
	_, err := Unmarshal([]byte(`{"version": 999, "name": "future"}`))
	require.ErrorIs(t, err, ErrVersionTooHigh)
}

func TestUnmarshalRejectsMalformedDocuments(t *testing.T) {
	_, err := Unmarshal([]byte(`{"version": 1}`))
	require.Error(t, err)

	_, err = Unmarshal([]byte(`not json`))
	require.Error(t, err)

	_, err = Unmarshal([]byte(`{"version": 1, "name": "p", "connections": [{"from": "a"}]}`))
	require.Error(t, err)
}

func TestUnmarshalRejectsUnknownSpecificationReference(t *testing.T) {
	document := `{
		"version": 1,
		"name": "p",
		"items": [{"name": "a", "type": "tool", "specification": "ghost"}]
	}`

	_, err := Unmarshal([]byte(document))
	require.ErrorIs(t, err, ErrComponentNotFound)
}

func TestSaveAndLoad(t *testing.T) {
	p := New("My Project", "persisted")
	require.NoError(t, p.AddNode(NewNode("a", "tool", nil)))
	require.NoError(t, p.AddNode(NewNode("b", "tool", nil)))
	require.NoError(t, p.AddConnection("a", "b", nil))

	baseDir := t.TempDir()
	require.NoError(t, p.TieToDisk(baseDir))
	require.NoError(t, p.Save())

	restored, err := Load(p.Dir())
	require.NoError(t, err)
	assert.Equal(t, "My Project", restored.Name())
	assert.False(t, restored.IsMemoryOnly())

	node, err := restored.Node("a")
	require.NoError(t, err)
	assert.DirExists(t, node.DataDir())
}

func TestLoadTiesToTheDirectoryItReadFrom(t *testing.T) {
	p := New("My Project", "persisted")
	require.NoError(t, p.AddNode(NewNode("a", "tool", nil)))

	baseDir := t.TempDir()
	require.NoError(t, p.TieToDisk(baseDir))
	require.NoError(t, p.Save())

	// The directory name no longer matches the shortened project name.
	renamed := filepath.Join(baseDir, "elsewhere")
	require.NoError(t, os.Rename(p.Dir(), renamed))

	restored, err := Load(renamed)
	require.NoError(t, err)
	assert.Equal(t, renamed, restored.Dir())
	assert.NoDirExists(t, filepath.Join(baseDir, Shorten("My Project")))

	node, err := restored.Node("a")
	require.NoError(t, err)
	assert.DirExists(t, node.DataDir())
}

func TestSaveRequiresProjectDir(t *testing.T) {
	p := New("memory", "")
	require.ErrorIs(t, p.Save(), ErrMemoryOnlyProject)
}

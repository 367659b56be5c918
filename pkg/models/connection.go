package models

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Connection option keys stored in the options map.
const (
	OptionUseDatapackage     = "use_datapackage"
	OptionUseMemoryDB        = "use_memory_db"
	OptionPurgeBeforeWriting = "purge_before_writing"
	OptionPurgeSettings      = "purge_settings"
	OptionWriteIndex         = "write_index"
	optionRequirePrefix      = "require_"
)

// ScenarioFilterType is the only filter type a connection can currently
// require to be online before execution.
const ScenarioFilterType = "scenario_filter"

// EdgePair identifies a connection by its source and destination node names.
type EdgePair struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// Connection carries the resource-conversion policy of one edge.
type Connection struct {
	Options        map[string]any `json:"options,omitempty"`
	FilterSettings FilterSettings `json:"filter_settings"`
}

// NewConnection returns a connection with the given options and default
// filter settings.
func NewConnection(options map[string]any) *Connection {
	if options == nil {
		options = make(map[string]any)
	}

	return &Connection{
		Options:        options,
		FilterSettings: FilterSettings{AutoOnline: true},
	}
}

// UseDatapackage reports whether file resources are bundled into a
// datapackage when crossing this connection.
func (c *Connection) UseDatapackage() bool {
	return c.boolOption(OptionUseDatapackage)
}

// UseMemoryDB reports whether database resources are converted to use an
// in-memory database.
func (c *Connection) UseMemoryDB() bool {
	return c.boolOption(OptionUseMemoryDB)
}

// PurgeBeforeWriting reports whether the downstream database is purged before
// writing.
func (c *Connection) PurgeBeforeWriting() bool {
	return c.boolOption(OptionPurgeBeforeWriting)
}

// PurgeSettings returns the per-item-type purge map, or nil when the whole
// database should be purged.
func (c *Connection) PurgeSettings() map[string]bool {
	settings, _ := c.Options[OptionPurgeSettings].(map[string]bool)

	return settings
}

// WriteIndex returns the connection's priority in concurrent writing.
// Defaults to 1; lower writes earlier, ties are unordered.
func (c *Connection) WriteIndex() int {
	switch index := c.Options[OptionWriteIndex].(type) {
	case int:
		return index
	case float64: // JSON numbers decode to float64
		return int(index)
	default:
		return 1
	}
}

// IsFilterOnlineByDefault reports whether an unknown filter starts online.
func (c *Connection) IsFilterOnlineByDefault() bool {
	return c.FilterSettings.AutoOnline
}

// RequireFilterOnline reports whether execution requires at least one online
// filter of the given type.
func (c *Connection) RequireFilterOnline(filterType string) bool {
	value, _ := c.Options[optionRequirePrefix+filterType].(bool)

	return value
}

// SetRequireFilterOnline makes an online filter of the given type mandatory.
func (c *Connection) SetRequireFilterOnline(filterType string) {
	c.Options[optionRequirePrefix+filterType] = true
}

// Notifications returns human-readable validation messages that should block
// execution, e.g. a required filter type with nothing online.
func (c *Connection) Notifications() []string {
	var notifications []string

	for filterType, name := range map[string]string{ScenarioFilterType: "scenario"} {
		if !c.RequireFilterOnline(filterType) {
			continue
		}

		online := c.FilterSettings.AutoOnline
		if c.FilterSettings.HasFilters() {
			online = c.FilterSettings.HasFilterOnline(filterType)
		}

		if !online {
			notifications = append(notifications, fmt.Sprintf("At least one %s filter must be active.", name))
		}
	}

	return notifications
}

// ConvertForward converts resources crossing this connection in the forward
// direction: optional datapackage bundling of CSV files, optional in-memory
// conversion of databases.
func (c *Connection) ConvertForward(resources []*Resource) []*Resource {
	return c.applyUseMemoryDB(c.applyUseDatapackage(resources))
}

// ConvertBackward converts resources crossing this connection in the backward
// direction. Besides the optional in-memory conversion, database resources are
// always stamped with write-ordering metadata: the sibling connections into
// the same destination that must write before this one, plus a shared part
// counter all of them coordinate on.
func (c *Connection) ConvertBackward(resources []*Resource, edge EdgePair, siblings map[EdgePair]*Connection) []*Resource {
	return c.applyUseMemoryDB(c.applyWriteIndex(resources, edge, siblings))
}

func (c *Connection) applyUseMemoryDB(resources []*Resource) []*Resource {
	if !c.UseMemoryDB() {
		return resources
	}

	converted := make([]*Resource, 0, len(resources))
	for _, resource := range resources {
		if resource.Type == ResourceTypeDatabase {
			resource = resource.Clone(map[string]any{MetadataMemory: true})
		}

		converted = append(converted, resource)
	}

	return converted
}

func (c *Connection) applyWriteIndex(resources []*Resource, edge EdgePair, siblings map[EdgePair]*Connection) []*Resource {
	precursors := make(map[EdgePair]struct{})
	for pair, sibling := range siblings {
		if pair != edge && sibling.WriteIndex() < c.WriteIndex() {
			precursors[pair] = struct{}{}
		}
	}

	partCount := &PartCount{}

	converted := make([]*Resource, 0, len(resources))
	for _, resource := range resources {
		if resource.Type == ResourceTypeDatabase {
			resource = resource.Clone(map[string]any{
				MetadataCurrent:    edge,
				MetadataPrecursors: precursors,
				MetadataPartCount:  partCount,
			})
		}

		converted = append(converted, resource)
	}

	return converted
}

func (c *Connection) applyUseDatapackage(resources []*Resource) []*Resource {
	if !c.UseDatapackage() {
		return resources
	}

	var (
		converted = make([]*Resource, 0, len(resources))
		csvPaths  []string
		provider  string
	)

	for _, resource := range resources {
		if resource.HasFilePath() && strings.EqualFold(filepath.Ext(resource.Path()), ".csv") {
			csvPaths = append(csvPaths, resource.Path())
			provider = resource.Provider

			continue
		}

		converted = append(converted, resource)
	}

	if len(csvPaths) == 0 {
		return converted
	}

	packagePath, err := writeDatapackage(csvPaths)
	if err != nil {
		// The bundle could not be written; fall back to the raw files.
		return resources
	}

	bundle := NewFileResource(provider, packagePath)
	bundle.Metadata = map[string]any{MetadataLabel: "datapackage@" + provider}

	return append(converted, bundle)
}

type datapackageDescriptor struct {
	Resources []datapackageResource `json:"resources"`
}

type datapackageResource struct {
	Path string `json:"path"`
}

// writeDatapackage writes a datapackage.json descriptor under the common base
// directory of the given CSV files and returns the descriptor's path.
func writeDatapackage(csvPaths []string) (string, error) {
	basePath := filepath.Dir(csvPaths[0])
	for _, path := range csvPaths[1:] {
		for !underDir(filepath.Dir(path), basePath) {
			parent := filepath.Dir(basePath)
			if parent == basePath {
				break
			}

			basePath = parent
		}
	}

	descriptor := datapackageDescriptor{}
	for _, path := range csvPaths {
		relative, err := filepath.Rel(basePath, path)
		if err != nil {
			return "", err
		}

		descriptor.Resources = append(descriptor.Resources, datapackageResource{Path: filepath.ToSlash(relative)})
	}

	payload, err := json.MarshalIndent(descriptor, "", "  ")
	if err != nil {
		return "", err
	}

	packagePath := filepath.Join(basePath, "datapackage.json")
	if err := os.WriteFile(packagePath, payload, 0o644); err != nil {
		return "", err
	}

	return packagePath, nil
}

// underDir reports whether dir equals base or sits below it. The separator
// boundary keeps sibling directories sharing a name prefix apart.
func underDir(dir, base string) bool {
	return dir == base || strings.HasPrefix(dir, base+string(filepath.Separator))
}

func (c *Connection) boolOption(key string) bool {
	value, _ := c.Options[key].(bool)

	return value
}

// FilterSettings holds a connection's per-resource filter state: a mapping
// from resource label and filter type to named online flags, plus the default
// for filters not yet listed.
type FilterSettings struct {
	// KnownFilters maps resource label -> filter type -> filter name -> online.
	KnownFilters map[string]map[string]map[string]bool `json:"known_filters,omitempty"`
	// AutoOnline makes filters not present in KnownFilters default to online.
	AutoOnline bool `json:"auto_online"`
}

// UnmarshalJSON keeps AutoOnline true when the document omits it, matching
// NewConnection's default.
func (s *FilterSettings) UnmarshalJSON(data []byte) error {
	type plain FilterSettings

	settings := plain{AutoOnline: true}
	if err := json.Unmarshal(data, &settings); err != nil {
		return err
	}

	*s = FilterSettings(settings)

	return nil
}

// HasFilters reports whether any filter of any type is known.
func (s *FilterSettings) HasFilters() bool {
	for _, byType := range s.KnownFilters {
		for _, filters := range byType {
			if len(filters) > 0 {
				return true
			}
		}
	}

	return false
}

// HasAnyFilterOnline reports whether at least one known filter is online.
func (s *FilterSettings) HasAnyFilterOnline() bool {
	for _, byType := range s.KnownFilters {
		for _, filters := range byType {
			for _, online := range filters {
				if online {
					return true
				}
			}
		}
	}

	return false
}

// HasFilterOnline reports whether at least one filter of the given type is
// online.
func (s *FilterSettings) HasFilterOnline(filterType string) bool {
	for _, byType := range s.KnownFilters {
		for _, online := range byType[filterType] {
			if online {
				return true
			}
		}
	}

	return false
}

// SetFilterOnline records the online state of a named filter.
func (s *FilterSettings) SetFilterOnline(label, filterType, name string, online bool) {
	if s.KnownFilters == nil {
		s.KnownFilters = make(map[string]map[string]map[string]bool)
	}

	byType, ok := s.KnownFilters[label]
	if !ok {
		byType = make(map[string]map[string]bool)
		s.KnownFilters[label] = byType
	}

	filters, ok := byType[filterType]
	if !ok {
		filters = make(map[string]bool)
		byType[filterType] = filters
	}

	filters[name] = online
}

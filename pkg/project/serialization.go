package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"

	"github.com/weaveflow/weft/pkg/models"
)

// projectSchema is the JSON schema every project document must satisfy before
// it is decoded. Option values and specification definitions are free-form.
const projectSchema = `{
	"type": "object",
	"required": ["version", "name"],
	"properties": {
		"version": {"type": "integer", "minimum": 1},
		"name": {"type": "string", "minLength": 1},
		"description": {"type": "string"},
		"specifications": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["name", "item_type"],
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"item_type": {"type": "string", "minLength": 1},
					"description": {"type": "string"},
					"definition": {"type": "object"}
				}
			}
		},
		"items": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["name", "type"],
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"type": {"type": "string", "minLength": 1},
					"group_id": {"type": "string"},
					"specification": {"type": "string"},
					"config": {"type": "object"}
				}
			}
		},
		"connections": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["from", "to"],
				"properties": {
					"from": {"type": "string", "minLength": 1},
					"to": {"type": "string", "minLength": 1},
					"options": {"type": "object"},
					"filter_settings": {"type": "object"}
				}
			}
		},
		"jumps": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["from", "to"],
				"properties": {
					"from": {"type": "string", "minLength": 1},
					"to": {"type": "string", "minLength": 1},
					"condition": {"type": "object"},
					"cmd_line_args": {"type": "array", "items": {"type": "string"}}
				}
			}
		}
	}
}`

var validate = validator.New(validator.WithRequiredStructEnabled())

type projectDocument struct {
	Version        int                   `json:"version"        validate:"required,min=1"`
	Name           string                `json:"name"           validate:"required"`
	Description    string                `json:"description,omitempty"`
	Specifications []specificationRecord `json:"specifications,omitempty" validate:"dive"`
	Items          []itemRecord          `json:"items,omitempty"          validate:"dive"`
	Connections    []connectionRecord    `json:"connections,omitempty"    validate:"dive"`
	Jumps          []*models.Jump        `json:"jumps,omitempty"`
}

type specificationRecord struct {
	Name        string         `json:"name"      validate:"required"`
	ItemType    string         `json:"item_type" validate:"required"`
	Description string         `json:"description,omitempty"`
	Definition  map[string]any `json:"definition,omitempty"`
}

type itemRecord struct {
	Name          string         `json:"name" validate:"required"`
	Type          string         `json:"type" validate:"required"`
	GroupID       string         `json:"group_id,omitempty"`
	Specification string         `json:"specification,omitempty"`
	Config        map[string]any `json:"config,omitempty"`
}

type connectionRecord struct {
	From    string         `json:"from" validate:"required"`
	To      string         `json:"to"   validate:"required"`
	Options map[string]any `json:"options,omitempty"`

	// A nil FilterSettings means the document omitted it; the connection
	// keeps its auto-online default.
	FilterSettings *models.FilterSettings `json:"filter_settings,omitempty"`
}

// Marshal serializes the project into its versioned JSON document.
func Marshal(p *Project) ([]byte, error) {
	document := projectDocument{
		Version:     LatestProjectVersion,
		Name:        p.name,
		Description: p.description,
	}

	for _, specification := range p.specifications {
		document.Specifications = append(document.Specifications, specificationRecord{
			Name:        specification.Name,
			ItemType:    specification.ItemType,
			Description: specification.Description,
			Definition:  specification.Definition,
		})
	}

	for _, node := range p.Nodes() {
		record := itemRecord{
			Name:   node.Name(),
			Type:   node.Type(),
			Config: node.Config(),
		}
		if node.GroupID() != node.Name() {
			record.GroupID = node.GroupID()
		}
		if node.Specification() != nil {
			record.Specification = node.Specification().Name
		}

		document.Items = append(document.Items, record)
	}

	for _, pair := range p.edgeOrder {
		connection := p.connections[pair]
		settings := connection.FilterSettings
		document.Connections = append(document.Connections, connectionRecord{
			From:           pair.Source,
			To:             pair.Destination,
			Options:        connection.Options,
			FilterSettings: &settings,
		})
	}

	document.Jumps = p.jumps

	return json.MarshalIndent(document, "", "  ")
}

// Unmarshal builds a memory-only project from its JSON document. Documents
// written by a newer version are rejected before anything is decoded in full.
func Unmarshal(data []byte) (*Project, error) {
	var version struct {
		Version int `json:"version"`
	}

	if err := json.Unmarshal(data, &version); err != nil {
		return nil, fmt.Errorf("failed to parse project document: %w", err)
	}

	if version.Version > LatestProjectVersion {
		return nil, fmt.Errorf("project version %d is newer than supported version %d: %w",
			version.Version, LatestProjectVersion, ErrVersionTooHigh)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(projectSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to validate project document: %w", err)
	}

	if !result.Valid() {
		var problems []string
		for _, description := range result.Errors() {
			problems = append(problems, description.String())
		}

		return nil, fmt.Errorf("invalid project document: %s", strings.Join(problems, "; "))
	}

	var document projectDocument
	if err := json.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("failed to parse project document: %w", err)
	}

	if err := validate.Struct(document); err != nil {
		return nil, fmt.Errorf("invalid project document: %w", err)
	}

	return buildProject(document)
}

func buildProject(document projectDocument) (*Project, error) {
	p := New(document.Name, document.Description)

	for _, record := range document.Specifications {
		err := p.AddSpecification(&Specification{
			Name:        record.Name,
			ItemType:    record.ItemType,
			Description: record.Description,
			Definition:  record.Definition,
		})
		if err != nil {
			return nil, err
		}
	}

	for _, record := range document.Items {
		node := NewNode(record.Name, record.Type, record.Config)
		if record.GroupID != "" {
			node.SetGroupID(record.GroupID)
		}

		if record.Specification != "" {
			specification, err := p.Specification(record.Specification)
			if err != nil {
				return nil, fmt.Errorf("item %q: %w", record.Name, err)
			}

			node.SetSpecification(specification)
		}

		if err := p.AddNode(node); err != nil {
			return nil, err
		}
	}

	for _, record := range document.Connections {
		connection := models.NewConnection(record.Options)
		if record.FilterSettings != nil {
			connection.FilterSettings = *record.FilterSettings
		}

		if err := p.AddConnection(record.From, record.To, connection); err != nil {
			return nil, err
		}
	}

	for _, jump := range document.Jumps {
		restored, err := p.MakeJump(jump.Source, jump.Destination)
		if err != nil {
			return nil, err
		}

		restored.Condition = jump.Condition
		restored.CmdLineArgs = jump.CmdLineArgs
	}

	return p, nil
}

// Save writes the project document into the project directory.
func (p *Project) Save() error {
	if p.IsMemoryOnly() {
		return fmt.Errorf("cannot save: %w", ErrMemoryOnlyProject)
	}

	data, err := Marshal(p)
	if err != nil {
		return err
	}

	path := filepath.Join(p.baseDir, internalDirName, ProjectFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write project file: %w", err)
	}

	return nil
}

// Load reads a project document from a project directory and ties the
// resulting project to it.
func Load(projectDir string) (*Project, error) {
	data, err := os.ReadFile(filepath.Join(projectDir, internalDirName, ProjectFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read project file: %w", err)
	}

	p, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}

	if err := p.tieToDir(projectDir); err != nil {
		return nil, err
	}

	return p, nil
}

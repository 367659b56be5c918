package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Characters that may not appear in node names because the name doubles as a
// data directory name. "." is valid in a directory name but is banned to keep
// users from creating directories like /..../.
const invalidNameChars = `<>:"/\|?*.`

// Shorten returns the short, filesystem-friendly form of a name. Two nodes may
// not share a short name even when their display names differ.
func Shorten(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}

func validName(name string) bool {
	return name != "" && !strings.ContainsAny(name, invalidNameChars)
}

// Node is a unit of work in the workflow graph. The graph owns the node; the
// execution engine only ever sees the item wrapper built from it.
type Node struct {
	name    string
	typeTag string
	groupID string
	config  map[string]any

	specification *Specification

	// dataDir is the node's on-disk state, assigned when the node is attached
	// to a physical project.
	dataDir string
}

// NewNode returns a node of the given type. typeTag selects the item factory
// used at execution time; config is handed to that factory verbatim.
func NewNode(name, typeTag string, config map[string]any) *Node {
	return &Node{
		name:    name,
		typeTag: typeTag,
		groupID: name,
		config:  config,
	}
}

// Name returns the node's unique display name.
func (n *Node) Name() string {
	return n.name
}

// ShortName returns the filesystem-friendly form of the node's name.
func (n *Node) ShortName() string {
	return Shorten(n.name)
}

// Type returns the node's item type tag.
func (n *Node) Type() string {
	return n.typeTag
}

// Config returns the node's item configuration.
func (n *Node) Config() map[string]any {
	return n.config
}

// GroupID returns the node's execution group. Nodes sharing a group id may
// share execution context, e.g. a kernel. Defaults to the node's own name.
func (n *Node) GroupID() string {
	return n.groupID
}

// SetGroupID assigns the node to an execution group.
func (n *Node) SetGroupID(groupID string) {
	if groupID == "" {
		groupID = n.name
	}

	n.groupID = groupID
}

// Specification returns the node's specification, or nil.
func (n *Node) Specification() *Specification {
	return n.specification
}

// SetSpecification attaches or detaches (nil) a specification.
func (n *Node) SetSpecification(specification *Specification) {
	n.specification = specification
}

// DataDir returns the node's data directory, or an empty string when the node
// is not attached to a physical project.
func (n *Node) DataDir() string {
	return n.dataDir
}

// attachDataDir creates the node's data directory under the project's items
// directory. Called when the node joins a physical project.
func (n *Node) attachDataDir(itemsDir string) error {
	dir := filepath.Join(itemsDir, n.ShortName())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory for %s: %w", n.name, err)
	}

	n.dataDir = dir

	return nil
}

// renameDataDir moves the node's data directory to match a new name.
func (n *Node) renameDataDir(newName string) error {
	if n.dataDir == "" {
		return nil
	}

	newDir := filepath.Join(filepath.Dir(n.dataDir), Shorten(newName))
	if err := os.Rename(n.dataDir, newDir); err != nil {
		return fmt.Errorf("failed to rename data directory of %s: %w", n.name, err)
	}

	n.dataDir = newDir

	return nil
}

// detachDataDir destroys or preserves the node's data directory depending on
// project policy. Called when the node leaves the project.
func (n *Node) detachDataDir(preserve bool) error {
	if n.dataDir == "" {
		return nil
	}

	dir := n.dataDir
	n.dataDir = ""

	if preserve {
		return nil
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove data directory of %s: %w", n.name, err)
	}

	return nil
}

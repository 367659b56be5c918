package project

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/weaveflow/weft/pkg/models"
)

const (
	// LatestProjectVersion is the version written to saved project files.
	LatestProjectVersion = 1

	// ProjectFileName is the name of the serialized project document.
	ProjectFileName = "project.json"

	internalDirName = ".weft"
	itemsDirName    = "items"
)

// Project owns a workflow graph: the nodes, the connections between them, the
// jumps looping over them and the specifications nodes may reference. All
// mutations validate first and leave the project untouched on rejection.
type Project struct {
	name        string
	description string

	// baseDir is empty for memory-only projects.
	baseDir          string
	preserveDataDirs bool

	nodes     map[string]*Node
	nodeOrder []string

	connections map[models.EdgePair]*models.Connection
	edgeOrder   []models.EdgePair

	jumps []*models.Jump

	specifications []*Specification
}

// New returns an empty, memory-only project.
func New(name, description string) *Project {
	return &Project{
		name:        name,
		description: description,
		nodes:       make(map[string]*Node),
		connections: make(map[models.EdgePair]*models.Connection),
	}
}

// Name returns the project's name.
func (p *Project) Name() string {
	return p.name
}

// Description returns the project's description.
func (p *Project) Description() string {
	return p.description
}

// IsMemoryOnly reports whether the project has no on-disk presence.
func (p *Project) IsMemoryOnly() bool {
	return p.baseDir == ""
}

// SetPreserveDataDirs controls whether removed nodes keep their data
// directories on disk.
func (p *Project) SetPreserveDataDirs(preserve bool) {
	p.preserveDataDirs = preserve
}

// TieToDisk gives a memory-only project a directory under baseDir and creates
// data directories for all existing nodes.
func (p *Project) TieToDisk(baseDir string) error {
	return p.tieToDir(filepath.Join(baseDir, Shorten(p.name)))
}

// tieToDir attaches the project to an existing project directory, whatever
// its on-disk name.
func (p *Project) tieToDir(projectDir string) error {
	itemsDir := filepath.Join(projectDir, internalDirName, itemsDirName)
	if err := os.MkdirAll(itemsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}

	p.baseDir = projectDir

	for _, name := range p.nodeOrder {
		if err := p.nodes[name].attachDataDir(itemsDir); err != nil {
			return err
		}
	}

	return nil
}

// Dir returns the project directory, or an empty string for memory-only
// projects.
func (p *Project) Dir() string {
	return p.baseDir
}

func (p *Project) itemsDir() string {
	return filepath.Join(p.baseDir, internalDirName, itemsDirName)
}

// AddNode adds a node to the project. The name must be unique both exactly
// and in its shortened form.
func (p *Project) AddNode(node *Node) error {
	if err := p.validateNodeName(node.Name()); err != nil {
		return err
	}

	p.nodes[node.Name()] = node
	p.nodeOrder = append(p.nodeOrder, node.Name())

	if !p.IsMemoryOnly() {
		if err := node.attachDataDir(p.itemsDir()); err != nil {
			delete(p.nodes, node.Name())
			p.nodeOrder = p.nodeOrder[:len(p.nodeOrder)-1]

			return err
		}
	}

	return nil
}

// Node returns the named node.
func (p *Project) Node(name string) (*Node, error) {
	node, ok := p.nodes[name]
	if !ok {
		return nil, fmt.Errorf("node %q: %w", name, ErrComponentNotFound)
	}

	return node, nil
}

// Nodes returns all nodes in insertion order.
func (p *Project) Nodes() []*Node {
	nodes := make([]*Node, 0, len(p.nodeOrder))
	for _, name := range p.nodeOrder {
		nodes = append(nodes, p.nodes[name])
	}

	return nodes
}

// RenameNode gives a node a new name, migrating every connection and jump that
// touches it. The connection and jump objects keep their identity; only the
// name fields change. The node's data directory is renamed on disk.
func (p *Project) RenameNode(name, newName string) error {
	node, ok := p.nodes[name]
	if !ok {
		return fmt.Errorf("node %q: %w", name, ErrComponentNotFound)
	}

	if newName == name {
		return nil
	}

	if !validName(newName) {
		return fmt.Errorf("name %q: %w", newName, ErrInvalidName)
	}

	if _, exists := p.nodes[newName]; exists {
		return fmt.Errorf("name %q: %w", newName, ErrDuplicateName)
	}

	for existing := range p.nodes {
		if existing != name && Shorten(existing) == Shorten(newName) {
			return fmt.Errorf("name %q: %w", newName, ErrDuplicateShortName)
		}
	}

	if err := node.renameDataDir(newName); err != nil {
		return err
	}

	delete(p.nodes, name)
	node.name = newName
	if node.groupID == name {
		node.groupID = newName
	}
	p.nodes[newName] = node

	for i, ordered := range p.nodeOrder {
		if ordered == name {
			p.nodeOrder[i] = newName
		}
	}

	rewired := make(map[models.EdgePair]*models.Connection, len(p.connections))
	for pair, connection := range p.connections {
		if pair.Source == name {
			pair.Source = newName
		}
		if pair.Destination == name {
			pair.Destination = newName
		}
		rewired[pair] = connection
	}
	p.connections = rewired

	for i := range p.edgeOrder {
		if p.edgeOrder[i].Source == name {
			p.edgeOrder[i].Source = newName
		}
		if p.edgeOrder[i].Destination == name {
			p.edgeOrder[i].Destination = newName
		}
	}

	for _, jump := range p.jumps {
		if jump.Source == name {
			jump.Source = newName
		}
		if jump.Destination == name {
			jump.Destination = newName
		}
	}

	return nil
}

// RemoveNode removes a node, its connections, every jump touching it and,
// cascading, every other jump whose loop body is no longer valid. The node's
// data directory is destroyed unless the project preserves them.
func (p *Project) RemoveNode(name string) error {
	node, ok := p.nodes[name]
	if !ok {
		return fmt.Errorf("node %q: %w", name, ErrComponentNotFound)
	}

	delete(p.nodes, name)
	for i, ordered := range p.nodeOrder {
		if ordered == name {
			p.nodeOrder = append(p.nodeOrder[:i], p.nodeOrder[i+1:]...)

			break
		}
	}

	for pair := range p.connections {
		if pair.Source == name || pair.Destination == name {
			delete(p.connections, pair)
		}
	}
	kept := p.edgeOrder[:0]
	for _, pair := range p.edgeOrder {
		if pair.Source != name && pair.Destination != name {
			kept = append(kept, pair)
		}
	}
	p.edgeOrder = kept

	if len(p.jumps) > 0 {
		survivors := make([]*models.Jump, 0, len(p.jumps))
		for _, jump := range p.jumps {
			if !jump.Touches(name) {
				survivors = append(survivors, jump)
			}
		}

		p.jumps = survivors
		// Removing the node may have changed the loop bodies of remaining
		// jumps; drop any that no longer validate.
		valid := make([]*models.Jump, 0, len(p.jumps))
		for _, jump := range p.jumps {
			if p.validateJump(jump) == nil {
				valid = append(valid, jump)
			}
		}
		p.jumps = valid
	}

	return node.detachDataDir(p.preserveDataDirs)
}

// AddConnection connects two nodes. Only one connection may exist per
// (source, destination) pair, self-connections are rejected, and the edge may
// not make the graph cyclic. A rejected edge leaves the graph untouched.
func (p *Project) AddConnection(source, destination string, connection *models.Connection) error {
	if _, ok := p.nodes[source]; !ok {
		return fmt.Errorf("node %q: %w", source, ErrComponentNotFound)
	}

	if _, ok := p.nodes[destination]; !ok {
		return fmt.Errorf("node %q: %w", destination, ErrComponentNotFound)
	}

	if source == destination {
		return fmt.Errorf("cannot connect node back to itself: %w", ErrInvalidConnection)
	}

	pair := models.EdgePair{Source: source, Destination: destination}
	if _, exists := p.connections[pair]; exists {
		return fmt.Errorf("%s -> %s already connected: %w", source, destination, ErrInvalidConnection)
	}

	if connection == nil {
		connection = models.NewConnection(nil)
	}

	p.connections[pair] = connection
	p.edgeOrder = append(p.edgeOrder, pair)

	if p.hasPath(destination, source) {
		delete(p.connections, pair)
		p.edgeOrder = p.edgeOrder[:len(p.edgeOrder)-1]

		return fmt.Errorf("cannot create loops: %w", ErrInvalidConnection)
	}

	return nil
}

// Connection returns the connection between two nodes.
func (p *Project) Connection(source, destination string) (*models.Connection, error) {
	connection, ok := p.connections[models.EdgePair{Source: source, Destination: destination}]
	if !ok {
		return nil, fmt.Errorf("connection %s -> %s: %w", source, destination, ErrComponentNotFound)
	}

	return connection, nil
}

// Connections returns all connections keyed by edge.
func (p *Project) Connections() map[models.EdgePair]*models.Connection {
	connections := make(map[models.EdgePair]*models.Connection, len(p.connections))
	for pair, connection := range p.connections {
		connections[pair] = connection
	}

	return connections
}

// SiblingConnections returns every connection whose destination is the given
// node, keyed by edge. These are the writers that must coordinate their
// write order.
func (p *Project) SiblingConnections(destination string) map[models.EdgePair]*models.Connection {
	siblings := make(map[models.EdgePair]*models.Connection)
	for pair, connection := range p.connections {
		if pair.Destination == destination {
			siblings[pair] = connection
		}
	}

	return siblings
}

// RemoveConnection removes an edge. The removal is rejected, with the edge
// restored, when it would invalidate an existing jump.
func (p *Project) RemoveConnection(source, destination string) error {
	pair := models.EdgePair{Source: source, Destination: destination}

	connection, ok := p.connections[pair]
	if !ok {
		return fmt.Errorf("connection %s -> %s: %w", source, destination, ErrComponentNotFound)
	}

	delete(p.connections, pair)

	for _, jump := range p.jumps {
		if err := p.validateJump(jump); err != nil {
			p.connections[pair] = connection

			return fmt.Errorf("removing %s -> %s would break a loop: %w", source, destination, err)
		}
	}

	for i, ordered := range p.edgeOrder {
		if ordered == pair {
			p.edgeOrder = append(p.edgeOrder[:i], p.edgeOrder[i+1:]...)

			break
		}
	}

	return nil
}

// MakeJump creates a jump between two nodes, or returns the existing one.
func (p *Project) MakeJump(source, destination string) (*models.Jump, error) {
	if _, ok := p.nodes[source]; !ok {
		return nil, fmt.Errorf("node %q: %w", source, ErrComponentNotFound)
	}

	if _, ok := p.nodes[destination]; !ok {
		return nil, fmt.Errorf("node %q: %w", destination, ErrComponentNotFound)
	}

	if jump, err := p.Jump(source, destination); err == nil {
		return jump, nil
	}

	jump := models.NewJump(source, destination)
	p.jumps = append(p.jumps, jump)

	if err := p.validateJump(jump); err != nil {
		p.jumps = p.jumps[:len(p.jumps)-1]

		return nil, err
	}

	return jump, nil
}

// Jump returns the jump between two nodes.
func (p *Project) Jump(source, destination string) (*models.Jump, error) {
	for _, jump := range p.jumps {
		if jump.Source == source && jump.Destination == destination {
			return jump, nil
		}
	}

	return nil, fmt.Errorf("jump %s -> %s: %w", source, destination, ErrComponentNotFound)
}

// Jumps returns all jumps.
func (p *Project) Jumps() []*models.Jump {
	return append([]*models.Jump(nil), p.jumps...)
}

// AddSpecification adds a specification to the project.
func (p *Project) AddSpecification(specification *Specification) error {
	for _, other := range p.specifications {
		if other.Name == specification.Name {
			return fmt.Errorf("specification %q: %w", specification.Name, ErrDuplicateName)
		}
	}

	p.specifications = append(p.specifications, specification)

	return nil
}

// Specification returns the named specification.
func (p *Project) Specification(name string) (*Specification, error) {
	for _, specification := range p.specifications {
		if specification.Name == name {
			return specification, nil
		}
	}

	return nil, fmt.Errorf("specification %q: %w", name, ErrComponentNotFound)
}

// Specifications returns all specifications.
func (p *Project) Specifications() []*Specification {
	return append([]*Specification(nil), p.specifications...)
}

// RemoveSpecification removes a specification and detaches it from every node
// that references it.
func (p *Project) RemoveSpecification(name string) error {
	for i, specification := range p.specifications {
		if specification.Name != name {
			continue
		}

		p.specifications = append(p.specifications[:i], p.specifications[i+1:]...)

		for _, node := range p.nodes {
			if node.specification != nil && node.specification.Name == name {
				node.specification = nil
			}
		}

		return nil
	}

	return fmt.Errorf("specification %q: %w", name, ErrComponentNotFound)
}

// Successors returns, for every node, the names of its direct downstream
// dependents. This is the engine's construction input.
func (p *Project) Successors() map[string][]string {
	successors := make(map[string][]string, len(p.nodes))
	for _, name := range p.nodeOrder {
		successors[name] = nil
	}

	for _, pair := range p.edgeOrder {
		successors[pair.Source] = append(successors[pair.Source], pair.Destination)
	}

	return successors
}

// JumpNodes returns the jump's loop body: every node lying on some path from
// the jump's destination down to its source. In a DAG that is exactly the
// set of nodes reachable from the destination from which the source is still
// reachable. A self-jump's body is the node itself.
func (p *Project) JumpNodes(jump *models.Jump) map[string]struct{} {
	body := make(map[string]struct{})

	if _, ok := p.nodes[jump.Source]; !ok {
		return body
	}

	if _, ok := p.nodes[jump.Destination]; !ok {
		return body
	}

	if jump.IsSelfJump() {
		body[jump.Source] = struct{}{}

		return body
	}

	downstream := p.reachableFrom(jump.Destination)
	upstream := p.reachableInto(jump.Source)

	for name := range downstream {
		if _, ok := upstream[name]; ok {
			body[name] = struct{}{}
		}
	}

	return body
}

// validateJump checks a jump against the loop topology rules:
//   - only one jump may originate from any node;
//   - two loop bodies must be disjoint or nested, never partially overlapping;
//   - both endpoints must exist;
//   - a self-jump is always valid;
//   - otherwise there must be no forward path source -> destination, and the
//     destination must be upstream of the source (the jump closes a loop over
//     an existing branch rather than inventing one).
func (p *Project) validateJump(jump *models.Jump) error {
	body := p.JumpNodes(jump)

	for _, other := range p.jumps {
		if other == jump {
			continue
		}

		if other.Source == jump.Source {
			return fmt.Errorf("two jumps cannot start from the same node: %w", ErrInvalidJump)
		}

		otherBody := p.JumpNodes(other)
		if partiallyOverlapping(body, otherBody) {
			return fmt.Errorf("loop cannot partially overlap another: %w", ErrInvalidJump)
		}
	}

	if _, ok := p.nodes[jump.Destination]; !ok {
		return fmt.Errorf("loop destination %q not in graph: %w", jump.Destination, ErrInvalidJump)
	}

	if _, ok := p.nodes[jump.Source]; !ok {
		return fmt.Errorf("loop source %q not in graph: %w", jump.Source, ErrInvalidJump)
	}

	if jump.IsSelfJump() {
		return nil
	}

	if p.hasPath(jump.Source, jump.Destination) {
		return fmt.Errorf("cannot loop in forward direction: %w", ErrInvalidJump)
	}

	if !p.hasPath(jump.Destination, jump.Source) {
		return fmt.Errorf("cannot loop between branches: %w", ErrInvalidJump)
	}

	return nil
}

func partiallyOverlapping(a, b map[string]struct{}) bool {
	common := 0
	for name := range a {
		if _, ok := b[name]; ok {
			common++
		}
	}

	return common != 0 && common != len(a) && common != len(b)
}

func (p *Project) validateNodeName(name string) error {
	if !validName(name) {
		return fmt.Errorf("name %q: %w", name, ErrInvalidName)
	}

	for existing := range p.nodes {
		if name == existing {
			return fmt.Errorf("name %q: %w", name, ErrDuplicateName)
		}

		if Shorten(name) == Shorten(existing) {
			return fmt.Errorf("name %q: %w", name, ErrDuplicateShortName)
		}
	}

	return nil
}

// hasPath reports whether destination is reachable from source along forward
// edges. A node is always reachable from itself.
func (p *Project) hasPath(source, destination string) bool {
	_, ok := p.reachableFrom(source)[destination]

	return ok
}

// reachableFrom returns every node reachable from start, including start.
func (p *Project) reachableFrom(start string) map[string]struct{} {
	reachable := map[string]struct{}{start: {}}
	frontier := []string{start}

	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]

		for pair := range p.connections {
			if pair.Source != current {
				continue
			}

			if _, seen := reachable[pair.Destination]; !seen {
				reachable[pair.Destination] = struct{}{}
				frontier = append(frontier, pair.Destination)
			}
		}
	}

	return reachable
}

// reachableInto returns every node from which end is reachable, including end.
func (p *Project) reachableInto(end string) map[string]struct{} {
	reachable := map[string]struct{}{end: {}}
	frontier := []string{end}

	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]

		for pair := range p.connections {
			if pair.Destination != current {
				continue
			}

			if _, seen := reachable[pair.Source]; !seen {
				reachable[pair.Source] = struct{}{}
				frontier = append(frontier, pair.Source)
			}
		}
	}

	return reachable
}

// Package models defines the core domain models for DAG workflow execution.
package models

import (
	"net/url"
	"path/filepath"
	"sync/atomic"
)

// ResourceType discriminates the payload kind a resource points to.
type ResourceType string

const (
	// ResourceTypeFile points to a file on disk; URL holds the file path.
	ResourceTypeFile ResourceType = "file"
	// ResourceTypeDatabase points to a database; URL holds the database URL.
	ResourceTypeDatabase ResourceType = "database"
	// ResourceTypeTransientFile is a file that may not exist yet or may move;
	// URL holds the latest known location or is empty.
	ResourceTypeTransientFile ResourceType = "transient_file"
	// ResourceTypeFilePattern is a wildcard placeholder; URL is empty.
	ResourceTypeFilePattern ResourceType = "file_pattern"
)

// Metadata keys accumulated on resources as they travel along edges.
const (
	MetadataLabel      = "label"
	MetadataPattern    = "pattern"
	MetadataMemory     = "memory"
	MetadataCurrent    = "current"
	MetadataPrecursors = "precursors"
	MetadataPartCount  = "part_count"
)

// Resource is an immutable data handle passed between workflow items.
// Instances must never be mutated after they are handed to a connection;
// Clone produces an updated copy instead.
type Resource struct {
	Provider string         `json:"provider"`
	Type     ResourceType   `json:"type"`
	URL      string         `json:"url,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewFileResource returns a file resource provided by the named item.
func NewFileResource(provider, path string) *Resource {
	return &Resource{
		Provider: provider,
		Type:     ResourceTypeFile,
		URL:      "file://" + filepath.ToSlash(path),
	}
}

// NewDatabaseResource returns a database resource provided by the named item.
func NewDatabaseResource(provider, databaseURL string) *Resource {
	return &Resource{
		Provider: provider,
		Type:     ResourceTypeDatabase,
		URL:      databaseURL,
	}
}

// NewTransientFileResource returns a labeled resource for a file that may not
// be available yet. path may be empty.
func NewTransientFileResource(provider, label, path string) *Resource {
	resource := &Resource{
		Provider: provider,
		Type:     ResourceTypeTransientFile,
		Metadata: map[string]any{MetadataLabel: label},
	}
	if path != "" {
		resource.URL = "file://" + filepath.ToSlash(path)
	}

	return resource
}

// Clone returns a copy of the resource with additional metadata merged in.
// The receiver is never modified; the same resource instance may be forwarded
// to multiple consuming edges concurrently.
func (r *Resource) Clone(additional map[string]any) *Resource {
	metadata := make(map[string]any, len(r.Metadata)+len(additional))
	for key, value := range r.Metadata {
		metadata[key] = value
	}

	for key, value := range additional {
		metadata[key] = value
	}

	return &Resource{
		Provider: r.Provider,
		Type:     r.Type,
		URL:      r.URL,
		Metadata: metadata,
	}
}

// Label returns the textual identity of the resource: the metadata label when
// present, the file path for file resources, the URL otherwise.
func (r *Resource) Label() string {
	if label, ok := r.Metadata[MetadataLabel].(string); ok && label != "" {
		return label
	}

	if r.Type == ResourceTypeFile {
		return r.Path()
	}

	return r.URL
}

// Scheme returns the URL scheme, or an empty string for unparseable URLs.
func (r *Resource) Scheme() string {
	parsed, err := url.Parse(r.URL)
	if err != nil {
		return ""
	}

	return parsed.Scheme
}

// Path returns the resource path in local filesystem syntax.
func (r *Resource) Path() string {
	parsed, err := url.Parse(r.URL)
	if err != nil {
		return ""
	}

	return filepath.FromSlash(parsed.Path)
}

// HasFilePath reports whether the resource currently points to a file on disk.
func (r *Resource) HasFilePath() bool {
	switch r.Type {
	case ResourceTypeFile:
		return true
	case ResourceTypeDatabase:
		return r.Scheme() == "sqlite"
	case ResourceTypeTransientFile:
		return r.URL != ""
	default:
		return false
	}
}

// Arg returns the resource in the form it should be passed on a command line.
func (r *Resource) Arg() string {
	if r.Type == ResourceTypeDatabase {
		return r.URL
	}

	return r.Path()
}

// PartCount is a shared counter agreed on by all connections into one
// destination so that concurrent database writers can serialize their parts
// deterministically. A single instance is shared by reference through
// resource metadata.
type PartCount struct {
	count atomic.Int64
}

// Next reserves and returns the next part number, starting from 1.
func (c *PartCount) Next() int64 {
	return c.count.Add(1)
}

// Current returns the number of parts reserved so far.
func (c *PartCount) Current() int64 {
	return c.count.Load()
}

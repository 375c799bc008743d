package providers

import (
	"errors"
	"sort"
	"sync"
)

// CWEEntry holds details about a specific CWE.
type CWEEntry struct {
	ID          string
	Name        string
	Description string
	Remediation string
	// Add more fields as needed (e.g., LikelihoodOfExploit, RelatedAttackPatterns)
}

// Define sentinel errors for better error handling by the caller.
var (
	ErrNotFound      = errors.New("cwe entry not found")
	ErrAlreadyExists = errors.New("cwe entry already exists")
	ErrInvalidInput  = errors.New("cwe entry ID and Name cannot be empty")
)

// Catalog manages a collection of CWE entries in memory.
type Catalog struct {
	// RWMutex allows multiple concurrent readers or a single exclusive writer.
	mu      sync.RWMutex
	entries map[string]CWEEntry
}

// NewCatalog creates a new, initialized CWE catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		entries: make(map[string]CWEEntry),
	}
}

// validateEntry checks if the entry has all required fields.
func validateEntry(e CWEEntry) error {
	if e.ID == "" || e.Name == "" {
		return ErrInvalidInput
	}
	return nil
}

// Add adds a new entry to the catalog.
func (c *Catalog) Add(e CWEEntry) error {
	if err := validateEntry(e); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[e.ID]; exists {
		return ErrAlreadyExists
	}

	c.entries[e.ID] = e
	return nil
}

// Get retrieves an entry by its CWE ID.
func (c *Catalog) Get(id string) (CWEEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[id]
	if !exists {
		return CWEEntry{}, ErrNotFound
	}

	return entry, nil
}

// List returns all entries, sorted by ID for deterministic output.
func (c *Catalog) List() []CWEEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	list := make([]CWEEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		list = append(list, entry)
	}

	// Sort by ID
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})

	return list
}

// Update modifies an existing entry.
func (c *Catalog) Update(e CWEEntry) error {
	if err := validateEntry(e); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[e.ID]; !exists {
		return ErrNotFound
	}

	// Replace the existing entry with the new data
	c.entries[e.ID] = e
	return nil
}

// Delete removes an entry by its CWE ID.
func (c *Catalog) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[id]; !exists {
		return ErrNotFound
	}

	delete(c.entries, id)
	return nil
}

// ABOUTME: Charm KV client wrapper for cloud-synced index storage
// ABOUTME: Authenticates with the local SSH key and syncs after writes when enabled
package charmkv

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/charm/client"
	"github.com/charmbracelet/charm/kv"
)

// Config holds charm client configuration
type Config struct {
	Host     string
	DBName   string
	AutoSync bool
}

// DefaultConfig returns default configuration for charm client
func DefaultConfig() *Config {
	host := os.Getenv("CHARM_HOST")
	if host == "" {
		host = "cloud.charm.sh"
	}
	return &Config{
		Host:     host,
		DBName:   "pdfrag",
		AutoSync: true,
	}
}

// backend is the subset of charm kv the client relies on
type backend interface {
	Set(key, value []byte) error
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	Keys() ([][]byte, error)
	Sync() error
	Reset() error
	Close() error
}

// Client wraps charm KV for storage operations
type Client struct {
	kv     backend
	config *Config
	mu     sync.Mutex
}

// NewClient opens the charm KV database named in cfg
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	// kv reads the host from the environment
	if err := os.Setenv("CHARM_HOST", cfg.Host); err != nil {
		return nil, fmt.Errorf("failed to set charm host: %w", err)
	}

	db, err := kv.OpenWithDefaults(cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to open charm kv: %w", err)
	}

	c := newClient(db, cfg)

	// Pull remote data on startup
	if cfg.AutoSync {
		_ = db.Sync()
	}

	return c, nil
}

func newClient(b backend, cfg *Config) *Client {
	return &Client{kv: b, config: cfg}
}

// Close closes the KV database
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kv != nil {
		err := c.kv.Close()
		c.kv = nil
		return err
	}
	return nil
}

func (c *Client) syncIfEnabled() {
	if c.config.AutoSync {
		_ = c.kv.Sync()
	}
}

// Name is the charm database name
func (c *Client) Name() string {
	return c.config.DBName
}

// ID returns the charm user ID
func (c *Client) ID() (string, error) {
	cc, err := client.NewClientWithDefaults()
	if err != nil {
		return "", fmt.Errorf("failed to create charm client: %w", err)
	}
	return cc.ID()
}

// GetAuthorizedKeys returns the list of linked devices/keys
func (c *Client) GetAuthorizedKeys() (string, error) {
	cc, err := client.NewClientWithDefaults()
	if err != nil {
		return "", fmt.Errorf("failed to create charm client: %w", err)
	}
	return cc.AuthorizedKeys()
}

// setMany writes all pairs and syncs once
func (c *Client) setMany(pairs map[string][]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kv == nil {
		return errClosed
	}

	for k, v := range pairs {
		if err := c.kv.Set([]byte(k), v); err != nil {
			return fmt.Errorf("failed to set key %s: %w", k, err)
		}
	}
	c.syncIfEnabled()
	return nil
}

// get retrieves a value by key, returning nil when absent
func (c *Client) get(key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kv == nil {
		return nil, errClosed
	}
	return c.kv.Get([]byte(key))
}

// deleteMany removes keys and syncs once
func (c *Client) deleteMany(keys []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kv == nil {
		return errClosed
	}

	for _, k := range keys {
		if err := c.kv.Delete([]byte(k)); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", k, err)
		}
	}
	if len(keys) > 0 {
		c.syncIfEnabled()
	}
	return nil
}

// listKeys returns all keys with the given prefix
func (c *Client) listKeys(prefix string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kv == nil {
		return nil, errClosed
	}

	keys, err := c.kv.Keys()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	var result []string
	for _, key := range keys {
		keyStr := string(key)
		if strings.HasPrefix(keyStr, prefix) {
			result = append(result, keyStr)
		}
	}
	return result, nil
}

// Sync manually triggers a sync with the cloud
func (c *Client) Sync() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kv == nil {
		return errClosed
	}
	return c.kv.Sync()
}

// Reset wipes all local data
func (c *Client) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kv == nil {
		return errClosed
	}
	return c.kv.Reset()
}

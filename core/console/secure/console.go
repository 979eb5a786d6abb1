// Package secure implements a console over the encrypted container of the
// secure storage. Callers see the container tree under a virtual mount
// point; operations run as direct file API calls on the unlocked tree.
package secure

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/0xef53/phoenix-fm/core"
	"github.com/0xef53/phoenix-fm/core/console"
	"github.com/0xef53/phoenix-fm/core/executable"
	"github.com/0xef53/phoenix-fm/internal/container"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	Kind = "secure"

	DefaultMountPoint = "/secure"

	// FilesystemType is reported for the virtual mount point.
	FilesystemType = "securestorage"
)

var (
	_ console.Console = new(Console)
	_ console.Opener  = new(Console)
)

// PasswordFunc is asked for the container password when an operation
// needs the container unlocked.
type PasswordFunc func(ctx context.Context) (string, error)

type Config struct {
	// Container is the path of the container file.
	Container string

	// MountPoint is the virtual path the container tree appears under.
	MountPoint string

	Password PasswordFunc
	Options  *container.Options

	PasswdFile string
	GroupFile  string

	BufferSize    int
	CancelTimeout time.Duration

	Trace bool
}

func (c Config) options() executable.Options {
	return executable.Options{
		Trace:         c.Trace,
		BufferSize:    c.BufferSize,
		CancelTimeout: c.CancelTimeout,
	}.WithDefaults()
}

type Console struct {
	id     string
	config Config

	// openMu serializes password prompts.
	openMu sync.Mutex

	mu       sync.Mutex
	store    *container.Container
	accounts *core.Accounts
	wd       string

	factory *Factory
}

func NewConsole(c *Config) *Console {
	cfg := Config{}
	if c != nil {
		cfg = *c
	}

	if len(cfg.MountPoint) == 0 {
		cfg.MountPoint = DefaultMountPoint
	}
	if len(cfg.PasswdFile) == 0 {
		cfg.PasswdFile = core.DefaultPasswdFile
	}
	if len(cfg.GroupFile) == 0 {
		cfg.GroupFile = core.DefaultGroupFile
	}

	cfg.MountPoint = path.Clean("/" + cfg.MountPoint)

	con := Console{
		id:       uuid.New().String(),
		config:   cfg,
		accounts: new(core.Accounts),
		wd:       cfg.MountPoint,
	}

	con.factory = &Factory{c: &con}

	return &con
}

func (c *Console) ID() string {
	return c.id
}

func (c *Console) Kind() string {
	return Kind
}

func (c *Console) Factory() console.Factory {
	return c.factory
}

func (c *Console) MountPoint() string {
	return c.config.MountPoint
}

// Alloc binds the console to its container file. The container stays
// locked until an operation needs it.
func (c *Console) Alloc(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store != nil {
		return nil
	}

	store, err := container.Open(c.config.Container, c.config.Options)
	if err != nil {
		return err
	}

	accounts, err := core.LoadAccounts(c.config.PasswdFile, c.config.GroupFile)
	if err != nil {
		log.WithField("console", c.id).Warnf("Failed to load accounts: %s", err)
		accounts = new(core.Accounts)
	}

	c.store, c.accounts = store, accounts

	return nil
}

// AllocContainer binds the console to an already opened container.
func (c *Console) AllocContainer(store *container.Container) {
	c.mu.Lock()
	defer c.mu.Unlock()

	accounts, err := core.LoadAccounts(c.config.PasswdFile, c.config.GroupFile)
	if err != nil {
		accounts = new(core.Accounts)
	}

	c.store, c.accounts = store, accounts
}

// Dealloc writes the tree back and locks the container.
func (c *Console) Dealloc() error {
	c.mu.Lock()
	store := c.store
	c.store = nil
	c.mu.Unlock()

	if store == nil {
		return nil
	}

	return store.Lock()
}

func (c *Console) Realloc(ctx context.Context) error {
	if err := c.Dealloc(); err != nil {
		log.WithField("console", c.id).Warnf("Failed to release the container: %s", err)
	}

	return c.Alloc(ctx)
}

func (c *Console) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.store != nil
}

func (c *Console) IsPrivileged() bool {
	return false
}

func (c *Console) WorkingDirectory() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.wd
}

func (c *Console) setWorkingDirectory(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.wd = dir
}

func (c *Console) owners() *core.Accounts {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.accounts
}

func (c *Console) container() (*container.Container, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store == nil {
		return nil, &core.RelaunchableError{Err: core.ErrConsoleNotAllocated}
	}

	return c.store, nil
}

// Open unlocks the container, asking for the password if necessary.
func (c *Console) Open(ctx context.Context) error {
	c.openMu.Lock()
	defer c.openMu.Unlock()

	store, err := c.container()
	if err != nil {
		return err
	}

	if store.IsUnlocked() {
		return nil
	}

	if c.config.Password == nil {
		return &core.InsufficientPermissionsError{Op: "open", Path: c.config.MountPoint, Err: core.ErrStorageLocked}
	}

	password, err := c.config.Password(ctx)
	if err != nil {
		return &core.InsufficientPermissionsError{Op: "open", Path: c.config.MountPoint, Err: fmt.Errorf("%w: %w", core.ErrStorageLocked, err)}
	}

	if err := store.Unlock(password); err != nil {
		if errors.Is(err, container.ErrInvalidPassword) {
			return &core.InsufficientPermissionsError{Op: "open", Path: c.config.MountPoint, Err: err}
		}
		return err
	}

	return nil
}

func (c *Console) sync() error {
	store, err := c.container()
	if err != nil {
		return err
	}

	return store.Sync()
}

func (c *Console) isMountPoint(virtual string) bool {
	return path.Clean(virtual) == c.config.MountPoint
}

func (c *Console) root() (string, error) {
	store, err := c.container()
	if err != nil {
		return "", err
	}

	root, err := store.Root()
	if err != nil {
		return "", &core.InsufficientPermissionsError{Op: "open", Path: c.config.MountPoint, Err: core.ErrStorageLocked}
	}

	return root, nil
}

// abs resolves a virtual path against the working directory.
func (c *Console) abs(p string) string {
	if path.IsAbs(p) {
		return path.Clean(p)
	}

	return path.Join(c.WorkingDirectory(), p)
}

// RealPath maps a virtual path under the mount point to the real path
// inside the unlocked container.
func (c *Console) RealPath(virtual string) (string, error) {
	root, err := c.root()
	if err != nil {
		return "", err
	}

	return realPath(root, c.config.MountPoint, c.abs(virtual))
}

// VirtualPath maps a real path inside the unlocked container
// to its virtual path.
func (c *Console) VirtualPath(real string) (string, error) {
	root, err := c.root()
	if err != nil {
		return "", err
	}

	return virtualPath(root, c.config.MountPoint, real)
}

func realPath(root, mp, virtual string) (string, error) {
	virtual = path.Clean(virtual)

	if virtual == mp {
		return root, nil
	}

	rest, ok := strings.CutPrefix(virtual, strings.TrimSuffix(mp, "/")+"/")
	if !ok {
		return "", &core.ExecutionError{Op: "resolve", Path: virtual, Err: container.ErrOutsideRoot}
	}

	return filepath.Join(root, filepath.FromSlash(rest)), nil
}

func virtualPath(root, mp, real string) (string, error) {
	rel, err := filepath.Rel(root, filepath.Clean(real))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &core.ExecutionError{Op: "resolve", Path: real, Err: container.ErrOutsideRoot}
	}

	if rel == "." {
		return mp, nil
	}

	return path.Join(mp, filepath.ToSlash(rel)), nil
}

// mapError converts file API errors to the console error taxonomy.
func mapError(op, virtual string, err error) error {
	if err == nil {
		return nil
	}

	var (
		noent *core.NoSuchFileOrDirectoryError
		exec  *core.ExecutionError
		perm  *core.InsufficientPermissionsError
		rel   *core.RelaunchableError
	)

	switch {
	case errors.As(err, &noent), errors.As(err, &exec), errors.As(err, &perm), errors.As(err, &rel):
		return err
	case errors.Is(err, fs.ErrNotExist):
		return &core.NoSuchFileOrDirectoryError{Path: virtual}
	case errors.Is(err, fs.ErrPermission):
		return &core.InsufficientPermissionsError{Op: op, Path: virtual, Err: err}
	case errors.Is(err, container.ErrLocked):
		return &core.InsufficientPermissionsError{Op: op, Path: virtual, Err: core.ErrStorageLocked}
	}

	return &core.ExecutionError{Op: op, Path: virtual, Err: err}
}

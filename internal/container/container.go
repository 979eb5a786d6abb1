// Package container implements the encrypted file that backs the secure
// storage. The file holds a gzip'd tar of a directory tree encrypted with
// AES-256-GCM under a key derived from a password with scrypt. An unlocked
// container is extracted to a private staging directory and written back
// atomically on Sync.
package container

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/scrypt"
)

const (
	magic   = "PFMC"
	version = 1

	saltSize  = 16
	nonceSize = 12
	keySize   = 32

	headerSize = len(magic) + 4 + saltSize
)

var (
	ErrLocked          = errors.New("container is locked")
	ErrInvalidPassword = errors.New("invalid password or corrupted container")
	ErrNotContainer    = errors.New("not a container file")
	ErrOutsideRoot     = errors.New("path is outside of the container")
)

type Options struct {
	// Scrypt cost parameters. LogN is the binary logarithm of N.
	LogN uint8
	R    uint8
	P    uint8

	// StagingDir is the parent directory of unlocked trees.
	StagingDir string
}

func (o *Options) withDefaults() Options {
	var opts Options

	if o != nil {
		opts = *o
	}

	if opts.LogN == 0 {
		opts.LogN = 15
	}
	if opts.R == 0 {
		opts.R = 8
	}
	if opts.P == 0 {
		opts.P = 1
	}
	if len(opts.StagingDir) == 0 {
		opts.StagingDir = os.TempDir()
	}

	return opts
}

type header struct {
	logN uint8
	r    uint8
	p    uint8
	salt []byte
}

func (h *header) bytes() []byte {
	b := make([]byte, 0, headerSize)

	b = append(b, magic...)
	b = append(b, version, h.logN, h.r, h.p)
	b = append(b, h.salt...)

	return b
}

func parseHeader(b []byte) (*header, error) {
	if len(b) < headerSize || string(b[:len(magic)]) != magic {
		return nil, ErrNotContainer
	}

	b = b[len(magic):]

	if b[0] != version {
		return nil, fmt.Errorf("unsupported container version %d", b[0])
	}

	return &header{
		logN: b[1],
		r:    b[2],
		p:    b[3],
		salt: bytes.Clone(b[4 : 4+saltSize]),
	}, nil
}

func (h *header) deriveKey(password string) ([]byte, error) {
	return scrypt.Key([]byte(password), h.salt, 1<<h.logN, int(h.r), int(h.p), keySize)
}

// Container is an encrypted directory tree stored in a single file.
type Container struct {
	path string
	opts Options

	// treeMu serializes structural mutations of the unlocked tree
	// and allows concurrent reads.
	treeMu sync.RWMutex

	mu   sync.Mutex
	hdr  *header
	key  []byte
	root string
}

// IsContainer reports whether the file starts with the container signature.
func IsContainer(path string) bool {
	fd, err := os.Open(path)
	if err != nil {
		return false
	}
	defer fd.Close()

	b := make([]byte, headerSize)

	if _, err := io.ReadFull(fd, b); err != nil {
		return false
	}

	_, err = parseHeader(b)

	return err == nil
}

// Create writes a new empty container and returns it unlocked.
func Create(path, password string, o *Options) (*Container, error) {
	opts := o.withDefaults()

	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("create %s: %w", path, os.ErrExist)
	}

	hdr := header{
		logN: opts.LogN,
		r:    opts.R,
		p:    opts.P,
		salt: make([]byte, saltSize),
	}

	if _, err := io.ReadFull(rand.Reader, hdr.salt); err != nil {
		return nil, err
	}

	key, err := hdr.deriveKey(password)
	if err != nil {
		return nil, err
	}

	root, err := os.MkdirTemp(opts.StagingDir, "pfm-secure-")
	if err != nil {
		return nil, err
	}

	c := Container{
		path: path,
		opts: opts,
		hdr:  &hdr,
		key:  key,
		root: root,
	}

	if err := c.Sync(); err != nil {
		os.RemoveAll(root)
		return nil, err
	}

	return &c, nil
}

// Open returns a locked container.
func Open(path string, o *Options) (*Container, error) {
	if !IsContainer(path) {
		return nil, fmt.Errorf("open %s: %w", path, ErrNotContainer)
	}

	return &Container{
		path: path,
		opts: o.withDefaults(),
	}, nil
}

func (c *Container) Path() string {
	return c.path
}

func (c *Container) IsUnlocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.root) > 0
}

// Root returns the real root of the unlocked tree.
func (c *Container) Root() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.root) == 0 {
		return "", ErrLocked
	}

	return c.root, nil
}

// Unlock decrypts the container and extracts its tree to a staging directory.
func (c *Container) Unlock(password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.root) > 0 {
		return nil
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return err
	}

	hdr, err := parseHeader(data)
	if err != nil {
		return err
	}

	key, err := hdr.deriveKey(password)
	if err != nil {
		return err
	}

	plain, err := decrypt(key, data[:headerSize], data[headerSize:])
	if err != nil {
		return err
	}

	root, err := os.MkdirTemp(c.opts.StagingDir, "pfm-secure-")
	if err != nil {
		return err
	}

	if err := extract(bytes.NewReader(plain), root); err != nil {
		os.RemoveAll(root)
		return fmt.Errorf("extract %s: %w", c.path, err)
	}

	c.hdr, c.key, c.root = hdr, key, root

	log.WithField("container", c.path).Debug("Container unlocked")

	return nil
}

// Sync encrypts the current tree and atomically replaces the container file.
func (c *Container) Sync() error {
	c.treeMu.RLock()
	defer c.treeMu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.sync()
}

func (c *Container) sync() error {
	if len(c.root) == 0 {
		return ErrLocked
	}

	var plain bytes.Buffer

	if err := archive(&plain, c.root); err != nil {
		return fmt.Errorf("archive %s: %w", c.root, err)
	}

	hdr := c.hdr.bytes()

	ct, err := encrypt(c.key, hdr, plain.Bytes())
	if err != nil {
		return err
	}

	return writeFileAtomic(c.path, append(hdr, ct...), 0600)
}

// Lock syncs the tree, removes the staging directory and forgets the key.
func (c *Container) Lock() error {
	c.treeMu.Lock()
	defer c.treeMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.root) == 0 {
		return nil
	}

	if err := c.sync(); err != nil {
		return err
	}

	if err := os.RemoveAll(c.root); err != nil {
		log.WithField("container", c.path).Warnf("Failed to remove the staging directory: %s", err)
	}

	clear(c.key)

	c.key, c.root = nil, ""

	log.WithField("container", c.path).Debug("Container locked")

	return nil
}

func (c *Container) Close() error {
	return c.Lock()
}

// Read runs fn with the tree root under the shared lock.
func (c *Container) Read(fn func(root string) error) error {
	c.treeMu.RLock()
	defer c.treeMu.RUnlock()

	root, err := c.Root()
	if err != nil {
		return err
	}

	return fn(root)
}

// Mutate runs fn with the tree root under the exclusive lock.
func (c *Container) Mutate(fn func(root string) error) error {
	c.treeMu.Lock()
	defer c.treeMu.Unlock()

	root, err := c.Root()
	if err != nil {
		return err
	}

	return fn(root)
}

func encrypt(key, ad, plain []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)

	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plain, ad), nil
}

func decrypt(key, ad, blob []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(blob) < nonceSize {
		return nil, ErrInvalidPassword
	}

	plain, err := gcm.Open(nil, blob[:nonceSize], blob[nonceSize:], ad)
	if err != nil {
		return nil, ErrInvalidPassword
	}

	return plain, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	return cipher.NewGCMWithNonceSize(block, nonceSize)
}

func writeFileAtomic(fname string, data []byte, perm os.FileMode) error {
	fd, err := os.CreateTemp(filepath.Dir(fname), "."+filepath.Base(fname)+".*")
	if err != nil {
		return err
	}

	tmpname := fd.Name()

	defer os.Remove(tmpname)

	if _, err := fd.Write(data); err != nil {
		fd.Close()
		return err
	}

	if err := fd.Sync(); err != nil {
		fd.Close()
		return err
	}

	if err := fd.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpname, perm); err != nil {
		return err
	}

	return os.Rename(tmpname, fname)
}

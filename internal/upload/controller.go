// Package upload turns a batch of local image files into public URLs in the
// product image bucket.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/Izileth/lp-ebook/internal/util"
	"github.com/Izileth/lp-ebook/pkg/remote"
)

const (
	DefaultMaxImages  = 5
	DefaultMaxBytes   = 5 * 1024 * 1024
	DefaultResetDelay = 2 * time.Second
)

// ErrBusy is returned when Upload is called while a batch is in flight.
var ErrBusy = errors.New("upload already in progress")

var acceptedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseValidating Phase = "validating"
	PhaseUploading  Phase = "uploading"
	PhaseDone       Phase = "done"
	PhaseFailed     Phase = "failed"
)

// State is a snapshot of the controller. Progress runs 0..100 across the batch.
type State struct {
	Phase    Phase
	Progress int
	Err      string
}

// File is one local file to upload.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// ValidationError rejects a whole batch before any upload starts.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

type Controller struct {
	bucket     remote.Bucket
	maxImages  int
	maxBytes   int64
	resetDelay time.Duration
	pathFor    func(File) string
	onUpload   func([]string)
	onChange   func(State)

	mu     sync.Mutex
	images []string
	state  State
	busy   bool
	timer  *time.Timer
	gen    uint64
}

type Option func(*Controller)

func WithMaxImages(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxImages = n
		}
	}
}

func WithMaxBytes(n int64) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxBytes = n
		}
	}
}

// WithResetDelay sets how long the done state stays visible. Zero keeps it.
func WithResetDelay(d time.Duration) Option {
	return func(c *Controller) { c.resetDelay = d }
}

// WithImages seeds the controller with URLs already attached to a product.
func WithImages(urls []string) Option {
	return func(c *Controller) { c.images = append([]string(nil), urls...) }
}

// WithPathFunc overrides the object path generator.
func WithPathFunc(fn func(File) string) Option {
	return func(c *Controller) {
		if fn != nil {
			c.pathFor = fn
		}
	}
}

// WithOnUpload receives the full image list after every change.
func WithOnUpload(fn func([]string)) Option {
	return func(c *Controller) { c.onUpload = fn }
}

// WithOnChange receives every state transition.
func WithOnChange(fn func(State)) Option {
	return func(c *Controller) { c.onChange = fn }
}

func New(bucket remote.Bucket, opts ...Option) *Controller {
	c := &Controller{
		bucket:     bucket,
		maxImages:  DefaultMaxImages,
		maxBytes:   DefaultMaxBytes,
		resetDelay: DefaultResetDelay,
		pathFor:    ObjectPath,
		state:      State{Phase: PhaseIdle},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Images returns the current URL list.
func (c *Controller) Images() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.images...)
}

// Remove drops the URL at index i from the list. The stored object is kept.
func (c *Controller) Remove(i int) error {
	c.mu.Lock()
	if i < 0 || i >= len(c.images) {
		c.mu.Unlock()
		return fmt.Errorf("image index %d out of range", i)
	}
	next := make([]string, 0, len(c.images)-1)
	next = append(next, c.images[:i]...)
	next = append(next, c.images[i+1:]...)
	c.images = next
	urls := append([]string(nil), next...)
	c.mu.Unlock()
	if c.onUpload != nil {
		c.onUpload(urls)
	}
	return nil
}

// Reset returns the controller to idle unless a batch is in flight.
func (c *Controller) Reset() {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return
	}
	c.stopTimerLocked()
	c.state = State{Phase: PhaseIdle}
	state := c.state
	c.mu.Unlock()
	c.notify(state)
}

// Upload validates the whole batch, then uploads the files one by one. The
// first failure aborts the batch and removes the objects it already stored.
// On success the merged URL list is returned and handed to the upload callback.
func (c *Controller) Upload(ctx context.Context, files []File) ([]string, error) {
	if len(files) == 0 {
		return c.Images(), nil
	}
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.busy = true
	c.stopTimerLocked()
	remaining := c.maxImages - len(c.images)
	c.state = State{Phase: PhaseValidating}
	c.mu.Unlock()
	c.notify(State{Phase: PhaseValidating})

	if err := c.validate(files, remaining); err != nil {
		return nil, c.fail(err)
	}
	if c.bucket == nil {
		return nil, c.fail(remote.ErrUnavailable)
	}

	c.set(State{Phase: PhaseUploading})
	logger := util.LoggerFromContext(ctx)
	total := len(files)
	urls := make([]string, 0, total)
	stored := make([]string, 0, total)
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			c.compensate(ctx, stored)
			return nil, c.fail(err)
		}
		objectPath := c.pathFor(f)
		if err := c.put(ctx, objectPath, f); err != nil {
			logger.Warn("image upload failed", "file", f.Name, "path", objectPath, "err", err)
			c.compensate(ctx, stored)
			return nil, c.fail(err)
		}
		stored = append(stored, objectPath)
		urls = append(urls, c.bucket.PublicURL(objectPath))
		c.set(State{Phase: PhaseUploading, Progress: progress(i+1, total)})
	}

	c.mu.Lock()
	c.images = append(c.images, urls...)
	merged := append([]string(nil), c.images...)
	c.state = State{Phase: PhaseDone, Progress: 100}
	c.busy = false
	c.gen++
	gen := c.gen
	if c.resetDelay > 0 {
		c.timer = time.AfterFunc(c.resetDelay, func() { c.expire(gen) })
	}
	c.mu.Unlock()
	c.notify(State{Phase: PhaseDone, Progress: 100})

	logger.Info("images uploaded", "count", total, "total_images", len(merged))
	if c.onUpload != nil {
		c.onUpload(merged)
	}
	return merged, nil
}

func (c *Controller) validate(files []File, remaining int) error {
	if len(files) > remaining {
		if remaining < 0 {
			remaining = 0
		}
		noun := "images"
		if remaining == 1 {
			noun = "image"
		}
		return &ValidationError{Message: fmt.Sprintf("limit reached: you can add at most %d more %s now", remaining, noun)}
	}
	for _, f := range files {
		if !acceptedTypes[normalizeType(f.ContentType)] {
			return &ValidationError{Message: fmt.Sprintf("%q is not a supported format. Use JPG, PNG, WebP or GIF.", f.Name)}
		}
		if f.Size > c.maxBytes {
			return &ValidationError{Message: fmt.Sprintf("%q exceeds the %dMB limit.", f.Name, c.maxBytes/(1024*1024))}
		}
	}
	return nil
}

func (c *Controller) put(ctx context.Context, objectPath string, f File) error {
	if f.Open == nil {
		return fmt.Errorf("%s: no content", f.Name)
	}
	r, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer r.Close()
	return c.bucket.Upload(ctx, objectPath, r, f.Size, normalizeType(f.ContentType))
}

// compensate deletes objects stored by an aborted batch. Failures are logged only.
func (c *Controller) compensate(ctx context.Context, paths []string) {
	if len(paths) == 0 {
		return
	}
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := c.bucket.Remove(cleanupCtx, paths...); err != nil {
		util.LoggerFromContext(ctx).Warn("remove orphaned uploads failed", "paths", paths, "err", err)
	}
}

func (c *Controller) fail(err error) error {
	c.mu.Lock()
	c.busy = false
	c.state = State{Phase: PhaseFailed, Err: remote.Message(err)}
	state := c.state
	c.mu.Unlock()
	c.notify(state)
	return err
}

func (c *Controller) set(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	c.notify(state)
}

func (c *Controller) expire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.busy || c.state.Phase != PhaseDone {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.state = State{Phase: PhaseIdle}
	c.mu.Unlock()
	c.notify(State{Phase: PhaseIdle})
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}

func (c *Controller) notify(state State) {
	if c.onChange != nil {
		c.onChange(state)
	}
}

func progress(done, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(done) / float64(total) * 100))
}

func normalizeType(contentType string) string {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	return contentType
}

// ObjectPath names an object products/<unix millis>-<6 random chars>.<ext>.
// Files without an extension are stored as .jpg.
func ObjectPath(f File) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(f.Name)), ".")
	if ext == "" {
		ext = "jpg"
	}
	return fmt.Sprintf("products/%d-%s.%s", time.Now().UnixMilli(), util.RandomBase36(6), ext)
}

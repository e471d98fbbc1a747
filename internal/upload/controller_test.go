package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Izileth/lp-ebook/pkg/remote"
	"github.com/Izileth/lp-ebook/pkg/remote/remotetest"
)

func memFile(name, contentType string, size int) File {
	body := bytes.Repeat([]byte{'x'}, size)
	return File{
		Name:        name,
		ContentType: contentType,
		Size:        int64(size),
		Open:        func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil },
	}
}

func sequentialPaths() func(File) string {
	var mu sync.Mutex
	n := 0
	return func(f File) string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return "products/" + strings.Repeat("i", n) + filepath.Ext(f.Name)
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestValidationIsPreflight(t *testing.T) {
	bucket := remotetest.NewBucket()
	c := New(bucket)
	_, err := c.Upload(context.Background(), []File{
		memFile("a.jpg", "image/jpeg", 10),
		memFile("b.pdf", "application/pdf", 10),
		memFile("c.png", "image/png", 10),
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(verr.Message, `"b.pdf"`) {
		t.Fatalf("message should name the file: %s", verr.Message)
	}
	if bucket.Uploads() != 0 {
		t.Fatalf("no file may be uploaded when validation fails, got %d", bucket.Uploads())
	}
	if s := c.State(); s.Phase != PhaseFailed || s.Err == "" {
		t.Fatalf("unexpected state: %+v", s)
	}
}

func TestSlotLimit(t *testing.T) {
	bucket := remotetest.NewBucket()
	c := New(bucket, WithImages([]string{"u1", "u2", "u3", "u4"}))
	_, err := c.Upload(context.Background(), []File{
		memFile("a.jpg", "image/jpeg", 1),
		memFile("b.jpg", "image/jpeg", 1),
	})
	if err == nil || !strings.Contains(err.Error(), "at most 1 more image now") {
		t.Fatalf("unexpected error: %v", err)
	}
	if bucket.Uploads() != 0 {
		t.Fatalf("no upload expected")
	}
}

func TestSizeLimit(t *testing.T) {
	bucket := remotetest.NewBucket()
	c := New(bucket, WithMaxBytes(1024*1024))
	_, err := c.Upload(context.Background(), []File{memFile("big.png", "image/png", 1024*1024+1)})
	if err == nil || !strings.Contains(err.Error(), "exceeds the 1MB limit") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSequentialUploadWithProgress(t *testing.T) {
	bucket := remotetest.NewBucket()
	var mu sync.Mutex
	var progress []int
	var handed []string
	c := New(bucket,
		WithImages([]string{"https://cdn.test/existing.jpg"}),
		WithPathFunc(sequentialPaths()),
		WithResetDelay(20*time.Millisecond),
		WithOnChange(func(s State) {
			if s.Phase == PhaseUploading {
				mu.Lock()
				progress = append(progress, s.Progress)
				mu.Unlock()
			}
		}),
		WithOnUpload(func(urls []string) { handed = urls }),
	)

	urls, err := c.Upload(context.Background(), []File{
		memFile("a.jpg", "image/jpeg", 3),
		memFile("b.png", "image/png; charset=binary", 3),
		memFile("c.webp", "image/webp", 3),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	want := []string{
		"https://cdn.test/existing.jpg",
		"https://cdn.test/product-images/products/i.jpg",
		"https://cdn.test/product-images/products/ii.png",
		"https://cdn.test/product-images/products/iii.webp",
	}
	if strings.Join(urls, ",") != strings.Join(want, ",") {
		t.Fatalf("urls = %v, want %v", urls, want)
	}
	if strings.Join(handed, ",") != strings.Join(want, ",") {
		t.Fatalf("callback got %v", handed)
	}
	mu.Lock()
	got := progress
	mu.Unlock()
	if len(got) != 4 || got[0] != 0 || got[1] != 33 || got[2] != 67 || got[3] != 100 {
		t.Fatalf("progress = %v", got)
	}
	if bucket.ContentType("products/ii.png") != "image/png" {
		t.Fatalf("content type = %q", bucket.ContentType("products/ii.png"))
	}
	if s := c.State(); s.Phase != PhaseDone || s.Progress != 100 {
		t.Fatalf("unexpected state: %+v", s)
	}
	eventually(t, func() bool { return c.State().Phase == PhaseIdle })
}

func TestMidBatchFailureRemovesStoredObjects(t *testing.T) {
	bucket := remotetest.NewBucket()
	bucket.FailUpload(2, &remote.APIError{Status: 500, Message: "storage exploded"})
	c := New(bucket, WithImages([]string{"keep"}), WithPathFunc(sequentialPaths()))

	urls, err := c.Upload(context.Background(), []File{
		memFile("a.jpg", "image/jpeg", 1),
		memFile("b.jpg", "image/jpeg", 1),
		memFile("c.jpg", "image/jpeg", 1),
	})
	if err == nil || urls != nil {
		t.Fatalf("expected failure, got %v, %v", urls, err)
	}
	if bucket.Uploads() != 2 {
		t.Fatalf("batch should stop at the failing file, uploads=%d", bucket.Uploads())
	}
	if len(bucket.Objects()) != 0 {
		t.Fatalf("stored objects should be removed: %v", bucket.Objects())
	}
	if removed := bucket.Removed(); len(removed) != 1 || removed[0] != "products/i.jpg" {
		t.Fatalf("removed = %v", removed)
	}
	if s := c.State(); s.Phase != PhaseFailed || s.Err != "storage exploded" || s.Progress != 0 {
		t.Fatalf("unexpected state: %+v", s)
	}
	if images := c.Images(); len(images) != 1 || images[0] != "keep" {
		t.Fatalf("images must be unchanged: %v", images)
	}
}

func TestConcurrentUploadRejected(t *testing.T) {
	bucket := remotetest.NewBucket()
	release := make(chan struct{})
	opened := make(chan struct{})
	blocking := File{
		Name:        "slow.jpg",
		ContentType: "image/jpeg",
		Size:        1,
		Open: func() (io.ReadCloser, error) {
			close(opened)
			<-release
			return io.NopCloser(strings.NewReader("x")), nil
		},
	}
	c := New(bucket)
	done := make(chan error)
	go func() {
		_, err := c.Upload(context.Background(), []File{blocking})
		done <- err
	}()
	<-opened
	if _, err := c.Upload(context.Background(), []File{memFile("a.jpg", "image/jpeg", 1)}); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first upload: %v", err)
	}
}

func TestUnavailableBucket(t *testing.T) {
	c := New(nil)
	_, err := c.Upload(context.Background(), []File{memFile("a.jpg", "image/jpeg", 1)})
	if !errors.Is(err, remote.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestRemoveNotifies(t *testing.T) {
	var handed []string
	c := New(remotetest.NewBucket(), WithImages([]string{"a", "b", "c"}), WithOnUpload(func(u []string) { handed = u }))
	if err := c.Remove(1); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if strings.Join(handed, ",") != "a,c" || strings.Join(c.Images(), ",") != "a,c" {
		t.Fatalf("unexpected list: %v / %v", handed, c.Images())
	}
	if err := c.Remove(5); err == nil {
		t.Fatalf("expected out of range error")
	}
}

func TestObjectPath(t *testing.T) {
	re := regexp.MustCompile(`^products/\d+-[0-9a-z]{6}\.(png|jpg)$`)
	if p := ObjectPath(File{Name: "Cover.PNG"}); !re.MatchString(p) || !strings.HasSuffix(p, ".png") {
		t.Fatalf("unexpected path %q", p)
	}
	if p := ObjectPath(File{Name: "cover"}); !re.MatchString(p) || !strings.HasSuffix(p, ".jpg") {
		t.Fatalf("unexpected path %q", p)
	}
}

func TestFileFromPathSniffsType(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cover.jpg")
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")
	if err := os.WriteFile(p, png, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	f, err := FileFromPath(p)
	if err != nil {
		t.Fatalf("file from path: %v", err)
	}
	if f.ContentType != "image/png" || f.Size != int64(len(png)) || f.Name != "cover.jpg" {
		t.Fatalf("unexpected file: %+v", f)
	}
	if _, err := FileFromPath(dir); err == nil {
		t.Fatalf("directories must be rejected")
	}
}

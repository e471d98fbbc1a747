package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Izileth/lp-ebook/internal/dashboard"
	"github.com/Izileth/lp-ebook/internal/form"
	"github.com/Izileth/lp-ebook/internal/mutation"
	"github.com/Izileth/lp-ebook/internal/refresh"
	"github.com/Izileth/lp-ebook/internal/resource"
	"github.com/Izileth/lp-ebook/internal/upload"
	"github.com/Izileth/lp-ebook/pkg/domain"
	"github.com/Izileth/lp-ebook/pkg/remote"
)

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"products":       cmdProducts,
	"product":        cmdProduct,
	"signin":         cmdSignIn,
	"signup":         cmdSignUp,
	"signout":        cmdSignOut,
	"whoami":         cmdWhoAmI,
	"profile":        cmdProfile,
	"profile-update": cmdProfileUpdate,
	"subscribe":      cmdSubscribe,
	"admin":          cmdAdmin,
	"watch":          cmdWatch,
}

// stringList collects a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}

// visited returns the names of flags set on the command line.
func visited(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// printState renders a settled resource. Not-found is output, not an error.
func printState[T any](a *app, s resource.State[T]) error {
	switch {
	case s.NotFound:
		return a.print(map[string]any{"not_found": true})
	case s.Err != "":
		return errors.New(s.Err)
	default:
		return a.print(s.Data)
	}
}

func cmdProducts(ctx context.Context, a *app, args []string) error {
	if err := newFlagSet("products").Parse(args); err != nil {
		return err
	}
	res := resource.Products(a.data)
	defer res.Close()
	_ = res.Load(ctx, resource.NoKey{})
	return printState(a, res.State())
}

func cmdProduct(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("product")
	id := fs.Int64("id", 0, "product id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id <= 0 {
		return errors.New("product: -id is required")
	}
	res := resource.Product(a.data)
	defer res.Close()
	_ = res.Load(ctx, *id)
	return printState(a, res.State())
}

func cmdSignIn(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("signin")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	identity, err := a.sessions.SignInWithEmail(ctx, *email, *password)
	if err != nil {
		return err
	}
	return a.print(identity)
}

func cmdSignUp(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("signup")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	name := fs.String("name", "", "display name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	identity, signedIn, err := a.sessions.SignUpWithEmail(ctx, *email, *password, *name)
	if err != nil {
		return err
	}
	if !signedIn {
		slog.Info("sign-up pending email confirmation", "email", identity.Email)
	}
	return a.print(map[string]any{
		"user":                  identity,
		"signed_in":             signedIn,
		"confirmation_required": !signedIn,
	})
}

func cmdSignOut(ctx context.Context, a *app, args []string) error {
	if err := newFlagSet("signout").Parse(args); err != nil {
		return err
	}
	if err := a.sessions.SignOut(ctx); err != nil {
		slog.Warn("remote sign-out failed; local session cleared", "err", err)
	}
	return a.print(map[string]any{"signed_in": false})
}

func cmdWhoAmI(ctx context.Context, a *app, args []string) error {
	if err := newFlagSet("whoami").Parse(args); err != nil {
		return err
	}
	identity := a.sessions.Identity()
	if identity == nil {
		return a.print(map[string]any{"signed_in": false})
	}
	return a.print(map[string]any{
		"signed_in": true,
		"user":      identity,
		"name":      identity.DisplayName(),
		"confirmed": identity.Confirmed(),
	})
}

func cmdProfile(ctx context.Context, a *app, args []string) error {
	if err := newFlagSet("profile").Parse(args); err != nil {
		return err
	}
	userID := ""
	if identity := a.sessions.Identity(); identity != nil {
		userID = identity.ID
	}
	res := resource.Profile(a.data)
	defer res.Close()
	_ = res.Load(ctx, userID)
	return printState(a, res.State())
}

func cmdProfileUpdate(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("profile-update")
	var f form.ProfileForm
	fs.StringVar(&f.Name, "name", "", "display name")
	fs.StringVar(&f.Slug, "slug", "", "public handle")
	fs.StringVar(&f.Bio, "bio", "", "short bio")
	if err := fs.Parse(args); err != nil {
		return err
	}
	patch, err := f.Patch()
	if err != nil {
		return err
	}
	if !visited(fs)["bio"] {
		patch.Bio = nil
	}
	profile, err := mutation.UpdateProfile(a.data, a.sessions).Perform(ctx, patch)
	if err != nil {
		return err
	}
	return a.print(profile)
}

func cmdSubscribe(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("subscribe")
	email := fs.String("email", "", "email address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := mutation.SubscribeNewsletter(a.data).Perform(ctx, strings.TrimSpace(*email)); err != nil {
		return err
	}
	return a.print(map[string]any{"subscribed": *email})
}

func cmdAdmin(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errors.New("admin: expected stats, create, update, images or delete")
	}
	d := dashboard.New(a.data)
	defer d.Close()
	access, err := d.Load(ctx)
	switch {
	case access == dashboard.AccessDenied:
		return dashboard.ErrAccessDenied
	case access == dashboard.AccessUnknown:
		return err
	case err != nil:
		slog.Warn("admin dashboard loaded with errors", "err", err)
	}

	sub, rest := args[0], args[1:]
	switch sub {
	case "stats":
		return printState(a, d.Stats.State())
	case "create":
		return adminCreate(ctx, a, d, rest)
	case "update":
		return adminUpdate(ctx, a, d, rest)
	case "images":
		return adminImages(ctx, a, d, rest)
	case "delete":
		return adminDelete(ctx, a, d, rest)
	default:
		return fmt.Errorf("admin: unknown subcommand %q", sub)
	}
}

var productFlagUsage = map[string]string{
	"name":         "product name",
	"description":  "description",
	"price":        "price, e.g. 29,90",
	"discount":     "discount price",
	"slug":         "slug (derived from the name when empty)",
	"language":     "language",
	"rating":       "rating 0-5",
	"category":     "category",
	"badge":        "badge",
	"pages":        "page count",
	"checkout-url": "checkout URL",
	"access-url":   "access URL",
	"share-url":    "share URL",
}

// productFields maps flag names to the form fields they edit.
func productFields(f *form.ProductForm) map[string]*string {
	return map[string]*string{
		"name":         &f.Name,
		"description":  &f.Description,
		"price":        &f.Price,
		"discount":     &f.DiscountPrice,
		"slug":         &f.Slug,
		"language":     &f.Language,
		"rating":       &f.Rating,
		"category":     &f.Category,
		"badge":        &f.Badge,
		"pages":        &f.Pages,
		"checkout-url": &f.CheckoutURL,
		"access-url":   &f.AccessURL,
		"share-url":    &f.ShareURL,
	}
}

func productFlags(fs *flag.FlagSet, f *form.ProductForm) {
	for name, field := range productFields(f) {
		fs.StringVar(field, name, *field, productFlagUsage[name])
	}
}

func localFiles(paths []string) ([]upload.File, error) {
	files := make([]upload.File, 0, len(paths))
	for _, p := range paths {
		f, err := upload.FileFromPath(p)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

func adminCreate(ctx context.Context, a *app, d *dashboard.Dashboard, args []string) error {
	fs := newFlagSet("admin create")
	var f form.ProductForm
	productFlags(fs, &f)
	var images, imageURLs stringList
	fs.Var(&images, "image", "image file to upload (repeatable)")
	fs.Var(&imageURLs, "image-url", "existing image URL (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	f.ImageURLs = strings.Join(imageURLs, "\n")
	in, err := f.Input(a.cfg.StrictNumericInput)
	if err != nil {
		return err
	}
	files, err := localFiles(images)
	if err != nil {
		return err
	}
	id, err := d.CreateWithUploads(ctx, in, a.uploader(in.ImageURLs), files)
	if err != nil {
		return err
	}
	return printProduct(ctx, a, id)
}

func printProduct(ctx context.Context, a *app, id int64) error {
	res := resource.Product(a.data)
	defer res.Close()
	_ = res.Load(ctx, id)
	if s := res.State(); s.Data != nil {
		return a.print(s.Data)
	}
	return a.print(map[string]any{"id": id})
}

// loadProduct reads the current row so partial edits keep untouched fields.
func loadProduct(ctx context.Context, a *app, id int64) (domain.Product, error) {
	res := resource.Product(a.data)
	defer res.Close()
	_ = res.Load(ctx, id)
	s := res.State()
	switch {
	case s.NotFound:
		return domain.Product{}, fmt.Errorf("product %d: %w", id, remote.ErrNotFound)
	case s.Err != "":
		return domain.Product{}, errors.New(s.Err)
	}
	return *s.Data, nil
}

func adminUpdate(ctx context.Context, a *app, d *dashboard.Dashboard, args []string) error {
	fs := newFlagSet("admin update")
	id := fs.Int64("id", 0, "product id")
	var edits form.ProductForm
	productFlags(fs, &edits)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id <= 0 {
		return errors.New("admin update: -id is required")
	}
	current, err := loadProduct(ctx, a, *id)
	if err != nil {
		return err
	}
	f := form.FromProduct(current)
	fields, changed := productFields(&f), productFields(&edits)
	for name := range visited(fs) {
		if dst, ok := fields[name]; ok {
			*dst = *changed[name]
		}
	}
	patch, err := f.Patch(a.cfg.StrictNumericInput)
	if err != nil {
		return err
	}
	if err := d.UpdateProduct(ctx, *id, patch); err != nil {
		return err
	}
	return printProduct(ctx, a, *id)
}

func adminImages(ctx context.Context, a *app, d *dashboard.Dashboard, args []string) error {
	fs := newFlagSet("admin images")
	id := fs.Int64("id", 0, "product id")
	replace := fs.Bool("replace", false, "drop the current images instead of appending")
	var images stringList
	fs.Var(&images, "image", "image file to upload (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id <= 0 {
		return errors.New("admin images: -id is required")
	}
	current, err := loadProduct(ctx, a, *id)
	if err != nil {
		return err
	}
	existing := current.ImageURLs()
	if *replace {
		existing = nil
	}
	files, err := localFiles(images)
	if err != nil {
		return err
	}
	if err := d.ReplaceImagesWithUploads(ctx, *id, a.uploader(existing), files); err != nil {
		return err
	}
	return printProduct(ctx, a, *id)
}

func adminDelete(ctx context.Context, a *app, d *dashboard.Dashboard, args []string) error {
	fs := newFlagSet("admin delete")
	id := fs.Int64("id", 0, "product id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id <= 0 {
		return errors.New("admin delete: -id is required")
	}
	if err := d.DeleteProduct(ctx, *id); err != nil {
		return err
	}
	return a.print(map[string]any{"deleted": *id})
}

func cmdWatch(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("watch")
	interval := fs.Duration("interval", 30*time.Second, "refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *interval <= 0 {
		return errors.New("watch: -interval must be positive")
	}

	if a.cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              a.cfg.MetricsAddr,
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("metrics listening", "addr", a.cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server error", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}
	if a.client != nil {
		a.client.Auth.StartAutoRefresh(ctx)
	}

	var key refresh.Key
	products := resource.Products(a.data)
	defer products.Close()
	products.Subscribe(func(s resource.State[[]domain.Product]) {
		switch {
		case s.Loading:
		case s.Err != "":
			slog.Warn("products refresh failed", "err", s.Err, "stale", s.Stale != nil)
		case s.Data != nil:
			slog.Info("products refreshed", "count", len(*s.Data))
		}
	})
	stopWatch := products.Watch(ctx, &key)
	defer stopWatch()

	profile := resource.Profile(a.data)
	defer profile.Close()
	profile.Subscribe(func(s resource.State[domain.Profile]) {
		if s.Data != nil {
			slog.Info("profile loaded", "user_id", s.Data.ID)
		}
	})
	unbind := resource.BindProfile(ctx, a.sessions, profile)
	defer unbind()

	_ = products.Load(ctx, resource.NoKey{})
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("watch stopped")
			return nil
		case <-ticker.C:
			key.Bump()
		}
	}
}

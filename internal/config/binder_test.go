package config

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dshills/imgc/internal/processor"
)

func testOptions() []processor.Option {
	min := 1.0
	max := 100.0
	return []processor.Option{
		{Name: "jpeg_quality", Type: processor.OptionInt, Default: 85, Minimum: &min, Maximum: &max},
		{Name: "label", Type: processor.OptionString, Default: "photo"},
		{Name: "lossless", Type: processor.OptionBool, Default: false},
	}
}

func TestBinderFlagAndEnvNames(t *testing.T) {
	b := NewBinder(DefaultEnvPrefix)

	if got := b.FlagName("image", "jpeg_quality"); got != "image-jpeg-quality" {
		t.Errorf("FlagName() = %q, want %q", got, "image-jpeg-quality")
	}
	if got := b.EnvName("image", "jpeg_quality"); got != "IMGC_IMAGE_JPEG_QUALITY" {
		t.Errorf("EnvName() = %q, want %q", got, "IMGC_IMAGE_JPEG_QUALITY")
	}

	// Core namespace drops the namespace segment.
	if got := b.FlagName(CoreNamespace, "stable_seconds"); got != "stable-seconds" {
		t.Errorf("FlagName(core) = %q, want %q", got, "stable-seconds")
	}
	if got := b.EnvName(CoreNamespace, "stable_seconds"); got != "IMGC_STABLE_SECONDS" {
		t.Errorf("EnvName(core) = %q, want %q", got, "IMGC_STABLE_SECONDS")
	}
}

func TestBinderResolveDefaults(t *testing.T) {
	b := NewBinder(DefaultEnvPrefix)
	if err := b.Register("image", testOptions()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	r := b.Resolve(nil, nil)

	want := map[string]any{
		"jpeg_quality": 85,
		"label":        "photo",
		"lossless":     false,
	}
	if diff := cmp.Diff(want, r.Namespace("image")); diff != "" {
		t.Errorf("Namespace(image) mismatch (-want +got):\n%s", diff)
	}
	if len(r.Warnings()) != 0 {
		t.Errorf("Warnings() = %v, want none", r.Warnings())
	}
}

func TestBinderResolvePrecedence(t *testing.T) {
	b := NewBinder(DefaultEnvPrefix)
	if err := b.Register("image", testOptions()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	t.Setenv("IMGC_IMAGE_JPEG_QUALITY", "70")

	// Flag beats env.
	flags := map[string]string{"image-jpeg-quality": "95"}
	r := b.Resolve(flags, nil)
	if got := r.Namespace("image")["jpeg_quality"]; got != 95 {
		t.Errorf("jpeg_quality with flag+env = %v, want 95", got)
	}

	// Env beats file and default.
	file := map[string]map[string]any{"image": {"jpeg_quality": int64(50)}}
	r = b.Resolve(nil, file)
	if got := r.Namespace("image")["jpeg_quality"]; got != 70 {
		t.Errorf("jpeg_quality with env+file = %v, want 70", got)
	}
}

func TestBinderResolveFileValue(t *testing.T) {
	b := NewBinder(DefaultEnvPrefix)
	if err := b.Register("image", testOptions()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	file := map[string]map[string]any{
		"image": {
			"jpeg_quality": int64(60),
			"lossless":     true,
		},
	}
	r := b.Resolve(nil, file)
	vals := r.Namespace("image")
	if vals["jpeg_quality"] != 60 {
		t.Errorf("jpeg_quality from file = %v, want 60", vals["jpeg_quality"])
	}
	if vals["lossless"] != true {
		t.Errorf("lossless from file = %v, want true", vals["lossless"])
	}
}

func TestBinderCoercionFailureFallsBack(t *testing.T) {
	b := NewBinder(DefaultEnvPrefix)
	if err := b.Register("image", testOptions()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	flags := map[string]string{"image-jpeg-quality": "not-a-number"}
	r := b.Resolve(flags, nil)

	if got := r.Namespace("image")["jpeg_quality"]; got != 85 {
		t.Errorf("jpeg_quality after bad flag = %v, want default 85", got)
	}
	warnings := r.Warnings()
	if len(warnings) != 1 {
		t.Fatalf("Warnings() len = %d, want 1", len(warnings))
	}
	if warnings[0].Option != "jpeg_quality" || warnings[0].Source != "flag" {
		t.Errorf("Warning = %+v, want jpeg_quality/flag", warnings[0])
	}
}

func TestBinderConstraintViolationFallsBack(t *testing.T) {
	b := NewBinder(DefaultEnvPrefix)
	if err := b.Register("image", testOptions()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	t.Setenv("IMGC_IMAGE_JPEG_QUALITY", "150")
	r := b.Resolve(nil, nil)

	if got := r.Namespace("image")["jpeg_quality"]; got != 85 {
		t.Errorf("jpeg_quality above maximum = %v, want default 85", got)
	}
	if len(r.Warnings()) != 1 {
		t.Errorf("Warnings() len = %d, want 1", len(r.Warnings()))
	}
}

func TestBinderBadValueFallsThroughLevels(t *testing.T) {
	b := NewBinder(DefaultEnvPrefix)
	if err := b.Register("image", testOptions()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	// Bad flag value, good env value: env should win over the default.
	t.Setenv("IMGC_IMAGE_JPEG_QUALITY", "70")
	flags := map[string]string{"image-jpeg-quality": "oops"}
	r := b.Resolve(flags, nil)

	if got := r.Namespace("image")["jpeg_quality"]; got != 70 {
		t.Errorf("jpeg_quality = %v, want env fallback 70", got)
	}
}

func TestBinderCollision(t *testing.T) {
	b := NewBinder(DefaultEnvPrefix)
	if err := b.Register("image", testOptions()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	// Same namespace, same option (different spelling) collides.
	err := b.Register("image", []processor.Option{
		{Name: "jpeg-quality", Type: processor.OptionInt, Default: 1},
	})
	var collision *CollisionError
	if !errors.As(err, &collision) {
		t.Fatalf("Register() error = %v, want *CollisionError", err)
	}
	if collision.Namespace != "image" || collision.Option != "jpeg-quality" {
		t.Errorf("CollisionError = %+v", collision)
	}
}

func TestBinderDisjointNamespaceMerge(t *testing.T) {
	b := NewBinder(DefaultEnvPrefix)
	if err := b.Register("image", testOptions()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := b.Register("image", []processor.Option{
		{Name: "extra", Type: processor.OptionString, Default: "x"},
	}); err != nil {
		t.Errorf("Register() disjoint options error = %v", err)
	}

	if got := len(b.Options("image")); got != 4 {
		t.Errorf("Options(image) len = %d, want 4", got)
	}
}

func TestBinderRejectsBadDefault(t *testing.T) {
	b := NewBinder(DefaultEnvPrefix)
	err := b.Register("broken", []processor.Option{
		{Name: "quality", Type: processor.OptionInt, Default: "eighty-five"},
	})
	if err == nil {
		t.Error("Register() should reject a default of the wrong type")
	}
}

func TestBinderRegisterAtomic(t *testing.T) {
	b := NewBinder(DefaultEnvPrefix)

	// One good option followed by a bad one: the whole batch must be
	// rejected, leaving the namespace untouched.
	err := b.Register("mixed", []processor.Option{
		{Name: "keep", Type: processor.OptionInt, Default: 1},
		{Name: "bad", Type: processor.OptionInt, Default: "nope"},
	})
	if err == nil {
		t.Fatal("Register() error = nil, want bad default rejected")
	}
	if got := len(b.Options("mixed")); got != 0 {
		t.Fatalf("Options(mixed) len = %d after failed batch, want 0", got)
	}

	// The name from the failed batch is free for a later registration.
	if err := b.Register("mixed", []processor.Option{
		{Name: "keep", Type: processor.OptionInt, Default: 2},
	}); err != nil {
		t.Fatalf("Register() after failed batch error = %v", err)
	}
	if got := b.Resolve(nil, nil).Namespace("mixed")["keep"]; got != 2 {
		t.Errorf("keep = %v, want 2", got)
	}
}

func TestBinderFileKeySpellings(t *testing.T) {
	b := NewBinder(DefaultEnvPrefix)
	if err := b.Register("image", testOptions()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	// TOML may spell the key with hyphens.
	file := map[string]map[string]any{"image": {"jpeg-quality": int64(42)}}
	r := b.Resolve(nil, file)
	if got := r.Namespace("image")["jpeg_quality"]; got != 42 {
		t.Errorf("jpeg_quality via hyphen spelling = %v, want 42", got)
	}
}

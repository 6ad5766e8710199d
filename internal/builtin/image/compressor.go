// Package image provides the built-in image compressor. JPEG and PNG are
// re-encoded natively; PNG prefers an external pngquant pass when the tool
// is installed, and WebP/AVIF rely entirely on cwebp and avifenc. The
// original file is only replaced when the re-encoded result is strictly
// smaller.
package image

import (
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/dshills/imgc/internal/processor"
	"github.com/dshills/imgc/internal/watch"
)

// Option names under the "image" configuration namespace.
const (
	optJPEGQuality = "jpeg_quality"
	optPNGMin      = "png_min"
	optPNGMax      = "png_max"
	optWebPQuality = "webp_quality"
	optAVIFQuality = "avif_quality"
)

// Default option values.
const (
	DefaultJPEGQuality = 85
	DefaultPNGMin      = 65
	DefaultPNGMax      = 80
	DefaultWebPQuality = 85
	DefaultAVIFQuality = 65
)

// pngquant bails with these codes instead of writing output: 98 when the
// result would be larger, 99 when the quality floor cannot be met.
var errQuantBailed = errors.New("pngquant declined")

// Compressor shrinks image files in place.
type Compressor struct {
	mu   sync.Mutex
	opts settings
	look func(file string) (string, error)
}

type settings struct {
	jpegQuality int
	pngMin      int
	pngMax      int
	webpQuality int
	avifQuality int
}

var (
	_ processor.Processor    = (*Compressor)(nil)
	_ processor.Matcher      = (*Compressor)(nil)
	_ processor.Configurable = (*Compressor)(nil)
)

// New creates a compressor with default settings. External tools are
// resolved through PATH at call time, so installing pngquant after startup
// takes effect without a restart.
func New() *Compressor {
	return &Compressor{opts: defaultSettings(), look: exec.LookPath}
}

func defaultSettings() settings {
	return settings{
		jpegQuality: DefaultJPEGQuality,
		pngMin:      DefaultPNGMin,
		pngMax:      DefaultPNGMax,
		webpQuality: DefaultWebPQuality,
		avifQuality: DefaultAVIFQuality,
	}
}

// Descriptor returns the compressor's identity and option schema.
func (c *Compressor) Descriptor() processor.Descriptor {
	return processor.Descriptor{
		Name:       "Image Compressor",
		Version:    "1.0.0",
		Priority:   50,
		Namespace:  "image",
		Extensions: []string{".jpg", ".jpeg", ".png", ".webp", ".avif"},
		Options: []processor.Option{
			{Name: optJPEGQuality, Type: processor.OptionInt, Default: DefaultJPEGQuality,
				Description: "JPEG re-encode quality", Minimum: limit(1), Maximum: limit(100)},
			{Name: optPNGMin, Type: processor.OptionInt, Default: DefaultPNGMin,
				Description: "pngquant minimum quality", Minimum: limit(0), Maximum: limit(100)},
			{Name: optPNGMax, Type: processor.OptionInt, Default: DefaultPNGMax,
				Description: "pngquant maximum quality", Minimum: limit(0), Maximum: limit(100)},
			{Name: optWebPQuality, Type: processor.OptionInt, Default: DefaultWebPQuality,
				Description: "cwebp re-encode quality", Minimum: limit(1), Maximum: limit(100)},
			{Name: optAVIFQuality, Type: processor.OptionInt, Default: DefaultAVIFQuality,
				Description: "avifenc color quality", Minimum: limit(0), Maximum: limit(100)},
		},
	}
}

func limit(v float64) *float64 { return &v }

// Configure applies resolved option values. Values arrive already coerced
// and range-checked; only cross-option consistency is verified here.
func (c *Compressor) Configure(values map[string]any) error {
	s := settings{
		jpegQuality: intValue(values, optJPEGQuality, DefaultJPEGQuality),
		pngMin:      intValue(values, optPNGMin, DefaultPNGMin),
		pngMax:      intValue(values, optPNGMax, DefaultPNGMax),
		webpQuality: intValue(values, optWebPQuality, DefaultWebPQuality),
		avifQuality: intValue(values, optAVIFQuality, DefaultAVIFQuality),
	}
	if s.pngMin > s.pngMax {
		return fmt.Errorf("image: png_min %d exceeds png_max %d", s.pngMin, s.pngMax)
	}

	c.mu.Lock()
	c.opts = s
	c.mu.Unlock()
	return nil
}

func intValue(values map[string]any, name string, fallback int) int {
	switch v := values[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

// Matches accepts natively handled formats unconditionally and tool-backed
// formats only when the tool is actually installed.
func (c *Compressor) Matches(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png":
		return true
	case ".webp":
		return c.hasTool("cwebp")
	case ".avif":
		return c.hasTool("avifenc")
	default:
		return false
	}
}

// Process re-encodes path according to its extension. The file is replaced
// only when the result is strictly smaller; otherwise the original stays
// and the outcome reports the kept size.
func (c *Compressor) Process(_ *processor.Context, path string) (*processor.Outcome, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	opts := c.settings()

	var res result
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".jpg", ".jpeg":
		res, err = c.encodeJPEG(path, info, opts.jpegQuality)
	case ".png":
		res, err = c.encodePNG(path, info, opts)
	case ".webp":
		res, err = c.encodeWebP(path, info, opts.webpQuality)
	case ".avif":
		res, err = c.encodeAVIF(path, info, opts.avifQuality)
	default:
		return processor.Failed(fmt.Sprintf("unsupported extension %q", ext)), nil
	}
	if err != nil {
		return nil, err
	}
	return res.outcome(info.Size()), nil
}

func (c *Compressor) settings() settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts
}

// result describes one compression attempt.
type result struct {
	tool     string
	final    int64 // on-disk size after the attempt
	replaced bool
	skipped  string // reason when no attempt was made
}

func (r result) outcome(original int64) *processor.Outcome {
	if r.skipped != "" {
		return processor.Succeeded(r.skipped).WithStat("tool", r.tool)
	}

	ratio := 1.0
	if original > 0 {
		ratio = float64(r.final) / float64(original)
	}
	var o *processor.Outcome
	if r.replaced {
		o = processor.Succeeded(fmt.Sprintf("%s: %s -> %s (%.0f%%)",
			r.tool, byteSize(original), byteSize(r.final), ratio*100))
	} else {
		o = processor.Succeeded(fmt.Sprintf("%s: kept original, result not smaller", r.tool))
	}
	return o.
		WithStat("original_bytes", original).
		WithStat("final_bytes", r.final).
		WithStat("ratio", ratio).
		WithStat("tool", r.tool).
		WithStat("replaced", r.replaced)
}

func (c *Compressor) encodeJPEG(path string, info os.FileInfo, quality int) (result, error) {
	f, err := os.Open(path)
	if err != nil {
		return result{}, err
	}
	img, err := jpeg.Decode(f)
	f.Close()
	if err != nil {
		return result{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return result{}, fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return commitBytes(path, info, "image/jpeg", buf.Bytes())
}

func (c *Compressor) encodePNG(path string, info os.FileInfo, opts settings) (result, error) {
	if bin, err := c.look("pngquant"); err == nil && bin != "" {
		res, err := c.pngquant(bin, path, info, opts)
		if !errors.Is(err, errQuantBailed) {
			return res, err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return result{}, err
	}
	img, err := png.Decode(f)
	f.Close()
	if err != nil {
		return result{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return result{}, fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return commitBytes(path, info, "image/png", buf.Bytes())
}

func (c *Compressor) pngquant(bin, path string, info os.FileInfo, opts settings) (result, error) {
	tmp := path + watch.TempSuffix
	defer os.Remove(tmp)

	err := runCommand(bin,
		"--force", "--skip-if-larger",
		"--quality", fmt.Sprintf("%d-%d", opts.pngMin, opts.pngMax),
		"--output", tmp, "--", path)
	if err != nil {
		var exit *exec.ExitError
		if errors.As(err, &exit) && (exit.ExitCode() == 98 || exit.ExitCode() == 99) {
			return result{}, errQuantBailed
		}
		return result{}, fmt.Errorf("pngquant: %w", err)
	}
	return commitFile(path, info, "pngquant", tmp)
}

func (c *Compressor) encodeWebP(path string, info os.FileInfo, quality int) (result, error) {
	bin, err := c.look("cwebp")
	if err != nil || bin == "" {
		return result{tool: "none", skipped: "cwebp not on PATH, skipped"}, nil
	}

	tmp := path + watch.TempSuffix
	defer os.Remove(tmp)

	if err := runCommand(bin, "-quiet", "-q", strconv.Itoa(quality), path, "-o", tmp); err != nil {
		return result{}, fmt.Errorf("cwebp: %w", err)
	}
	return commitFile(path, info, "cwebp", tmp)
}

func (c *Compressor) encodeAVIF(path string, info os.FileInfo, quality int) (result, error) {
	bin, err := c.look("avifenc")
	if err != nil || bin == "" {
		return result{tool: "none", skipped: "avifenc not on PATH, skipped"}, nil
	}

	tmp := path + watch.TempSuffix
	defer os.Remove(tmp)

	if err := runCommand(bin, "-q", strconv.Itoa(quality), path, tmp); err != nil {
		return result{}, fmt.Errorf("avifenc: %w", err)
	}
	return commitFile(path, info, "avifenc", tmp)
}

// commitBytes replaces path with encoded when that is a strict win. The
// bytes go through a temp file the watcher is blind to, so the rename never
// re-triggers processing.
func commitBytes(path string, info os.FileInfo, tool string, encoded []byte) (result, error) {
	final := int64(len(encoded))
	if final == 0 || final >= info.Size() {
		return result{tool: tool, final: info.Size()}, nil
	}

	tmp := path + watch.TempSuffix
	if err := os.WriteFile(tmp, encoded, info.Mode().Perm()); err != nil {
		return result{}, err
	}
	if err := replace(tmp, path, info); err != nil {
		return result{}, err
	}
	return result{tool: tool, final: final, replaced: true}, nil
}

// commitFile promotes a tool-written temp file over path when strictly
// smaller, and discards it otherwise.
func commitFile(path string, info os.FileInfo, tool, tmp string) (result, error) {
	st, err := os.Stat(tmp)
	if err != nil {
		return result{}, fmt.Errorf("%s produced no output: %w", tool, err)
	}
	if st.Size() == 0 || st.Size() >= info.Size() {
		return result{tool: tool, final: info.Size()}, nil
	}
	if err := replace(tmp, path, info); err != nil {
		return result{}, err
	}
	return result{tool: tool, final: st.Size(), replaced: true}, nil
}

func replace(tmp, path string, info os.FileInfo) error {
	if err := os.Chmod(tmp, info.Mode().Perm()); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (c *Compressor) hasTool(name string) bool {
	bin, err := c.look(name)
	return err == nil && bin != ""
}

func runCommand(bin string, args ...string) error {
	cmd := exec.Command(bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := lastLine(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func byteSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

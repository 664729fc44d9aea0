package preview

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/canvas"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/customization"
)

const defaultRasterTimeout = 30 * time.Second

// ChromeConfig configures a ChromeRasterizer.
type ChromeConfig struct {
	// ExecPath is the Chrome or Chromium binary. Empty lets chromedp search.
	ExecPath string
	Timeout  time.Duration
	Logger   *zap.Logger
}

// ChromeRasterizer renders the composed SVG to PNG in headless Chrome.
type ChromeRasterizer struct {
	composer *SVGComposer
	execPath string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewChromeRasterizer wraps composer with a PNG rasterisation step.
func NewChromeRasterizer(composer *SVGComposer, cfg ChromeConfig) *ChromeRasterizer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRasterTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromeRasterizer{composer: composer, execPath: cfg.ExecPath, timeout: timeout, logger: logger}
}

// Render implements Renderer.
func (r *ChromeRasterizer) Render(ctx context.Context, graph *canvas.Graph, record customization.Record) (Image, error) {
	document, err := r.composer.Compose(ctx, graph, record)
	if err != nil {
		return Image{}, err
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.NoSandbox)
	if r.execPath != "" {
		opts = append(opts, chromedp.ExecPath(r.execPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctxTimeout, opts...)
	defer allocCancel()
	chromedpCtx, chromedpCancel := chromedp.NewContext(allocCtx)
	defer chromedpCancel()

	width, height := r.composer.Size()
	source := "data:" + mediaTypeSVG + ";base64," + base64.StdEncoding.EncodeToString(document)

	var png []byte
	err = chromedp.Run(chromedpCtx,
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(source),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var captureErr error
			png, captureErr = page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatPng).
				WithFromSurface(true).
				Do(ctx)
			return captureErr
		}),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Image{}, ctxErr
		}
		r.logger.Warn("preview rasterisation failed", zap.Error(err))
		return Image{}, fmt.Errorf("preview: rasterise: %w", err)
	}
	return Image{Bytes: png, ContentType: mediaTypePNG}, nil
}

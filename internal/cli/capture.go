package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shehryarbajwa/pagestitch/internal/app"
	"github.com/shehryarbajwa/pagestitch/internal/config"
	"github.com/shehryarbajwa/pagestitch/pkg/models"
)

// startApp is swapped in tests
var startApp = app.Start

type captureFlags struct {
	out          string
	mode         string
	width        int
	height       int
	endpoint     string
	apiKey       string
	categoryID   string
	categoryName string
	note         string
}

func newCaptureCmd() *cobra.Command {
	var f captureFlags

	cmd := &cobra.Command{
		Use:   "capture <url>",
		Short: "Capture a page and write it to disk or send it to an endpoint",
		Example: `  # Stitch a whole page into page.jpg
  stitch capture https://example.com/article

  # Only the visible viewport, at a phone-ish size
  stitch capture https://example.com --mode visible-area --width 390 --height 844 -o phone.jpg

  # Send to a category endpoint instead of writing a file
  stitch capture https://example.com --endpoint https://hooks.example.com/in --api-key k --category docs`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := parseCaptureMode(f.mode)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if f.width > 0 {
				cfg.ViewportWidth = f.width
			}
			if f.height > 0 {
				cfg.ViewportHeight = f.height
			}
			req := models.CaptureRequest{
				Mode:         mode,
				CategoryID:   f.categoryID,
				CategoryName: f.categoryName,
				Endpoint:     f.endpoint,
				APIKey:       f.apiKey,
				Context:      f.note,
			}
			return runCapture(cmd, cfg, args[0], req, f.out)
		},
	}

	cmd.Flags().StringVarP(&f.out, "out", "o", "page.jpg", "File to write the image to")
	cmd.Flags().StringVarP(&f.mode, "mode", "m", string(models.ModeFullPage), "full-page or visible-area")
	cmd.Flags().IntVar(&f.width, "width", 0, "Viewport width in CSS pixels (default VIEWPORT_WIDTH)")
	cmd.Flags().IntVar(&f.height, "height", 0, "Viewport height in CSS pixels (default VIEWPORT_HEIGHT)")
	cmd.Flags().StringVar(&f.endpoint, "endpoint", "", "Deliver the capture to this URL instead of writing a file")
	cmd.Flags().StringVar(&f.apiKey, "api-key", "", "API key appended to the endpoint")
	cmd.Flags().StringVar(&f.categoryID, "category", "", "Category ID sent with the capture")
	cmd.Flags().StringVar(&f.categoryName, "category-name", "", "Category name recorded in history")
	cmd.Flags().StringVar(&f.note, "context", "", "Free-form note sent with the capture")

	return cmd
}

func parseCaptureMode(s string) (models.CaptureMode, error) {
	switch models.CaptureMode(s) {
	case models.ModeFullPage, models.ModeVisibleArea:
		return models.CaptureMode(s), nil
	default:
		return "", fmt.Errorf("unknown capture mode %q (want %s or %s)", s, models.ModeFullPage, models.ModeVisibleArea)
	}
}

type closer interface {
	Close(ctx context.Context) error
}

// release shuts the pipeline down with its own deadline so an interrupted
// command still closes Chrome.
func release(ctx context.Context, c closer) {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := c.Close(closeCtx); err != nil {
		log.Printf("⚠️  Failed to release Chrome: %v", err)
	}
}

func runCapture(cmd *cobra.Command, cfg config.Config, url string, req models.CaptureRequest, out string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	pipeline, err := startApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer release(ctx, pipeline)

	tab, err := pipeline.Tabs.Open(ctx, models.OpenTabRequest{URL: url, Width: cfg.ViewportWidth, Height: cfg.ViewportHeight})
	if err != nil {
		return fmt.Errorf("open %s: %w", url, err)
	}
	cmd.Println(dimStyle.Render(fmt.Sprintf("Opened %q", tab.Title)))

	res, err := pipeline.Capture.Capture(ctx, tab.ID, req)
	if err != nil {
		return err
	}

	if req.Endpoint != "" {
		if res.Delivery != nil && res.Delivery.OK {
			cmd.Println(okStyle.Render(fmt.Sprintf("Sent %s (%d bytes), endpoint answered %d", res.Mode, res.SizeBytes, res.Delivery.Status)))
			return nil
		}
		status := 0
		if res.Delivery != nil {
			status = res.Delivery.Status
		}
		return fmt.Errorf("delivery failed with status %d", status)
	}

	raw, err := base64.StdEncoding.DecodeString(res.Image)
	if err != nil {
		return fmt.Errorf("decode capture: %w", err)
	}
	if err := os.WriteFile(out, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	cmd.Println(okStyle.Render(fmt.Sprintf("Wrote %s (%s, %d bytes)", out, res.Mode, len(raw))))
	return nil
}

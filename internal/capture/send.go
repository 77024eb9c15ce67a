package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/shehryarbajwa/pagestitch/pkg/models"
)

const defaultFileType = "application/octet-stream"

// ErrInvalidRequest marks a send the caller must fix before retrying.
var ErrInvalidRequest = errors.New("invalid request")

// Upload sends a caller-supplied file to the category endpoint, tagged with
// the tab's title. Any failure is recorded in history.
func (s *Service) Upload(ctx context.Context, tabID string, req models.UploadRequest) (Result, error) {
	if err := validateUpload(&req); err != nil {
		return Result{}, err
	}

	res := s.result(tabID, "", "")
	payload := models.DeliveryPayload{
		CategoryID: req.CategoryID,
		Context:    req.Context,
		Title:      res.Tab.Title,
		CapturedAt: res.CapturedAt,
		File: models.DeliveryFile{
			Base64Data: req.Base64Data,
			Name:       req.FileName,
			Type:       req.FileType,
			SizeBytes:  req.SizeBytes,
		},
	}
	res.SizeBytes = req.SizeBytes
	if err := s.deliver(ctx, req.Target, payload, &res); err != nil {
		return Result{}, err
	}
	return res, nil
}

// SendMessage sends a text note about the tab, with no image.
func (s *Service) SendMessage(ctx context.Context, tabID string, req models.MessageRequest) (Result, error) {
	req.Message = strings.TrimSpace(req.Message)
	switch {
	case req.Endpoint == "":
		return Result{}, fmt.Errorf("%w: endpoint is required", ErrInvalidRequest)
	case req.Message == "":
		return Result{}, fmt.Errorf("%w: message is required", ErrInvalidRequest)
	}

	res := s.result(tabID, "", "")
	payload := models.MessagePayload{
		CategoryID: req.CategoryID,
		URL:        res.Tab.URL,
		Title:      res.Tab.Title,
		CapturedAt: res.CapturedAt,
		Message:    req.Message,
	}
	if err := s.deliver(ctx, req.Target, payload, &res); err != nil {
		return Result{}, err
	}
	return res, nil
}

func validateUpload(req *models.UploadRequest) error {
	switch {
	case req.Endpoint == "":
		return fmt.Errorf("%w: endpoint is required", ErrInvalidRequest)
	case req.FileName == "":
		return fmt.Errorf("%w: fileName is required", ErrInvalidRequest)
	case req.Base64Data == "":
		return fmt.Errorf("%w: base64Data is required", ErrInvalidRequest)
	}
	raw, err := base64.StdEncoding.DecodeString(req.Base64Data)
	if err != nil {
		return fmt.Errorf("%w: base64Data: %v", ErrInvalidRequest, err)
	}
	if req.FileType == "" {
		req.FileType = defaultFileType
	}
	if req.SizeBytes <= 0 {
		req.SizeBytes = len(raw)
	}
	return nil
}

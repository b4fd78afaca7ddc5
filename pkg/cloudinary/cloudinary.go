package cloudinary

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/cloudinary/cloudinary-go/v2/config"
)

// Attachment kinds accepted for chat uploads.
const (
	KindImage = "image"
	KindVideo = "video"
)

// Client is the upload capability used for chat attachments.
type Client interface {
	UploadAttachment(ctx context.Context, file io.Reader, kind, folder, publicID string) (*Attachment, error)
	Delete(ctx context.Context, kind, publicID string) error
}

type Attachment struct {
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url"`
	PublicID     string `json:"public_id"`
	Kind         string `json:"kind"`
}

// Eager transformations applied at upload time.
const (
	imageEager = "q_auto,f_auto,w_1080,c_limit"
	videoEager = "q_auto:low,f_auto,w_720"
)

var eagerAsyncFalse = false

type clientImpl struct {
	cloudName string
	uploader  *uploader.API
}

// KindForContentType maps a MIME type to an attachment kind, or "" when
// the type is not accepted.
func KindForContentType(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return KindImage
	case strings.HasPrefix(contentType, "video/"):
		return KindVideo
	}
	return ""
}

func (c *clientImpl) UploadAttachment(ctx context.Context, file io.Reader, kind, folder, publicID string) (*Attachment, error) {
	params := uploader.UploadParams{
		Folder:     folder,
		PublicID:   publicID,
		EagerAsync: &eagerAsyncFalse,
	}
	switch kind {
	case KindImage:
		params.Eager = imageEager
	case KindVideo:
		params.ResourceType = "video"
		params.Eager = videoEager
	default:
		return nil, fmt.Errorf("unsupported attachment kind %q", kind)
	}
	result, err := c.uploader.Upload(ctx, file, params)
	if err != nil {
		return nil, err
	}
	if result.SecureURL == "" {
		return nil, fmt.Errorf("cloudinary: upload returned no url")
	}
	att := &Attachment{URL: result.SecureURL, PublicID: result.PublicID, Kind: kind}
	if len(result.Eager) > 0 {
		att.ThumbnailURL = result.Eager[0].SecureURL
	}
	if att.ThumbnailURL == "" && kind == KindVideo {
		att.ThumbnailURL = fmt.Sprintf("https://res.cloudinary.com/%s/video/upload/so_0/%s.jpg", c.cloudName, result.PublicID)
	}
	return att, nil
}

func (c *clientImpl) Delete(ctx context.Context, kind, publicID string) error {
	params := uploader.DestroyParams{PublicID: publicID}
	if kind == KindVideo {
		params.ResourceType = "video"
	}
	_, err := c.uploader.Destroy(ctx, params)
	return err
}

// ChatFolder is the folder attachments for a conversation are stored under.
func ChatFolder(root string, conversationID uint) string {
	return path.Join(root, "chat", fmt.Sprintf("%d", conversationID))
}

// NewClientFromParams builds a Client from Cloudinary cloud name, API key, and secret.
func NewClientFromParams(cloudName, apiKey, apiSecret string) (Client, error) {
	cfg, err := config.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, err
	}
	up, err := uploader.NewWithConfiguration(cfg)
	if err != nil {
		return nil, err
	}
	return &clientImpl{cloudName: cloudName, uploader: up}, nil
}

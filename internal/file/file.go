package file

import (
	"context"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// Uploader is implemented by the Cloudinary-backed FileUploader; handlers
// depend on the interface so tests can stand in a fake.
type Uploader interface {
	UploadFile(fileName string) (string, error)
}

type FileUploader struct {
	cloud_name string
	api_key    string
	api_secret string
}

func New(cloud_name, api_key, api_secret string) *FileUploader {
	return &FileUploader{
		cloud_name: cloud_name,
		api_key:    api_key,
		api_secret: api_secret,
	}
}

// UploadFile pushes a local file to document storage and returns the hosted
// URL. Only the URL is persisted; the bytes stay with the storage provider.
func (f *FileUploader) UploadFile(fileName string) (string, error) {
	cld, err := cloudinary.NewFromParams(f.cloud_name, f.api_key, f.api_secret)
	if err != nil {
		return "", err
	}

	ctx := context.Background()
	uploadResult, err := cld.Upload.Upload(ctx, fileName, uploader.UploadParams{})
	if err != nil {
		return "", fmt.Errorf("uploading document: %w", err)
	}

	return uploadResult.SecureURL, nil
}

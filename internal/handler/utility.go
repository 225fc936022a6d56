package handler

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/cradoe/lumenbank/internal/errHandler"
	"github.com/cradoe/lumenbank/internal/file"
	"github.com/cradoe/lumenbank/internal/response"
)

type UtilityHandler struct {
	FileUploader file.Uploader
	ErrHandler   *errHandler.ErrorHandler
}

func NewUtilityHandler(handler *UtilityHandler) *UtilityHandler {
	return handler
}

// HandleUploadFile pushes an uploaded document to cloud storage and returns
// the hosted URL for use in a follow-up request.
func (h *UtilityHandler) HandleUploadFile(w http.ResponseWriter, r *http.Request) {
	err := r.ParseMultipartForm(10 << 20) // 10 MB
	if err != nil {
		message := errors.New("invalid request data")
		h.ErrHandler.BadRequest(w, r, message)
		return
	}

	uploaded, header, err := r.FormFile("file")
	if err != nil {
		message := errors.New("error retrieving the file")
		h.ErrHandler.BadRequest(w, r, message)
		return
	}
	defer uploaded.Close()

	fileExtension := filepath.Ext(header.Filename)

	tempFile, err := os.CreateTemp("", fmt.Sprintf("upload-*%s", fileExtension))
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}
	defer tempFile.Close()
	defer os.Remove(tempFile.Name())

	_, err = tempFile.ReadFrom(uploaded)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	fileURL, err := h.FileUploader.UploadFile(tempFile.Name())
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	message := "File uploaded successfully"
	data := map[string]any{"url": fileURL}

	err = response.JSONOkResponse(w, data, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

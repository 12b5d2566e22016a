// Package ingest turns uploaded chart files into base64 payloads and
// displayable preview references.
package ingest

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"chartsense/backend-go/internal/models"
)

var (
	ErrNoFile        = errors.New("no file provided")
	ErrNotImage      = errors.New("dropped file is not an image")
	ErrTooLarge      = errors.New("file exceeds upload limit")
	ErrProcessImages = errors.New("failed to process images")
	ErrMalformedURL  = errors.New("malformed data url")
)

// Source tells how the file reached us. Drops are filtered by media type,
// picker selections are not (the picker already restricts to images).
type Source string

const (
	SourcePicker Source = "picker"
	SourceDrop   Source = "drop"
)

// Image is an ingested file before it is owned by a slot or a chat turn.
type Image struct {
	Data      string
	MediaType string
	Preview   string
	Size      int
}

func (i Image) Uploaded() models.UploadedImage {
	return models.UploadedImage{Data: i.Data, MediaType: i.MediaType, Preview: i.Preview, Size: i.Size}
}

type Ingestor struct {
	previews *Previews
	maxBytes int64
}

func NewIngestor(previews *Previews, maxBytes int64) *Ingestor {
	return &Ingestor{previews: previews, maxBytes: maxBytes}
}

func (in *Ingestor) Previews() *Previews { return in.previews }

// FromReader reads raw file bytes. An empty body is ErrNoFile.
func (in *Ingestor) FromReader(r io.Reader, mediaType string, src Source) (Image, error) {
	if r == nil {
		return Image{}, ErrNoFile
	}
	limit := in.maxBytes
	if limit <= 0 {
		limit = 20 << 20
	}
	raw, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return Image{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(raw)) > limit {
		return Image{}, ErrTooLarge
	}
	return in.fromBytes(raw, mediaType, src)
}

// FromDataURL accepts "data:<type>;base64,<payload>" and keeps the payload
// after the comma as the encoded image.
func (in *Ingestor) FromDataURL(dataURL string, src Source) (Image, error) {
	dataURL = strings.TrimSpace(dataURL)
	if dataURL == "" {
		return Image{}, ErrNoFile
	}
	header, payload, ok := strings.Cut(dataURL, ",")
	if !ok || !strings.HasPrefix(header, "data:") {
		return Image{}, ErrMalformedURL
	}
	mediaType := strings.TrimPrefix(header, "data:")
	mediaType, _, _ = strings.Cut(mediaType, ";")
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	if in.maxBytes > 0 && int64(len(raw)) > in.maxBytes {
		return Image{}, ErrTooLarge
	}
	return in.fromBytes(raw, mediaType, src)
}

func (in *Ingestor) fromBytes(raw []byte, mediaType string, src Source) (Image, error) {
	if len(raw) == 0 {
		return Image{}, ErrNoFile
	}
	mediaType = strings.TrimSpace(mediaType)
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = http.DetectContentType(raw)
		mediaType, _, _ = strings.Cut(mediaType, ";")
	}
	if src == SourceDrop && !strings.HasPrefix(mediaType, "image/") {
		return Image{}, ErrNotImage
	}
	ref := in.previews.Put(raw, mediaType)
	return Image{
		Data:      base64.StdEncoding.EncodeToString(raw),
		MediaType: mediaType,
		Preview:   ref,
		Size:      len(raw),
	}, nil
}

// Attachment is a chat file that has not been read yet.
type Attachment struct {
	Name      string
	MediaType string
	Open      func() (io.ReadCloser, error)
}

// EncodeAll reads every attachment concurrently and waits for all of them.
// A single failure fails the whole batch; previews already created by the
// batch are released before returning.
func (in *Ingestor) EncodeAll(ctx context.Context, atts []Attachment) ([]Image, error) {
	out := make([]Image, len(atts))
	errs := make([]error, len(atts))

	var wg sync.WaitGroup
	for i, att := range atts {
		wg.Add(1)
		go func(i int, att Attachment) {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			if att.Open == nil {
				errs[i] = ErrNoFile
				return
			}
			rc, err := att.Open()
			if err != nil {
				errs[i] = err
				return
			}
			defer rc.Close()
			img, err := in.FromReader(rc, att.MediaType, SourcePicker)
			if err != nil {
				errs[i] = err
				return
			}
			out[i] = img
		}(i, att)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		for _, img := range out {
			if img.Preview != "" {
				in.previews.Release(img.Preview)
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrProcessImages, err)
	}
	return out, nil
}

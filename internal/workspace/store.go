package workspace

import (
	"fmt"
	"strings"
	"sync"

	"chartsense/backend-go/internal/ingest"
	"chartsense/backend-go/internal/models"
)

// MissingError lists the mandatory slots that are still empty.
type MissingError struct {
	Missing []models.Timeframe
}

func (e *MissingError) Error() string {
	labels := make([]string, 0, len(e.Missing))
	for _, tf := range e.Missing {
		labels = append(labels, tf.ShortLabel())
	}
	return fmt.Sprintf("Required charts missing: %s. Please upload them to proceed with the Top-Down analysis.", strings.Join(labels, ", "))
}

// Store holds at most one image per timeframe slot. Every upload or clear
// bumps the generation.
type Store struct {
	mu          sync.Mutex
	previews    *ingest.Previews
	slots       map[models.Timeframe]models.UploadedImage
	active      models.Timeframe
	uploadError string
	generation  uint64
}

func NewStore(previews *ingest.Previews) *Store {
	return &Store{
		previews: previews,
		slots:    make(map[models.Timeframe]models.UploadedImage),
		active:   models.TF1H,
	}
}

// SetActive targets subsequent uploads and clears at tf and drops any
// pending upload error.
func (s *Store) SetActive(tf models.Timeframe) error {
	if !tf.Valid() {
		return fmt.Errorf("unknown timeframe %q", tf)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = tf
	s.uploadError = ""
	return nil
}

func (s *Store) Active() models.Timeframe {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Store) SetUploadError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadError = msg
}

func (s *Store) UploadError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploadError
}

// Upload replaces the image held by tf and releases the superseded preview.
func (s *Store) Upload(tf models.Timeframe, img models.UploadedImage) (uint64, error) {
	if !tf.Valid() {
		return 0, fmt.Errorf("unknown timeframe %q", tf)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.slots[tf]; ok && old.Preview != img.Preview {
		s.release(old)
	}
	s.slots[tf] = img
	s.generation++
	return s.generation, nil
}

// Clear empties tf. It counts as a mutation even when the slot was empty.
func (s *Store) Clear(tf models.Timeframe) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.slots[tf]; ok {
		s.release(old)
		delete(s.slots, tf)
	}
	s.uploadError = ""
	s.generation++
	return s.generation
}

func (s *Store) Get(tf models.Timeframe) (models.UploadedImage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.slots[tf]
	return img, ok
}

// Images returns a copy of the populated slots.
func (s *Store) Images() map[models.Timeframe]models.UploadedImage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[models.Timeframe]models.UploadedImage, len(s.slots))
	for tf, img := range s.slots {
		out[tf] = img
	}
	return out
}

// Missing returns the empty mandatory slots in coarse-to-fine order.
func (s *Store) Missing() []models.Timeframe {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Timeframe
	for _, tf := range models.AllTimeframes {
		if !tf.Required() {
			continue
		}
		if _, ok := s.slots[tf]; !ok {
			out = append(out, tf)
		}
	}
	return out
}

// ValidateCompleteness is Missing wrapped as an error.
func (s *Store) ValidateCompleteness() error {
	if missing := s.Missing(); len(missing) > 0 {
		return &MissingError{Missing: missing}
	}
	return nil
}

func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// ReleaseAll drops every image and its preview.
func (s *Store) ReleaseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tf, img := range s.slots {
		s.release(img)
		delete(s.slots, tf)
	}
	s.generation++
}

func (s *Store) release(img models.UploadedImage) {
	if s.previews != nil && img.Preview != "" {
		s.previews.Release(img.Preview)
	}
}

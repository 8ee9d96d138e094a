package database

import (
	"context"
	"sort"
	"sync"

	"github.com/jo-hoe/gopicture/internal/picture"
)

// MemoryDatabase is a DatabaseService powered by a map, to be used for
// testing or ephemeral deployments.
type MemoryDatabase struct {
	mu       sync.RWMutex
	pictures map[string]*picture.Picture
}

func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{
		pictures: make(map[string]*picture.Picture),
	}
}

func (s *MemoryDatabase) CreateDatabase() error { return nil }
func (s *MemoryDatabase) DoesDatabaseExist() bool { return true }
func (s *MemoryDatabase) Close() error            { return nil }

func (s *MemoryDatabase) CreatePicture(_ context.Context, p *picture.Picture) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pictures[p.Filename()]; ok {
		return ErrExists
	}
	s.pictures[p.Filename()] = clonePicture(p)
	return nil
}

func (s *MemoryDatabase) ReplacePicture(_ context.Context, p *picture.Picture) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pictures[p.Filename()]; !ok {
		return ErrNotFound
	}
	s.pictures[p.Filename()] = clonePicture(p)
	return nil
}

func (s *MemoryDatabase) GetPicture(_ context.Context, name, ext string) (*picture.Picture, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pictures[name+"."+ext]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePicture(p), nil
}

func (s *MemoryDatabase) GetPictureByName(_ context.Context, name string) (*picture.Picture, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *picture.Picture
	for _, p := range s.pictures {
		if p.Name != name {
			continue
		}
		if latest == nil || p.UpdatedAt.After(latest.UpdatedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return clonePicture(latest), nil
}

func (s *MemoryDatabase) GetPictures(_ context.Context) ([]*picture.Picture, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	filenames := make([]string, 0, len(s.pictures))
	for filename := range s.pictures {
		filenames = append(filenames, filename)
	}
	sort.Strings(filenames)

	pictures := make([]*picture.Picture, 0, len(filenames))
	for _, filename := range filenames {
		pictures = append(pictures, clonePicture(s.pictures[filename]))
	}
	return pictures, nil
}

func (s *MemoryDatabase) DeletePicture(_ context.Context, name, ext string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pictures[name+"."+ext]; !ok {
		return ErrNotFound
	}
	delete(s.pictures, name+"."+ext)
	return nil
}

func clonePicture(p *picture.Picture) *picture.Picture {
	c := *p
	c.Source = append([]byte(nil), p.Source...)
	c.Thumb = append([]byte(nil), p.Thumb...)
	c.Default = append([]byte(nil), p.Default...)
	return &c
}

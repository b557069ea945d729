package service

import (
	"context"
	"log"

	"github.com/wgoossens/trackside/api"
	"github.com/wgoossens/trackside/model"
)

type ProfileSource interface {
	GetProfile(ctx context.Context) (*api.RawProfile, error)
}

type ProfileRepo interface {
	SaveProfile(profile *model.Profile) error
	GetProfile() (*model.Profile, error)
}

// ProfileService serves the user profile, preferring the gateway and falling
// back to the cached copy when offline or logged out.
type ProfileService struct {
	repo   ProfileRepo
	source ProfileSource
}

func NewProfileService(repo ProfileRepo, source ProfileSource) *ProfileService {
	return &ProfileService{repo: repo, source: source}
}

// Profile may return (nil, nil) when there is no session and nothing cached.
func (s *ProfileService) Profile(ctx context.Context) (*model.Profile, error) {
	raw, err := s.source.GetProfile(ctx)
	if err != nil {
		log.Printf("Profile fetch failed, using cached copy: %s", err.Error())
		return s.repo.GetProfile()
	}
	if raw == nil {
		// Logged out; the cache is the best we have.
		return s.repo.GetProfile()
	}

	profile := &model.Profile{
		Id:           raw.Id,
		Name:         raw.Name,
		ChestNumbers: raw.ChestNumbers,
		FaceConsent:  raw.FaceConsent,
	}
	if err := s.repo.SaveProfile(profile); err != nil {
		log.Printf("Could not cache profile: %s", err.Error())
	}
	return profile, nil
}

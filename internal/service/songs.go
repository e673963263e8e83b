package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/IstFranco/utn-events/internal/apperr"
	"github.com/IstFranco/utn-events/internal/catalog"
	"github.com/IstFranco/utn-events/internal/model"
	"github.com/IstFranco/utn-events/internal/queue"
	"github.com/IstFranco/utn-events/internal/store"
)

// SongInput describes a song to add.  Genre and ExternalID are optional.
type SongInput struct {
	Title      string
	Artist     string
	Genre      *string
	ExternalID *string
}

// SongPatch lists the fields to change; nil fields are kept.
type SongPatch struct {
	Title   *string
	Artist  *string
	Genre   *string
	EventID *uint64
}

// checkGenre applies the compatibility rule: an explicit genre must equal
// the event's genre ignoring case and surrounding space.  The returned
// value is the event's own spelling, which is what gets stored.
func checkGenre(ev *model.Event, genre *string) (string, error) {
	if genre != nil && strings.TrimSpace(*genre) != "" && !model.SameGenre(*genre, ev.Genre) {
		return "", apperr.GenreMismatch(ev.Genre, strings.TrimSpace(*genre))
	}
	return ev.Genre, nil
}

func trimmedPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}

// CreateSong adds a song to the event's playlist.
func (s *VotingService) CreateSong(ctx context.Context, eventID uint64, in SongInput) (*model.Song, error) {
	ev, err := s.activeEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	title, artist := strings.TrimSpace(in.Title), strings.TrimSpace(in.Artist)
	if title == "" || artist == "" {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "title and artist are required")
	}
	genre, err := checkGenre(ev, in.Genre)
	if err != nil {
		return nil, err
	}
	ext := trimmedPtr(in.ExternalID)
	if err := s.ensureNotAdded(ctx, eventID, ext); err != nil {
		return nil, err
	}
	return s.insertSong(ctx, &model.Song{EventID: eventID, Title: title, Artist: artist, ExternalID: ext, Genre: genre})
}

// CreateSongFromCatalog adds the catalog track externalID with the
// title and artist the catalog reports.  Lookup failures are reported as
// upstream errors; nothing is stored with empty metadata.
func (s *VotingService) CreateSongFromCatalog(ctx context.Context, eventID uint64, externalID string, genre *string) (*model.Song, error) {
	ev, err := s.activeEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	g, err := checkGenre(ev, genre)
	if err != nil {
		return nil, err
	}
	ext := trimmedPtr(&externalID)
	if ext == nil {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "external_id is required")
	}
	// Checked before the network call so a known duplicate costs nothing.
	if err := s.ensureNotAdded(ctx, eventID, ext); err != nil {
		return nil, err
	}

	track, err := s.ResolveTrack(ctx, *ext)
	if err != nil {
		return nil, err
	}
	return s.insertSong(ctx, &model.Song{EventID: eventID, Title: track.Title, Artist: track.Artist, ExternalID: ext, Genre: g})
}

// ResolveTrack looks a track up in the catalog.
func (s *VotingService) ResolveTrack(ctx context.Context, externalID string) (*catalog.Track, error) {
	if s.catalog == nil {
		return nil, apperr.Upstream("catalog lookup is not configured", catalog.ErrDisabled)
	}
	track, err := s.catalog.ResolveTrack(ctx, externalID)
	switch {
	case errors.Is(err, catalog.ErrTrackNotFound):
		return nil, apperr.Upstream("track not found in catalog", err)
	case err != nil:
		s.log.Warn("catalog lookup failed", "external_id", externalID, "err", err)
		return nil, apperr.Upstream("catalog lookup failed", err)
	case strings.TrimSpace(track.Title) == "" || strings.TrimSpace(track.Artist) == "":
		return nil, apperr.Upstream("catalog returned incomplete metadata", nil)
	}
	return &track, nil
}

func (s *VotingService) ensureNotAdded(ctx context.Context, eventID uint64, ext *string) error {
	if ext == nil {
		return nil
	}
	existing, err := s.songs.FindSongByExternalID(ctx, eventID, *ext)
	switch {
	case err == nil:
		return apperr.DuplicateExternalID(existing)
	case errors.Is(err, store.ErrNotFound):
		return nil
	}
	return s.internal("find song", err)
}

func (s *VotingService) insertSong(ctx context.Context, song *model.Song) (*model.Song, error) {
	if err := s.songs.CreateSong(ctx, song); err != nil {
		if errors.Is(err, store.ErrDuplicate) && song.ExternalID != nil {
			// Lost a race with a concurrent add of the same track.
			if dupErr := s.ensureNotAdded(ctx, song.EventID, song.ExternalID); dupErr != nil {
				return nil, dupErr
			}
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.EventNotFound()
		}
		return nil, s.internal("create song", err)
	}
	ext := ""
	if song.ExternalID != nil {
		ext = *song.ExternalID
	}
	s.emit(ctx, queue.SongCreated, strconv.FormatUint(song.EventID, 10), queue.SongEvent{
		SongID:     song.ID,
		EventID:    song.EventID,
		Title:      song.Title,
		Artist:     song.Artist,
		ExternalID: ext,
	})
	return song, nil
}

// UpdateSong applies patch.  Changing the genre or moving the song to
// another event re-runs the genre check against the target event.
func (s *VotingService) UpdateSong(ctx context.Context, songID uint64, patch SongPatch) (*model.Song, error) {
	song, err := s.song(ctx, songID)
	if err != nil {
		return nil, err
	}
	if patch.Title != nil {
		if song.Title = strings.TrimSpace(*patch.Title); song.Title == "" {
			return nil, apperr.Validation(apperr.CodeInvalidInput, "title must not be empty")
		}
	}
	if patch.Artist != nil {
		if song.Artist = strings.TrimSpace(*patch.Artist); song.Artist == "" {
			return nil, apperr.Validation(apperr.CodeInvalidInput, "artist must not be empty")
		}
	}

	moving := patch.EventID != nil && *patch.EventID != song.EventID
	if moving || trimmedPtr(patch.Genre) != nil {
		target := song.EventID
		if moving {
			target = *patch.EventID
		}
		ev, err := s.activeEvent(ctx, target)
		if err != nil {
			return nil, err
		}
		genre := patch.Genre
		if trimmedPtr(genre) == nil {
			// Moving without a new genre: the current one must fit.
			genre = &song.Genre
		}
		if song.Genre, err = checkGenre(ev, genre); err != nil {
			return nil, err
		}
		song.EventID = target
	}

	if err := s.songs.UpdateSong(ctx, song); err != nil {
		if errors.Is(err, store.ErrDuplicate) && song.ExternalID != nil {
			if dupErr := s.ensureNotAdded(ctx, song.EventID, song.ExternalID); dupErr != nil {
				return nil, dupErr
			}
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.SongNotFound()
		}
		return nil, s.internal("update song", err)
	}
	return song, nil
}

package service

import (
	"context"
	"errors"
	"strconv"

	"github.com/IstFranco/utn-events/internal/apperr"
	"github.com/IstFranco/utn-events/internal/model"
	"github.com/IstFranco/utn-events/internal/queue"
	"github.com/IstFranco/utn-events/internal/store"
)

// VoteResult is returned by CastVote.
type VoteResult struct {
	Vote      model.Vote `json:"vote"`
	UpCount   int        `json:"up_count"`
	DownCount int        `json:"down_count"`
	Song      model.Song `json:"song"`
}

// TallyResult is returned by RemoveVote.
type TallyResult struct {
	UpCount   int        `json:"up_count"`
	DownCount int        `json:"down_count"`
	Song      model.Song `json:"song"`
}

// VotingService manages event playlists and the votes on them.  Vote
// counts are always recounted from vote rows.
type VotingService struct {
	base
	events  store.EventStore
	songs   store.SongStore
	votes   store.VoteStore
	catalog TrackResolver
}

// NewVotingService constructs a VotingService from d.
func NewVotingService(d Deps) *VotingService {
	return &VotingService{
		base:    newBase(d),
		events:  d.Events,
		songs:   d.Songs,
		votes:   d.Votes,
		catalog: d.Catalog,
	}
}

// activeEvent loads an event that is visible to attendees.
func (s *VotingService) activeEvent(ctx context.Context, id uint64) (*model.Event, error) {
	ev, err := s.events.GetEvent(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !ev.IsActive) {
		return nil, apperr.EventNotFound()
	}
	if err != nil {
		return nil, s.internal("load event", err)
	}
	return ev, nil
}

func (s *VotingService) song(ctx context.Context, id uint64) (*model.Song, error) {
	song, err := s.songs.GetSong(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.SongNotFound()
	}
	if err != nil {
		return nil, s.internal("load song", err)
	}
	return song, nil
}

// CastVote records the voter's vote on the song, replacing any earlier
// vote.  Casting the same kind twice leaves a single vote of that kind.
func (s *VotingService) CastVote(ctx context.Context, songID uint64, voter Voter, kindName string) (*VoteResult, error) {
	kind, ok := model.ParseVoteKind(kindName)
	if !ok {
		return nil, apperr.Validation(apperr.CodeInvalidVoteKind, "kind must be one of: up, down")
	}
	song, err := s.song(ctx, songID)
	if err != nil {
		return nil, err
	}
	if _, err := s.activeEvent(ctx, song.EventID); err != nil {
		return nil, err
	}

	v := model.Vote{SongID: songID, UserID: voter.UserID, VoterKey: voter.Key(), Kind: kind}
	if err := s.votes.UpsertVote(ctx, &v); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			if voter.UserID != nil {
				// the song was just loaded, so the token names no user
				return nil, apperr.UserNotFound()
			}
			return nil, apperr.SongNotFound()
		}
		return nil, s.internal("upsert vote", err)
	}
	tally, err := s.votes.CountVotes(ctx, songID)
	if err != nil {
		return nil, s.internal("count votes", err)
	}

	s.emit(ctx, queue.VoteCast, strconv.FormatUint(songID, 10), queue.VoteEvent{
		VoteID:    v.ID,
		SongID:    songID,
		EventID:   song.EventID,
		Kind:      string(kind),
		Anonymous: voter.Anonymous(),
		UpCount:   tally.Up,
		DownCount: tally.Down,
	})
	return &VoteResult{Vote: v, UpCount: tally.Up, DownCount: tally.Down, Song: *song}, nil
}

// RemoveVote deletes a vote owned by voter and returns the recounted
// tally of its song.
func (s *VotingService) RemoveVote(ctx context.Context, voteID uint64, voter Voter) (*TallyResult, error) {
	v, err := s.votes.GetVote(ctx, voteID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.VoteNotFound()
	}
	if err != nil {
		return nil, s.internal("load vote", err)
	}
	if v.VoterKey != voter.Key() {
		return nil, apperr.Forbidden("vote belongs to another voter")
	}

	deleted, err := s.votes.DeleteVote(ctx, voteID)
	if err != nil {
		return nil, s.internal("delete vote", err)
	}
	if !deleted {
		return nil, apperr.VoteNotFound()
	}

	song, err := s.song(ctx, v.SongID)
	if err != nil {
		return nil, err
	}
	tally, err := s.votes.CountVotes(ctx, v.SongID)
	if err != nil {
		return nil, s.internal("count votes", err)
	}
	s.emit(ctx, queue.VoteRemoved, strconv.FormatUint(v.SongID, 10), queue.VoteEvent{
		VoteID:    voteID,
		SongID:    v.SongID,
		EventID:   song.EventID,
		Anonymous: voter.Anonymous(),
		UpCount:   tally.Up,
		DownCount: tally.Down,
	})
	return &TallyResult{UpCount: tally.Up, DownCount: tally.Down, Song: *song}, nil
}

// ListSongs returns the event's songs, filtered and ranked.  When voter
// is not nil each song carries the voter's own vote.
func (s *VotingService) ListSongs(ctx context.Context, eventID uint64, f model.SongFilter, voter *Voter) ([]RankedSong, error) {
	if _, err := s.activeEvent(ctx, eventID); err != nil {
		return nil, err
	}
	songs, err := s.songs.ListSongs(ctx, eventID, f)
	if err != nil {
		return nil, s.internal("list songs", err)
	}
	tallies, err := s.votes.TalliesByEvent(ctx, eventID)
	if err != nil {
		return nil, s.internal("tally votes", err)
	}
	var mine map[uint64]model.Vote
	if voter != nil {
		if mine, err = s.votes.VotesByVoter(ctx, eventID, voter.Key()); err != nil {
			return nil, s.internal("load voter votes", err)
		}
	}
	return annotate(songs, tallies, mine), nil
}

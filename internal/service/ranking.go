package service

import (
	"sort"

	"github.com/IstFranco/utn-events/internal/model"
)

// MyVote is the caller's current vote on a song.
type MyVote struct {
	ID   uint64         `json:"id"`
	Kind model.VoteKind `json:"kind"`
}

// RankedSong is a song annotated with its live tally.
type RankedSong struct {
	model.Song
	UpCount   int     `json:"up_count"`
	DownCount int     `json:"down_count"`
	Score     int     `json:"score"`
	MyVote    *MyVote `json:"my_vote"`
}

// Rank orders songs by score, then by up votes, both descending.  Songs
// still tied keep the order they were added in, oldest first, so the
// result is deterministic.
func Rank(songs []RankedSong) {
	sort.SliceStable(songs, func(i, j int) bool {
		a, b := songs[i], songs[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.UpCount != b.UpCount {
			return a.UpCount > b.UpCount
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func annotate(songs []model.Song, tallies map[uint64]model.Tally, mine map[uint64]model.Vote) []RankedSong {
	out := make([]RankedSong, 0, len(songs))
	for _, s := range songs {
		t := tallies[s.ID]
		rs := RankedSong{Song: s, UpCount: t.Up, DownCount: t.Down, Score: t.Score()}
		if v, ok := mine[s.ID]; ok {
			rs.MyVote = &MyVote{ID: v.ID, Kind: v.Kind}
		}
		out = append(out, rs)
	}
	Rank(out)
	return out
}

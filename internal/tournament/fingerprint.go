package tournament

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Fingerprint returns a SHA-256 over the seed-determined content of the
// result. Tournament and game ids are excluded so that two runs with the
// same seed and bots fingerprint equally even when their ids were random.
func (r *Result) Fingerprint() string {
	sum := sha256.Sum256([]byte(r.canonical()))
	return hex.EncodeToString(sum[:])
}

// canonical builds a line-oriented representation with fixed float precision.
func (r *Result) canonical() string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "TOURNAMENT:%d|%d|%d\n", r.Seed, r.GamesPerRound, len(r.Rounds))

	for _, rd := range r.Rounds {
		fmt.Fprintf(&buf, "ROUND:%d|%t|%s\n", rd.Number, rd.Final, strings.Join(rd.AutoEliminated, ","))
		for _, g := range rd.Groups {
			fmt.Fprintf(&buf, "GROUP:%d|%s|%s\n", g.Index, strings.Join(g.Members, ","), g.Eliminated)
			for _, game := range g.Games {
				fmt.Fprintf(&buf, "GAME:%d|%s|%d|%s|%d,%d,%d\n",
					game.Game,
					strings.Join(game.Seats[:], ","),
					game.LandlordSeat,
					game.Winner,
					game.Scores[0], game.Scores[1], game.Scores[2],
				)
			}
			for _, d := range g.StatDeltas {
				fmt.Fprintf(&buf, "DELTA:%s|%d|%d|%d|%.9f|%.9f\n",
					d.ID, d.Stats.Games, d.Stats.Wins, d.Stats.ScoreSum, d.MuDelta, d.ConservativeDelta)
			}
		}
	}

	for _, s := range r.Standings {
		elim := "-"
		if s.EliminatedRound != nil {
			elim = fmt.Sprintf("%d", *s.EliminatedRound)
		}
		fmt.Fprintf(&buf, "STANDING:%d|%s|%.9f|%.9f|%d|%d|%s|%s\n",
			s.Rank, s.ID, s.Mu, s.Sigma, s.Stats.Games, s.Stats.Wins, elim, s.EliminationReason)
	}

	return buf.String()
}

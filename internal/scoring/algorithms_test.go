package scoring

import (
	"testing"
	"time"

	"github.com/SlpAus/flag-training-backend/internal/submission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func solves(moduleID int64, userIDs ...int64) []submission.Submission {
	subs := make([]submission.Submission, len(userIDs))
	for i, u := range userIDs {
		subs[i] = submission.Submission{
			ID:          int64(i + 1),
			UserID:      u,
			ModuleID:    moduleID,
			Valid:       true,
			SubmittedAt: t0.Add(time.Duration(i) * time.Minute),
		}
	}
	return subs
}

func TestScoreModule_RankMonotonicity(t *testing.T) {
	table := map[int]int64{0: 100, 1: 50, 2: 30, 3: 10}
	res := scoreModule(solves(1, 11, 12, 13, 14), table)

	assert.Equal(t, map[int64]int64{11: 150, 12: 130, 13: 110, 14: 100}, res.scores)
	assert.Equal(t, map[int64]int{11: 1, 12: 2, 13: 3, 14: 4}, res.ranks)
}

func TestScoreModule_EmptyTableAndNoSolves(t *testing.T) {
	res := scoreModule(solves(1, 1, 2), nil)
	assert.Equal(t, map[int64]int64{1: 0, 2: 0}, res.scores)

	res = scoreModule(nil, map[int]int64{0: 100})
	assert.Empty(t, res.scores)
}

func TestScoreModule_BonusWithoutBase(t *testing.T) {
	res := scoreModule(solves(1, 1, 2), map[int]int64{1: 25})
	assert.Equal(t, map[int64]int64{1: 25, 2: 0}, res.scores)
}

func TestScoreModule_IgnoresRepeatedUser(t *testing.T) {
	subs := solves(1, 1, 1, 2)
	res := scoreModule(subs, map[int]int64{0: 10, 1: 5, 2: 3})
	assert.Equal(t, map[int64]int{1: 1, 2: 2}, res.ranks)
	assert.Equal(t, int64(13), res.scores[2])
}

func TestBuildScoreboard(t *testing.T) {
	table := map[int]int64{0: 100, 1: 50, 2: 30, 3: 10}
	results := []moduleResult{
		scoreModule(solves(1, 1, 2, 3), table), // 1:150 2:130 3:110
		scoreModule(solves(2, 2, 1), table),    // 2:150 1:130
	}
	corrections := map[int64]int64{
		3: -10,
		9: 40, // 只有修正记录的用户也要上榜
	}

	board := buildScoreboard(results, corrections)
	require.Len(t, board, 4)

	assert.Equal(t, Entry{UserID: 1, Rank: 1, Score: 280, Medals: Medals{Gold: 1, Silver: 1}}, board[0])
	assert.Equal(t, Entry{UserID: 2, Rank: 1, Score: 280, Medals: Medals{Gold: 1, Silver: 1}}, board[1])
	assert.Equal(t, Entry{UserID: 3, Rank: 3, Score: 100, Medals: Medals{Bronze: 1}}, board[2])
	assert.Equal(t, Entry{UserID: 9, Rank: 4, Score: 40}, board[3])
}

func TestBuildScoreboard_Empty(t *testing.T) {
	assert.Empty(t, buildScoreboard(nil, nil))
}

func TestGroupByModule(t *testing.T) {
	subs := append(solves(1, 1, 2), solves(2, 3)...)
	grouped := groupByModule(subs)
	assert.Len(t, grouped[1], 2)
	assert.Len(t, grouped[2], 1)
	assert.Equal(t, int64(2), grouped[1][1].UserID)
}

package scoring

import (
	"sort"

	"github.com/SlpAus/flag-training-backend/internal/submission"
)

// moduleResult 是单个模块的计分结果
type moduleResult struct {
	scores map[int64]int64
	ranks  map[int64]int
}

// scoreModule 按提交时间顺序给每个解出者分配名次并计分。
// subs 必须已按提交时间升序排列；分数 = 基础分 + 该名次的奖励分（缺省为0）。
func scoreModule(subs []submission.Submission, table map[int]int64) moduleResult {
	res := moduleResult{
		scores: make(map[int64]int64, len(subs)),
		ranks:  make(map[int64]int, len(subs)),
	}
	base := table[BaseRank]
	rank := 0
	for _, s := range subs {
		// 唯一索引保证每个用户只有一条有效提交，这里仍然只认第一条
		if _, seen := res.ranks[s.UserID]; seen {
			continue
		}
		rank++
		res.ranks[s.UserID] = rank
		res.scores[s.UserID] = base + table[rank]
	}
	return res
}

// groupByModule 把按模块排序的有效提交切分成每个模块一段
func groupByModule(subs []submission.Submission) map[int64][]submission.Submission {
	grouped := make(map[int64][]submission.Submission)
	for _, s := range subs {
		grouped[s.ModuleID] = append(grouped[s.ModuleID], s)
	}
	return grouped
}

// buildScoreboard 汇总各模块得分与修正值，并生成排好序的排行榜。
// 按总分降序，同分按用户ID升序；同分的用户共享名次，后续名次跳过（1,2,2,4）。
func buildScoreboard(results []moduleResult, corrections map[int64]int64) []Entry {
	byUser := make(map[int64]*Entry)
	entry := func(userID int64) *Entry {
		e, ok := byUser[userID]
		if !ok {
			e = &Entry{UserID: userID}
			byUser[userID] = e
		}
		return e
	}

	for _, res := range results {
		for userID, points := range res.scores {
			entry(userID).Score += points
		}
		for userID, rank := range res.ranks {
			e := entry(userID)
			switch rank {
			case 1:
				e.Medals.Gold++
			case 2:
				e.Medals.Silver++
			case 3:
				e.Medals.Bronze++
			}
		}
	}
	for userID, delta := range corrections {
		entry(userID).Score += delta
	}

	entries := make([]Entry, 0, len(byUser))
	for _, e := range byUser {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].UserID < entries[j].UserID
	})
	for i := range entries {
		if i > 0 && entries[i].Score == entries[i-1].Score {
			entries[i].Rank = entries[i-1].Rank
		} else {
			entries[i].Rank = i + 1
		}
	}
	return entries
}

// vnrec - VNDB Recommendation Engine
// Copyright 2026 vndb-tools
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vndb-tools/vnrec

package algorithms

import "math"

// NoSimilarUser is the sentinel returned when no comparable user exists.
const NoSimilarUser = -1

// SimilarUsers recommends titles from the libraries of users whose voting
// history most resembles the target's.
//
// User affinity is ln(overlap) / (1 + rmsDiff), where overlap is the number
// of commonly voted titles and rmsDiff is the root-mean-square score
// difference normalized to the 0-1 range. More shared titles raise the
// affinity, disagreement lowers it.
type SimilarUsers struct {
	// shortlist caps how many similar users contribute votes.
	shortlist int
}

// NewSimilarUsers returns the strategy with the given similar-user shortlist
// size.
func NewSimilarUsers(shortlist int) *SimilarUsers {
	return &SimilarUsers{shortlist: shortlist}
}

// similarUser is one shortlist entry.
type similarUser struct {
	userID int
	score  float64
}

// shortlistFor ranks every other user against the target and keeps the top
// entries in descending affinity order. Users sharing no titles with the
// target are skipped.
func (s *SimilarUsers) shortlistFor(data *Dataset, userID int) []similarUser {
	target := data.Users[userID]
	list := make([]similarUser, 0, s.shortlist)

	for _, otherID := range sortedKeys(data.Users) {
		if otherID == userID {
			continue
		}

		overlap := 0
		scoreDiff := 0.0
		for titleID, score := range target {
			otherScore, ok := data.Users[otherID][titleID]
			if !ok {
				continue
			}
			overlap++
			d := float64(score - otherScore)
			scoreDiff += d * d
		}
		if overlap == 0 {
			continue
		}

		rmsDiff := math.Sqrt(scoreDiff/float64(overlap)) / 100
		affinity := math.Log(float64(overlap)) / (1 + rmsDiff)

		inserted := false
		for i := range list {
			if affinity > list[i].score {
				if len(list) == s.shortlist {
					list = list[:len(list)-1]
				}
				list = append(list, similarUser{})
				copy(list[i+1:], list[i:])
				list[i] = similarUser{userID: otherID, score: affinity}
				inserted = true
				break
			}
		}
		if !inserted && len(list) < s.shortlist {
			list = append(list, similarUser{userID: otherID, score: affinity})
		}
	}

	return list
}

// Recommend returns up to limit titles the target has not voted on, weighted
// by the affinity of the users who voted them, plus the id of the most
// similar user (NoSimilarUser when none exists).
func (s *SimilarUsers) Recommend(data *Dataset, userID, limit int) ([]Scored, int) {
	target := data.Users[userID]
	list := s.shortlistFor(data, userID)

	mostSimilar := NoSimilarUser
	if len(list) > 0 {
		mostSimilar = list[0].userID
	}

	gameScore := make(map[int]float64)
	for _, su := range list {
		for titleID, score := range data.Users[su.userID] {
			if _, voted := target[titleID]; voted {
				continue
			}
			gameScore[titleID] += float64(score) * su.score
		}
	}

	return takeTop(gameScore, limit), mostSimilar
}

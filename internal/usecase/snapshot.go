package usecase

import (
	"sort"

	"github.com/Xausdorf/outing-chat/internal/domain"
)

// BuildSnapshot projects stored rows into the viewer's snapshot.
// TotalVoters counts distinct users, so multi-select polls may sum above 100%.
func BuildSnapshot(
	poll *domain.Poll,
	options []domain.PollOption,
	votes []domain.PollVote,
	viewerID string,
	creatorName string,
) *domain.PollSnapshot {
	sorted := make([]domain.PollOption, len(options))
	copy(sorted, options)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Position < sorted[j].Position
	})

	counts := make(map[string]int, len(sorted))
	voters := make(map[string]struct{})
	mine := make(domain.OptionSet)
	for _, vote := range votes {
		counts[vote.OptionID]++
		voters[vote.UserID] = struct{}{}
		if vote.UserID == viewerID {
			mine[vote.OptionID] = struct{}{}
		}
	}

	denominator := max(1, len(voters))
	results := make([]domain.OptionResult, len(sorted))
	for i, option := range sorted {
		results[i] = domain.OptionResult{
			ID:      option.ID,
			Text:    option.Text,
			Votes:   counts[option.ID],
			Percent: float64(counts[option.ID]) / float64(denominator),
		}
	}

	return &domain.PollSnapshot{
		PollID:          poll.ID,
		Question:        poll.Question,
		Options:         results,
		MyOptionIDs:     mine,
		TotalVoters:     len(voters),
		IsOpen:          poll.Open,
		IsPinned:        poll.Pinned,
		AllowMulti:      poll.AllowMulti,
		AllowAddOptions: poll.AllowAddOptions,
		CreatedBy:       poll.CreatedBy,
		CreatedByName:   creatorName,
	}
}

package services

import "github.com/checkfox/go_lead_adapter/internal/models"

// ReconcileStatusUpdates reduces a batch of callbacks to one update per
// recipient id, keeping the one that compares greatest. Results are in order
// of each recipient's first appearance. Among equal statuses the earliest
// update is kept.
func ReconcileStatusUpdates(updates []models.StatusUpdate) []models.StatusUpdate {
	if len(updates) == 0 {
		return nil
	}

	index := make(map[string]int, len(updates))
	result := make([]models.StatusUpdate, 0, len(updates))
	for _, update := range updates {
		i, seen := index[update.RecipientID]
		if !seen {
			index[update.RecipientID] = len(result)
			result = append(result, update)
			continue
		}
		if update.Supersedes(result[i]) {
			result[i] = update
		}
	}
	return result
}

// MergeRecipientStatus returns the status to keep when incoming arrives for a
// recipient whose stored status is current, and whether it replaced it.
func MergeRecipientStatus(current, incoming models.MessageRecipient) (models.MessageRecipient, bool) {
	if models.Compare(incoming, current) > 0 {
		return incoming, true
	}
	return current, false
}

package store

import (
	"github.com/sells-group/attribution-engine/internal/model"
)

// mergeContactDocs unions loser into winner: source ids, emails, display
// name, per-source field values, match methods, and seen record kinds.
// The winner's existing values always take precedence.
func mergeContactDocs(winner, loser *model.Contact) {
	for _, sid := range loser.SourceIDs {
		if !winner.OwnsSourceID(sid.Source, sid.ExternalID) {
			winner.SourceIDs = append(winner.SourceIDs, sid)
		}
	}
	if winner.PrimaryEmail == "" {
		winner.PrimaryEmail = loser.PrimaryEmail
	} else if loser.PrimaryEmail != "" && !winner.HasEmail(loser.PrimaryEmail) {
		winner.AltEmails = append(winner.AltEmails, loser.PrimaryEmail)
	}
	for _, e := range loser.AltEmails {
		if !winner.HasEmail(e) {
			winner.AltEmails = append(winner.AltEmails, e)
		}
	}
	if winner.DisplayName == "" {
		winner.DisplayName = loser.DisplayName
	}
	for field, bySource := range loser.Fields {
		for src, v := range bySource {
			if winner.Fields == nil || winner.Fields[field] == nil || winner.Fields[field][src] == "" {
				winner.SetField(field, src, v)
			}
		}
	}
	for src, m := range loser.MatchMethods {
		if winner.MatchMethods == nil {
			winner.MatchMethods = make(map[model.Source]model.MatchMethod)
		}
		if _, ok := winner.MatchMethods[src]; !ok {
			winner.MatchMethods[src] = m
		}
	}
	for k := range loser.Kinds {
		if winner.Kinds == nil {
			winner.Kinds = make(map[model.EventKind]bool)
		}
		winner.Kinds[k] = true
	}
}

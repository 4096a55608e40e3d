package match

import (
	"context"
	"fmt"

	"organcore/pkg/domain"
)

// NewDefaultRulesEngine returns a rules engine carrying the allocation
// invariants evaluated inside every commit.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewSingleActiveEntryRule())
	engine.Register(NewSingleOpenProposalRule())
	return engine
}

// NewSingleActiveEntryRule returns the in-transaction rule enforcing at most
// one active waiting-list entry per (recipient, organ type).
func NewSingleActiveEntryRule() domain.Rule {
	return singleActiveEntryRule{}
}

type singleActiveEntryRule struct{}

func (singleActiveEntryRule) Name() string { return "single_active_entry" }

func (singleActiveEntryRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	type key struct {
		recipient string
		organType domain.OrganType
	}
	active := make(map[key][]string)
	for _, entry := range view.ListWaitingEntries() {
		if !entry.Active {
			continue
		}
		k := key{recipient: entry.RecipientID, organType: entry.OrganType}
		active[k] = append(active[k], entry.ID)
	}

	res := domain.Result{}
	for k, ids := range active {
		if len(ids) > 1 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "single_active_entry",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("recipient %s holds %d active %s entries", k.recipient, len(ids), k.organType),
				Entity:   domain.EntityWaitingListEntry,
				EntityID: ids[0],
			})
		}
	}
	return res, nil
}

// NewSingleOpenProposalRule returns the in-transaction rule enforcing at most
// one open proposal per organ.
func NewSingleOpenProposalRule() domain.Rule {
	return singleOpenProposalRule{}
}

type singleOpenProposalRule struct{}

func (singleOpenProposalRule) Name() string { return "single_open_proposal" }

func (singleOpenProposalRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	open := make(map[string][]string)
	for _, proposal := range view.ListProposals() {
		if !proposal.Status.Open() {
			continue
		}
		open[proposal.OrganID] = append(open[proposal.OrganID], proposal.ID)
	}

	res := domain.Result{}
	for organID, ids := range open {
		if len(ids) > 1 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "single_open_proposal",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("organ %s has %d open proposals", organID, len(ids)),
				Entity:   domain.EntityMatchProposal,
				EntityID: ids[0],
			})
		}
	}
	return res, nil
}

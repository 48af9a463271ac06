// Package intentgate provides in-process intent admission for Go services.
// It links directly against the gateway's internal packages: relationship
// lifecycle, trust policy, appointment windows, scoring, and the continuity
// chain run inside the caller's process with no gateway server required.
//
// Usage:
//
//	ig, err := intentgate.New(intentgate.WithLedger("/var/lib/app/ledger.db"))
//	rel, err := ig.Propose(intentgate.Proposal{
//	    Initiator:  "bank_ing",
//	    Responder:  "client_jasper",
//	    TrustLevel: 3,
//	})
//	result, err := ig.Admit(intentgate.Intent{
//	    RelationshipID: rel.ID,
//	    Intent:         "account_discussion",
//	    Protocol:       "sip_voice",
//	})
//
// External users import github.com/humotica/intentgate/sdk/go/intentgate.
package intentgate

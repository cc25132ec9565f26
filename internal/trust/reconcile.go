package trust

import (
	"context"
	"crypto/x509"
	"errors"

	"github.com/rs/zerolog/log"
)

// Outcome describes what Reconcile did.
type Outcome struct {
	// Written is set when the settings list was replaced in the store.
	Written bool
	// Settings is the list the certificate carries after the call.
	Settings Settings
}

// Reconcile makes the trust settings of cert match actions.
//
// Entries for policies that are not mentioned are left alone and keep their
// position. Entries for policies with a Remove action are dropped, entries
// for Trust and Deny get their result updated in place, and policies without
// an entry get one appended. The list is written back as a whole, once, and
// only if something changed. The Handled flag of every action reports
// whether an entry was processed or added for it.
func Reconcile(ctx context.Context, store Store, cert *x509.Certificate, actions []PolicyAction) (Outcome, error) {
	for i := range actions {
		actions[i].Handled = false
	}
	if err := validate(actions); err != nil {
		return Outcome{}, err
	}

	current, err := store.Settings(ctx, cert)
	if errors.Is(err, ErrNotFound) {
		current, err = nil, nil
	}
	if err != nil {
		return Outcome{}, NewError(KindStoreAccess, "read trust settings", err)
	}

	working := make(Settings, 0, len(current)+len(actions))
	dirty := false

	for _, entry := range current {
		policy, ok := entry.Policy()
		if !ok {
			working = append(working, entry)
			continue
		}
		pa := match(actions, policy)
		if pa == nil {
			working = append(working, entry)
			continue
		}

		if pa.Action == Remove {
			log.Debug().Str("policy", policy.String()).Msg("Removing trust setting")
			pa.Handled = true
			dirty = true
			continue
		}

		pa.Handled = true
		have, ok := entry.Result()
		want := pa.Action.Result()
		if ok && have != want {
			log.Debug().
				Str("policy", policy.String()).
				Stringer("from", have).
				Stringer("to", want).
				Msg("Updating trust setting")
			entry = entry.Clone()
			entry[KeyResult] = int64(want)
			dirty = true
		}
		working = append(working, entry)
	}

	for i := range actions {
		pa := &actions[i]
		if pa.Handled || pa.Action == Remove {
			continue
		}
		entry, err := store.NewEntry(pa.Policy, pa.Action.Result())
		if err != nil {
			return Outcome{}, NewError(KindResourceCreation, "create entry for "+pa.Policy.String(), err)
		}
		log.Debug().Str("policy", pa.Policy.String()).Stringer("result", pa.Action.Result()).Msg("Adding trust setting")
		working = append(working, entry)
		pa.Handled = true
		dirty = true
	}

	if !dirty {
		return Outcome{Settings: current}, nil
	}
	if err := store.SetSettings(ctx, cert, working); err != nil {
		return Outcome{Settings: current}, NewError(KindWriteBack, "write trust settings", err)
	}
	return Outcome{Written: true, Settings: working}, nil
}

func match(actions []PolicyAction, p Policy) *PolicyAction {
	for i := range actions {
		if actions[i].Policy.Equal(p) {
			return &actions[i]
		}
	}
	return nil
}

func validate(actions []PolicyAction) error {
	for i, pa := range actions {
		if len(pa.Policy) == 0 {
			return invalidInput("action %d has no policy", i)
		}
		if !pa.Action.valid() {
			return invalidInput("action %d: %s", i, pa.Action)
		}
		for _, prev := range actions[:i] {
			if prev.Policy.Equal(pa.Policy) {
				return invalidInput("policy %s listed more than once", pa.Policy)
			}
		}
	}
	return nil
}

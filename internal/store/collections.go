package store

import (
	"slices"

	"github.com/roster-sync/internal/domain"
)

// AddChatMessage appends a message to the active team's chat
func (s *Store) AddChatMessage(msg domain.ChatMessage) (domain.ChatMessage, bool) {
	var ok bool
	s.mutate(func() []Change {
		d := s.activeData()
		if d == nil {
			return nil
		}
		if msg.ID == "" {
			msg.ID = s.newID()
		}
		msg.TeamID = d.Team.ID
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = s.now()
		}
		if d.Chat, ok = upsertByID(d.Chat, msg, chatIDOf); !ok {
			return nil
		}
		return []Change{{TeamID: d.Team.ID, Scope: ScopeChat, ID: msg.ID}}
	})
	return msg, ok
}

// RemoveChatMessage deletes a chat message
func (s *Store) RemoveChatMessage(id string) bool {
	return s.removeActive(ScopeChat, id, func(d *domain.TeamData) bool {
		var ok bool
		d.Chat, ok = removeByID(d.Chat, id, chatIDOf)
		return ok
	})
}

// AddPaymentPeriod adds a dues period. When no player payments are given
// one is seeded for every active-roster player at the period amount.
func (s *Store) AddPaymentPeriod(p domain.PaymentPeriod) (domain.PaymentPeriod, bool) {
	var (
		out domain.PaymentPeriod
		ok  bool
	)
	s.mutate(func() []Change {
		d := s.activeData()
		if d == nil {
			return nil
		}
		if p.ID == "" {
			p.ID = s.newID()
		}
		if slices.ContainsFunc(d.PaymentPeriods, func(x domain.PaymentPeriod) bool { return x.ID == p.ID }) {
			return nil
		}
		p = p.Clone()
		p.TeamID = d.Team.ID
		if p.CreatedAt.IsZero() {
			p.CreatedAt = s.now()
		}
		if len(p.PlayerPayments) == 0 {
			for _, pl := range d.Players {
				if pl.Status != domain.RosterActive {
					continue
				}
				p.PlayerPayments = append(p.PlayerPayments, domain.PlayerPayment{
					ID:       s.newID(),
					PeriodID: p.ID,
					PlayerID: pl.ID,
					Amount:   p.Amount,
					Entries:  []domain.PaymentEntry{},
				})
			}
		}
		if p.PlayerPayments == nil {
			p.PlayerPayments = []domain.PlayerPayment{}
		}
		for i := range p.PlayerPayments {
			p.PlayerPayments[i].PeriodID = p.ID
		}
		p.RecomputeAll()
		d.PaymentPeriods = append(d.PaymentPeriods, p)
		out, ok = p.Clone(), true
		return []Change{{TeamID: d.Team.ID, Scope: ScopePayments, ID: p.ID}}
	})
	return out, ok
}

// UpdatePaymentPeriod changes a period's title, due date and amount.
// Player payments that owed the old amount now owe the new one.
func (s *Store) UpdatePaymentPeriod(p domain.PaymentPeriod) (domain.PaymentPeriod, bool) {
	var (
		out domain.PaymentPeriod
		ok  bool
	)
	s.mutate(func() []Change {
		d := s.activeData()
		if d == nil {
			return nil
		}
		i := slices.IndexFunc(d.PaymentPeriods, func(x domain.PaymentPeriod) bool { return x.ID == p.ID })
		if i < 0 {
			return nil
		}
		cur := &d.PaymentPeriods[i]
		for j := range cur.PlayerPayments {
			if cur.PlayerPayments[j].Amount == cur.Amount {
				cur.PlayerPayments[j].Amount = p.Amount
			}
		}
		cur.Title = p.Title
		cur.DueDate = p.DueDate
		cur.Amount = p.Amount
		cur.RecomputeAll()
		out, ok = cur.Clone(), true
		return []Change{{TeamID: d.Team.ID, Scope: ScopePayments, ID: p.ID}}
	})
	return out, ok
}

// RemovePaymentPeriod deletes a period with its payments and entries
func (s *Store) RemovePaymentPeriod(id string) bool {
	return s.removeActive(ScopePayments, id, func(d *domain.TeamData) bool {
		var ok bool
		d.PaymentPeriods, ok = removeByID(d.PaymentPeriods, id, periodIDOf)
		return ok
	})
}

// AddPaymentEntry records a payment by a player against a period, creating
// the player's payment record if needed, and recomputes its status.
func (s *Store) AddPaymentEntry(periodID, playerID string, entry domain.PaymentEntry) (domain.PlayerPayment, domain.PaymentEntry, bool) {
	var (
		out domain.PlayerPayment
		ok  bool
	)
	s.mutate(func() []Change {
		d := s.activeData()
		if d == nil || entry.Amount <= 0 {
			return nil
		}
		i := slices.IndexFunc(d.PaymentPeriods, func(x domain.PaymentPeriod) bool { return x.ID == periodID })
		if i < 0 {
			return nil
		}
		period := &d.PaymentPeriods[i]
		j := slices.IndexFunc(period.PlayerPayments, func(pp domain.PlayerPayment) bool { return pp.PlayerID == playerID })
		if j < 0 {
			period.PlayerPayments = append(period.PlayerPayments, domain.PlayerPayment{
				ID:       s.newID(),
				PeriodID: periodID,
				PlayerID: playerID,
				Amount:   period.Amount,
				Entries:  []domain.PaymentEntry{},
			})
			j = len(period.PlayerPayments) - 1
		}
		pp := &period.PlayerPayments[j]
		if entry.ID == "" {
			entry.ID = s.newID()
		}
		entry.PlayerPaymentID = pp.ID
		if entry.PaidAt.IsZero() {
			entry.PaidAt = s.now()
		}
		pp.Entries = append(pp.Entries, entry)
		pp.Recompute()
		out = *pp
		out.Entries = slices.Clone(pp.Entries)
		ok = true
		return []Change{{TeamID: d.Team.ID, Scope: ScopePayments, ID: periodID}}
	})
	return out, entry, ok
}

// RemovePaymentEntry deletes a payment entry and recomputes the status of
// the payment it belonged to.
func (s *Store) RemovePaymentEntry(entryID string) (domain.PlayerPayment, bool) {
	var (
		out domain.PlayerPayment
		ok  bool
	)
	s.mutate(func() []Change {
		d := s.activeData()
		if d == nil {
			return nil
		}
		for i := range d.PaymentPeriods {
			period := &d.PaymentPeriods[i]
			for j := range period.PlayerPayments {
				pp := &period.PlayerPayments[j]
				k := slices.IndexFunc(pp.Entries, func(e domain.PaymentEntry) bool { return e.ID == entryID })
				if k < 0 {
					continue
				}
				pp.Entries = slices.Delete(pp.Entries, k, k+1)
				pp.Recompute()
				out = *pp
				out.Entries = slices.Clone(pp.Entries)
				ok = true
				return []Change{{TeamID: d.Team.ID, Scope: ScopePayments, ID: period.ID}}
			}
		}
		return nil
	})
	return out, ok
}

// AddPhoto adds a photo to the active team
func (s *Store) AddPhoto(p domain.Photo) (domain.Photo, bool) {
	var ok bool
	s.mutate(func() []Change {
		d := s.activeData()
		if d == nil {
			return nil
		}
		if p.ID == "" {
			p.ID = s.newID()
		}
		p.TeamID = d.Team.ID
		if p.CreatedAt.IsZero() {
			p.CreatedAt = s.now()
		}
		if d.Photos, ok = upsertByID(d.Photos, p, photoIDOf); !ok {
			return nil
		}
		return []Change{{TeamID: d.Team.ID, Scope: ScopePhotos, ID: p.ID}}
	})
	return p, ok
}

// RemovePhoto deletes a photo
func (s *Store) RemovePhoto(id string) bool {
	return s.removeActive(ScopePhotos, id, func(d *domain.TeamData) bool {
		var ok bool
		d.Photos, ok = removeByID(d.Photos, id, photoIDOf)
		return ok
	})
}

// AddNotification adds a notification for a player of the active team
func (s *Store) AddNotification(n domain.AppNotification) (domain.AppNotification, bool) {
	var ok bool
	s.mutate(func() []Change {
		d := s.activeData()
		if d == nil {
			return nil
		}
		if n.ID == "" {
			n.ID = s.newID()
		}
		n.TeamID = d.Team.ID
		if n.CreatedAt.IsZero() {
			n.CreatedAt = s.now()
		}
		if d.Notifications, ok = upsertByID(d.Notifications, n, notificationIDOf); !ok {
			return nil
		}
		return []Change{{TeamID: d.Team.ID, Scope: ScopeNotifications, ID: n.ID}}
	})
	return n, ok
}

// MarkNotificationRead flags a notification as read
func (s *Store) MarkNotificationRead(id string) (domain.AppNotification, bool) {
	var (
		out domain.AppNotification
		ok  bool
	)
	s.mutate(func() []Change {
		d := s.activeData()
		if d == nil {
			return nil
		}
		i := slices.IndexFunc(d.Notifications, func(n domain.AppNotification) bool { return n.ID == id })
		if i < 0 || d.Notifications[i].Read {
			return nil
		}
		d.Notifications[i].Read = true
		out, ok = d.Notifications[i], true
		return []Change{{TeamID: d.Team.ID, Scope: ScopeNotifications, ID: id}}
	})
	return out, ok
}

// MarkAllNotificationsRead flags every unread notification of a player as
// read and returns the ones that changed.
func (s *Store) MarkAllNotificationsRead(playerID string) []domain.AppNotification {
	var out []domain.AppNotification
	s.mutate(func() []Change {
		d := s.activeData()
		if d == nil {
			return nil
		}
		for i := range d.Notifications {
			n := &d.Notifications[i]
			if n.ToPlayerID == playerID && !n.Read {
				n.Read = true
				out = append(out, *n)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return []Change{{TeamID: d.Team.ID, Scope: ScopeNotifications}}
	})
	return out
}

// RemoveNotification deletes a notification
func (s *Store) RemoveNotification(id string) bool {
	return s.removeActive(ScopeNotifications, id, func(d *domain.TeamData) bool {
		var ok bool
		d.Notifications, ok = removeByID(d.Notifications, id, notificationIDOf)
		return ok
	})
}

// AddPoll adds a poll to the active team
func (s *Store) AddPoll(p domain.Poll) (domain.Poll, bool) {
	var ok bool
	s.mutate(func() []Change {
		d := s.activeData()
		if d == nil {
			return nil
		}
		p = p.Clone()
		if p.ID == "" {
			p.ID = s.newID()
		}
		for i := range p.Options {
			if p.Options[i].ID == "" {
				p.Options[i].ID = s.newID()
			}
			if p.Options[i].Votes == nil {
				p.Options[i].Votes = []string{}
			}
		}
		p.TeamID = d.Team.ID
		if p.CreatedAt.IsZero() {
			p.CreatedAt = s.now()
		}
		if d.Polls, ok = upsertByID(d.Polls, p, pollIDOf); !ok {
			return nil
		}
		return []Change{{TeamID: d.Team.ID, Scope: ScopePolls, ID: p.ID}}
	})
	return p.Clone(), ok
}

// Vote records a player's vote. Closed polls and polls past their closing
// time accept no votes.
func (s *Store) Vote(pollID, optionID, playerID string) (domain.Poll, bool) {
	var (
		out domain.Poll
		ok  bool
	)
	s.mutate(func() []Change {
		d := s.activeData()
		if d == nil {
			return nil
		}
		i := slices.IndexFunc(d.Polls, func(p domain.Poll) bool { return p.ID == pollID })
		if i < 0 {
			return nil
		}
		poll := &d.Polls[i]
		if poll.ClosesAt != nil && !s.now().Before(*poll.ClosesAt) {
			return nil
		}
		if !poll.Vote(optionID, playerID) {
			return nil
		}
		out, ok = poll.Clone(), true
		return []Change{{TeamID: d.Team.ID, Scope: ScopePolls, ID: pollID}}
	})
	return out, ok
}

// RemovePoll deletes a poll
func (s *Store) RemovePoll(id string) bool {
	return s.removeActive(ScopePolls, id, func(d *domain.TeamData) bool {
		var ok bool
		d.Polls, ok = removeByID(d.Polls, id, pollIDOf)
		return ok
	})
}

// AddLink adds a link to the active team
func (s *Store) AddLink(l domain.TeamLink) (domain.TeamLink, bool) {
	var ok bool
	s.mutate(func() []Change {
		d := s.activeData()
		if d == nil {
			return nil
		}
		if l.ID == "" {
			l.ID = s.newID()
		}
		l.TeamID = d.Team.ID
		if l.CreatedAt.IsZero() {
			l.CreatedAt = s.now()
		}
		if d.Links, ok = upsertByID(d.Links, l, linkIDOf); !ok {
			return nil
		}
		return []Change{{TeamID: d.Team.ID, Scope: ScopeLinks, ID: l.ID}}
	})
	return l, ok
}

// RemoveLink deletes a link
func (s *Store) RemoveLink(id string) bool {
	return s.removeActive(ScopeLinks, id, func(d *domain.TeamData) bool {
		var ok bool
		d.Links, ok = removeByID(d.Links, id, linkIDOf)
		return ok
	})
}

// removeActive runs a removal against the active team
func (s *Store) removeActive(scope Scope, id string, fn func(*domain.TeamData) bool) bool {
	var ok bool
	s.mutate(func() []Change {
		d := s.activeData()
		if d == nil {
			return nil
		}
		if ok = fn(d); !ok {
			return nil
		}
		return []Change{{TeamID: d.Team.ID, Scope: scope, ID: id}}
	})
	return ok
}

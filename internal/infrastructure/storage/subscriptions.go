package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"PodcastNotifier/internal/domain"
)

var subscriptionColumns = []string{
	"s.id", "s.username", "s.chat_id", "s.podcast_id", "p.title",
	"s.active", "s.cadence", "s.subscribed_at", "s.updated_at",
}

func (r *Repository) selectSubscriptions() sq.SelectBuilder {
	return r.sb.Select(subscriptionColumns...).
		From("subscriptions s").
		Join("podcasts p ON p.id = s.podcast_id")
}

// Subscription loads the (username, podcast) subscription whether active or not.
func (r *Repository) Subscription(ctx context.Context, username string, podcastID int64) (domain.Subscription, error) {
	query, args, err := r.selectSubscriptions().
		Where(sq.Eq{"s.username": username, "s.podcast_id": podcastID}).
		ToSql()
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("build select subscription: %w", err)
	}

	sub, err := scanSubscription(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Subscription{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("select subscription: %w", err)
	}
	return sub, nil
}

// CreateSubscription inserts a new row. A second row for the same pair fails with ErrDuplicate.
func (r *Repository) CreateSubscription(ctx context.Context, sub domain.Subscription) error {
	query, args, err := r.sb.Insert("subscriptions").
		Columns("username", "chat_id", "podcast_id", "active", "cadence", "subscribed_at", "updated_at").
		Values(sub.Username, nullString(sub.ChatID), sub.PodcastID, sub.Active, string(sub.Cadence),
			sub.SubscribedAt.Unix(), sub.UpdatedAt.Unix()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert subscription: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("subscription %s/%d: %w", sub.Username, sub.PodcastID, domain.ErrDuplicate)
		}
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// UpdateSubscription overwrites the mutable fields of an existing pair.
func (r *Repository) UpdateSubscription(ctx context.Context, sub domain.Subscription) error {
	update := r.sb.Update("subscriptions").
		Set("active", sub.Active).
		Set("cadence", string(sub.Cadence)).
		Set("updated_at", sub.UpdatedAt.Unix()).
		Where(sq.Eq{"username": sub.Username, "podcast_id": sub.PodcastID})
	if sub.ChatID != "" {
		update = update.Set("chat_id", sub.ChatID)
	}

	query, args, err := update.ToSql()
	if err != nil {
		return fmt.Errorf("build update subscription: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ActiveSubscriptions returns every active subscription, grouped by user.
func (r *Repository) ActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	query, args, err := r.selectSubscriptions().
		Where(sq.Eq{"s.active": true}).
		OrderBy("s.username", "s.podcast_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build active subscriptions: %w", err)
	}
	return queryRows(ctx, r.db, query, args, scanSubscription)
}

// UserSubscriptions lists all subscriptions of a user, inactive ones included.
func (r *Repository) UserSubscriptions(ctx context.Context, username string) ([]domain.Subscription, error) {
	query, args, err := r.selectSubscriptions().
		Where(sq.Eq{"s.username": username}).
		OrderBy("p.title").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build user subscriptions: %w", err)
	}
	return queryRows(ctx, r.db, query, args, scanSubscription)
}

func scanSubscription(s rowScanner) (domain.Subscription, error) {
	var (
		sub                 domain.Subscription
		chatID              sql.NullString
		cadence             string
		subscribed, updated int64
	)
	err := s.Scan(&sub.ID, &sub.Username, &chatID, &sub.PodcastID, &sub.PodcastTitle,
		&sub.Active, &cadence, &subscribed, &updated)
	if err != nil {
		return domain.Subscription{}, err
	}
	sub.ChatID = chatID.String
	sub.Cadence = domain.Cadence(cadence)
	sub.SubscribedAt = fromUnix(subscribed)
	sub.UpdatedAt = fromUnix(updated)
	return sub, nil
}

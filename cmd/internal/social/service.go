package social

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"huddle/cmd/internal/docstore"
)

const (
	// FeedSize bounds each feed source and the merged result.
	FeedSize = 20
	// SearchWindow is how many of the newest users a search scans.
	SearchWindow = 20
)

// Service implements follows, the home feed and user search over a document store.
//
// Ownership model: does NOT own the store.
type Service struct {
	store docstore.Store
	log   *slog.Logger
}

// NewService constructs a Service.
func NewService(st docstore.Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: st, log: log}
}

func followQuery(followerID, followingID string) docstore.Query {
	return docstore.NewQuery(
		docstore.Equal(fieldFollowerID, followerID),
		docstore.Equal(fieldFollowingID, followingID),
	)
}

func validPair(op, followerID, followingID string) (string, string, error) {
	followerID = strings.TrimSpace(followerID)
	followingID = strings.TrimSpace(followingID)
	if followerID == "" || followingID == "" {
		return "", "", invalid(op, "missing user id")
	}
	if followerID == followingID {
		return "", "", invalid(op, "cannot follow yourself")
	}
	return followerID, followingID, nil
}

// Follow records that follower follows following. It reports false when the edge
// already existed.
func (s *Service) Follow(ctx context.Context, followerID, followingID string) (bool, error) {
	followerID, followingID, err := validPair("social.Follow", followerID, followingID)
	if err != nil {
		return false, err
	}

	// Check-then-create is not atomic; a concurrent duplicate is removed by Unfollow.
	n, err := s.store.Count(ctx, docstore.Follows, followQuery(followerID, followingID))
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	if _, err := s.store.Create(ctx, docstore.Follows, map[string]any{
		fieldFollowerID:  followerID,
		fieldFollowingID: followingID,
	}); err != nil {
		return false, err
	}
	s.log.Info("social.follow", "follower_id", followerID, "following_id", followingID)
	return true, nil
}

// Unfollow removes every follow edge from follower to following and reports whether
// one existed.
func (s *Service) Unfollow(ctx context.Context, followerID, followingID string) (bool, error) {
	followerID, followingID, err := validPair("social.Unfollow", followerID, followingID)
	if err != nil {
		return false, err
	}

	docs, err := s.store.List(ctx, docstore.Follows, followQuery(followerID, followingID).Page(docstore.MaxLimit, 0))
	if err != nil {
		return false, err
	}
	for _, d := range docs {
		if err := s.store.Delete(ctx, docstore.Follows, d.ID); err != nil && !docstore.IsNotFound(err) {
			return false, err
		}
	}
	if len(docs) > 0 {
		s.log.Info("social.unfollow", "follower_id", followerID, "following_id", followingID)
	}
	return len(docs) > 0, nil
}

// IsFollowing reports whether follower follows following.
func (s *Service) IsFollowing(ctx context.Context, followerID, followingID string) (bool, error) {
	followerID, followingID, err := validPair("social.IsFollowing", followerID, followingID)
	if err != nil {
		return false, err
	}
	n, err := s.store.Count(ctx, docstore.Follows, followQuery(followerID, followingID))
	return n > 0, err
}

// FollowersCount counts the users following userID.
func (s *Service) FollowersCount(ctx context.Context, userID string) (int, error) {
	return s.countEdges(ctx, "social.FollowersCount", fieldFollowingID, userID)
}

// FollowingCount counts the users userID follows.
func (s *Service) FollowingCount(ctx context.Context, userID string) (int, error) {
	return s.countEdges(ctx, "social.FollowingCount", fieldFollowerID, userID)
}

func (s *Service) countEdges(ctx context.Context, op, field, userID string) (int, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, invalid(op, "missing user id")
	}
	return s.store.Count(ctx, docstore.Follows, docstore.NewQuery(docstore.Equal(field, userID)))
}

// Stats returns both counters, read concurrently.
func (s *Service) Stats(ctx context.Context, userID string) (FollowStats, error) {
	var st FollowStats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		st.Followers, err = s.FollowersCount(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		st.Following, err = s.FollowingCount(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return FollowStats{}, err
	}
	return st, nil
}

// HomeFeed merges the newest regular posts of the viewer and the users they follow
// with the newest posts of the viewer's groups, newest first, at most FeedSize.
func (s *Service) HomeFeed(ctx context.Context, viewerID string) ([]Post, error) {
	viewerID = strings.TrimSpace(viewerID)
	if viewerID == "" {
		return nil, invalid("social.HomeFeed", "missing viewer id")
	}

	var regular, grouped []docstore.Document
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		authors, err := s.followedAuthors(gctx, viewerID)
		if err != nil {
			return err
		}
		regular, err = s.store.List(gctx, docstore.Posts, docstore.NewQuery(
			docstore.EqualStrings(fieldCreator, authors),
			docstore.IsNull(fieldGroupID),
		).Desc(docstore.FieldCreatedAt).Page(FeedSize, 0))
		return err
	})
	g.Go(func() error {
		groups, err := s.viewerGroups(gctx, viewerID)
		if err != nil || len(groups) == 0 {
			return err
		}
		grouped, err = s.store.List(gctx, docstore.Posts, docstore.NewQuery(
			docstore.EqualStrings(fieldGroupID, groups),
		).Desc(docstore.FieldCreatedAt).Page(FeedSize, 0))
		return err
	})
	if err := g.Wait(); err != nil {
		s.log.Error("social.feed.fail", "viewer_id", viewerID, "err", err)
		return nil, err
	}

	posts := make([]Post, 0, len(regular)+len(grouped))
	seen := make(map[string]struct{}, cap(posts))
	for _, d := range slices.Concat(regular, grouped) {
		if _, dup := seen[d.ID]; dup {
			continue
		}
		seen[d.ID] = struct{}{}
		posts = append(posts, PostFromDocument(d))
	}
	slices.SortStableFunc(posts, func(a, b Post) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if len(posts) > FeedSize {
		posts = posts[:FeedSize]
	}
	return posts, nil
}

// followedAuthors is everyone the viewer follows plus the viewer.
func (s *Service) followedAuthors(ctx context.Context, viewerID string) ([]string, error) {
	docs, err := s.store.List(ctx, docstore.Follows, docstore.NewQuery(
		docstore.Equal(fieldFollowerID, viewerID),
	).Page(docstore.MaxLimit, 0))
	if err != nil {
		return nil, err
	}
	authors := make([]string, 0, len(docs)+1)
	for _, d := range docs {
		if id := d.String(fieldFollowingID); id != "" {
			authors = append(authors, id)
		}
	}
	authors = append(authors, viewerID)
	slices.Sort(authors)
	return slices.Compact(authors), nil
}

// viewerGroups lists the existing groups the viewer is a member of.
func (s *Service) viewerGroups(ctx context.Context, viewerID string) ([]string, error) {
	memberships, err := s.store.List(ctx, docstore.GroupMembers, docstore.NewQuery(
		docstore.Equal(fieldUserID, viewerID),
	).Page(docstore.MaxLimit, 0))
	if err != nil || len(memberships) == 0 {
		return nil, err
	}

	ids := make([]string, 0, len(memberships))
	for _, m := range memberships {
		if id := m.String(fieldGroupID); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	// Memberships can outlive their group.
	groups, err := s.store.List(ctx, docstore.Groups, docstore.NewQuery(
		docstore.EqualStrings(docstore.FieldID, ids),
	).Page(docstore.MaxLimit, 0))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.ID)
	}
	return out, nil
}

// SearchUsers filters the SearchWindow newest users by a case-insensitive substring
// of name or username. A blank term matches nobody.
func (s *Service) SearchUsers(ctx context.Context, term string) ([]User, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return []User{}, nil
	}

	docs, err := s.store.List(ctx, docstore.Users, docstore.NewQuery().
		Desc(docstore.FieldCreatedAt).Page(SearchWindow, 0))
	if err != nil {
		return nil, err
	}

	out := make([]User, 0, len(docs))
	for _, d := range docs {
		u := UserFromDocument(d)
		if strings.Contains(strings.ToLower(u.Name), term) || strings.Contains(strings.ToLower(u.Username), term) {
			out = append(out, u)
		}
	}
	return out, nil
}

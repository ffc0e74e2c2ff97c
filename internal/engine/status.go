package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/anatolykoptev/go_ytlate/internal/history"
)

// LiveStatus is the verdict for a channel's next live stream.
type LiveStatus string

const (
	StatusNoSchedule LiveStatus = "NO_SCHEDULE" // no upcoming broadcast at all
	StatusLive       LiveStatus = "LIVE"
	StatusLate       LiveStatus = "LATE" // scheduled start has passed, not live yet
	StatusUpcoming   LiveStatus = "UPCOMING"
	StatusUnknown    LiveStatus = "UNKNOWN"
)

// LateResult is the answer to "is this channel late for its stream?".
type LateResult struct {
	ChannelID   string     `json:"channel_id"`
	ChannelName string     `json:"channel_name"`
	ProfilePic  Thumbnail  `json:"profile_pic"`
	LiveStatus  LiveStatus `json:"live_status"`
}

// HistoryResult lists past checks of one channel, newest first.
type HistoryResult struct {
	ChannelID string          `json:"channel_id"`
	Checks    []history.Check `json:"checks"`
}

// ClassifyLiveStatus walks the broadcasts in API order.
// A live stream wins immediately, so does a scheduled start in the past.
// Ended streams and streams scheduled beyond horizon are ignored.
// A broadcast without timing data never downgrades an earlier UPCOMING.
func ClassifyLiveStatus(details []StreamDetails, now time.Time, horizon time.Duration) LiveStatus {
	status := StatusUnknown
	for _, d := range details {
		switch {
		case d.Ended:
			continue
		case d.Started:
			return StatusLive
		case !d.ScheduledStart.IsZero():
			if d.ScheduledStart.After(now.Add(horizon)) {
				continue
			}
			if d.ScheduledStart.Before(now) {
				return StatusLate
			}
			status = StatusUpcoming
		}
		// no timing data: status stays as is
	}
	return status
}

// Checker answers live status questions and keeps the check history.
type Checker struct {
	yt    *YouTube
	store history.Store
	now   func() time.Time
}

// NewChecker wires the YouTube client to a history store. A nil store disables history.
func NewChecker(yt *YouTube, store history.Store) *Checker {
	if store == nil {
		store = history.Nop{}
	}
	return &Checker{yt: yt, store: store, now: time.Now}
}

// CheckLate resolves query to a channel and reports its live status.
// Failures are returned as *CheckError.
func (c *Checker) CheckLate(ctx context.Context, query string) (LateResult, error) {
	metrics.LateRequests.Add(1)
	query = strings.TrimSpace(query)

	ctx, span := tracer.Start(ctx, "late.check", trace.WithAttributes(AttrQuery.String(query)))
	defer span.End()

	var res LateResult
	err := TrackOperation(ctx, "late_check", func(ctx context.Context) error {
		var err error
		res, err = c.checkLate(ctx, query)
		return err
	})
	if err != nil {
		metrics.LateErrors.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return LateResult{}, err
	}
	span.SetAttributes(AttrChannelID.String(res.ChannelID), AttrLiveStatus.String(string(res.LiveStatus)))
	span.SetStatus(codes.Ok, "")

	c.record(ctx, query, res)
	return res, nil
}

func (c *Checker) checkLate(ctx context.Context, query string) (LateResult, error) {
	if query == "" {
		return LateResult{}, &CheckError{Query: query, Err: ErrEmptyQuery}
	}
	channelID, err := c.yt.ResolveChannelID(ctx, query)
	if err != nil {
		return LateResult{}, &CheckError{Query: query, Err: err}
	}
	info, err := c.yt.ChannelInfo(ctx, channelID)
	if err != nil {
		return LateResult{}, &CheckError{Query: query, ChannelID: channelID, Err: err}
	}
	status, err := c.LiveStatus(ctx, channelID)
	if err != nil {
		return LateResult{}, &CheckError{Query: query, ChannelID: channelID, Err: err}
	}
	return LateResult{
		ChannelID:   channelID,
		ChannelName: info.Name,
		ProfilePic:  info.ProfilePic,
		LiveStatus:  status,
	}, nil
}

// LiveStatus computes the status of a resolved channel, cached for Cfg.StatusTTL.
func (c *Checker) LiveStatus(ctx context.Context, channelID string) (LiveStatus, error) {
	key := CacheKey("status", channelID)
	return cachedCall(ctx, c.yt, key, Cfg.StatusTTL, func(ctx context.Context) (LiveStatus, error) {
		ids, err := c.yt.UpcomingVideoIDs(ctx, channelID)
		if err != nil {
			return "", err
		}
		if len(ids) == 0 {
			slog.Debug("no upcoming live videos", slog.String("channel_id", channelID))
			return StatusNoSchedule, nil
		}
		details, err := c.yt.LiveDetails(ctx, ids)
		if err != nil {
			return "", err
		}
		status := ClassifyLiveStatus(details, c.now(), Cfg.ScheduleHorizon)
		slog.Debug("live status computed",
			slog.String("channel_id", channelID),
			slog.Int("videos", len(details)),
			slog.String("status", string(status)),
		)
		return status, nil
	})
}

// History returns the most recent recorded checks for the channel behind query.
func (c *Checker) History(ctx context.Context, query string, limit int) (HistoryResult, error) {
	metrics.HistoryRequests.Add(1)
	query = strings.TrimSpace(query)
	if query == "" {
		return HistoryResult{}, &CheckError{Query: query, Err: ErrEmptyQuery}
	}
	channelID, err := c.yt.ResolveChannelID(ctx, query)
	if err != nil {
		return HistoryResult{}, &CheckError{Query: query, Err: err}
	}
	checks, err := c.store.Recent(ctx, channelID, limit)
	if err != nil {
		return HistoryResult{}, &CheckError{Query: query, ChannelID: channelID, Err: err}
	}
	if checks == nil {
		checks = []history.Check{}
	}
	return HistoryResult{ChannelID: channelID, Checks: checks}, nil
}

func (c *Checker) record(ctx context.Context, query string, res LateResult) {
	err := c.store.Record(ctx, history.Check{
		ChannelID:   res.ChannelID,
		ChannelName: res.ChannelName,
		Query:       query,
		Status:      string(res.LiveStatus),
		CheckedAt:   c.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		metrics.HistoryErrors.Add(1)
		slog.Warn("history: record failed", slog.String("channel_id", res.ChannelID), slog.Any("error", err))
		return
	}
	metrics.HistoryWrites.Add(1)
}

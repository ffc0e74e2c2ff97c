package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// YouTube Data API v3 access: channel resolution, channel info, upcoming
// broadcast search and live streaming details. Every call goes through the
// rate limiter, retry loop and tracing; cacheable lookups also share a
// singleflight group so concurrent requests for one channel cost one call.

// Thumbnail is a channel avatar as returned by the Data API.
type Thumbnail struct {
	URL    string `json:"url,omitempty"`
	Width  int64  `json:"width,omitempty"`
	Height int64  `json:"height,omitempty"`
}

// ChannelInfo is the display data of a channel.
type ChannelInfo struct {
	Name       string    `json:"channel_name"`
	ProfilePic Thumbnail `json:"profile_pic"`
}

// StreamDetails is the live streaming state of one broadcast.
type StreamDetails struct {
	VideoID        string
	Started        bool      // actualStartTime present
	Ended          bool      // actualEndTime present
	ScheduledStart time.Time // zero when absent or unparsable
}

// YouTube is a rate-limited, cached client for the Data API.
type YouTube struct {
	primary  *youtube.Service
	fallback *youtube.Service // nil when no fallback key is configured
	limiter  *rate.Limiter
	group    singleflight.Group
	retry    RetryConfig
}

// NewYouTube builds the Data API client from Cfg.
func NewYouTube(ctx context.Context) (*YouTube, error) {
	if Cfg.YouTubeAPIKey == "" {
		return nil, ErrMissingAPIKey
	}
	primary, err := newService(ctx, Cfg.YouTubeAPIKey)
	if err != nil {
		return nil, err
	}
	yt := &YouTube{
		primary: primary,
		limiter: rate.NewLimiter(rate.Limit(Cfg.YouTubeQPS), Cfg.YouTubeBurst),
		retry:   Cfg.Retry,
	}
	if Cfg.YouTubeAPIKeyFallback != "" {
		if yt.fallback, err = newService(ctx, Cfg.YouTubeAPIKeyFallback); err != nil {
			return nil, err
		}
	}
	return yt, nil
}

func newService(ctx context.Context, apiKey string) (*youtube.Service, error) {
	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if Cfg.YouTubeEndpoint != "" {
		opts = append(opts, option.WithEndpoint(Cfg.YouTubeEndpoint))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return svc, nil
}

// ResolveChannelID turns a channel id, @handle or legacy username into a channel id.
func (yt *YouTube) ResolveChannelID(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	switch {
	case strings.HasPrefix(query, "UC"):
		slog.Debug("channel id provided", slog.String("channel", query))
		return query, nil
	case strings.HasPrefix(query, "@"):
		return yt.ChannelIDForHandle(ctx, query)
	default:
		return yt.ChannelIDForUsername(ctx, query)
	}
}

// ChannelIDForHandle looks up the channel id of an @handle.
func (yt *YouTube) ChannelIDForHandle(ctx context.Context, handle string) (string, error) {
	if !strings.HasPrefix(handle, "@") {
		return "", ErrInvalidHandle
	}
	key := CacheKey("handle", strings.ToLower(handle))
	return cachedCall(ctx, yt, key, Cfg.ChannelTTL, func(ctx context.Context) (string, error) {
		return yt.lookupChannelID(ctx, func(call *youtube.ChannelsListCall) *youtube.ChannelsListCall {
			return call.ForHandle(handle)
		})
	})
}

// ChannelIDForUsername looks up the channel id of a legacy username.
func (yt *YouTube) ChannelIDForUsername(ctx context.Context, username string) (string, error) {
	key := CacheKey("username", username)
	return cachedCall(ctx, yt, key, Cfg.ChannelTTL, func(ctx context.Context) (string, error) {
		return yt.lookupChannelID(ctx, func(call *youtube.ChannelsListCall) *youtube.ChannelsListCall {
			return call.ForUsername(username)
		})
	})
}

func (yt *YouTube) lookupChannelID(ctx context.Context, filter func(*youtube.ChannelsListCall) *youtube.ChannelsListCall) (string, error) {
	resp, err := callAPI(ctx, yt, "channels.list", func(ctx context.Context, svc *youtube.Service) (*youtube.ChannelListResponse, error) {
		return filter(svc.Channels.List([]string{"id"})).Context(ctx).Do()
	})
	if err != nil {
		return "", err
	}
	if len(resp.Items) == 0 || resp.Items[0].Id == "" {
		slog.Warn("channel not found or no items returned")
		return "", ErrChannelNotFound
	}
	return resp.Items[0].Id, nil
}

// ChannelInfo returns the title and medium avatar of a channel.
func (yt *YouTube) ChannelInfo(ctx context.Context, channelID string) (ChannelInfo, error) {
	key := CacheKey("info", channelID)
	return cachedCall(ctx, yt, key, Cfg.ChannelTTL, func(ctx context.Context) (ChannelInfo, error) {
		resp, err := callAPI(ctx, yt, "channels.list", func(ctx context.Context, svc *youtube.Service) (*youtube.ChannelListResponse, error) {
			return svc.Channels.List([]string{"snippet"}).Id(channelID).Context(ctx).Do()
		})
		if err != nil {
			return ChannelInfo{}, err
		}
		if len(resp.Items) == 0 {
			return ChannelInfo{}, ErrChannelNotFound
		}
		return channelInfoFrom(channelID, resp.Items[0].Snippet), nil
	})
}

func channelInfoFrom(channelID string, snippet *youtube.ChannelSnippet) ChannelInfo {
	info := ChannelInfo{Name: channelID}
	if snippet == nil {
		return info
	}
	if snippet.Title != "" {
		info.Name = snippet.Title
	}
	if snippet.Thumbnails != nil && snippet.Thumbnails.Medium != nil {
		m := snippet.Thumbnails.Medium
		info.ProfilePic = Thumbnail{URL: m.Url, Width: m.Width, Height: m.Height}
	}
	return info
}

// UpcomingVideoIDs returns the ids of the channel's upcoming broadcasts.
// No upcoming broadcast is an empty slice, not an error.
func (yt *YouTube) UpcomingVideoIDs(ctx context.Context, channelID string) ([]string, error) {
	key := CacheKey("upcoming", channelID)
	return cachedCall(ctx, yt, key, Cfg.UpcomingTTL, func(ctx context.Context) ([]string, error) {
		resp, err := callAPI(ctx, yt, "search.list", func(ctx context.Context, svc *youtube.Service) (*youtube.SearchListResponse, error) {
			return svc.Search.List([]string{"snippet"}).
				ChannelId(channelID).
				EventType("upcoming").
				Type("video").
				Context(ctx).
				Do()
		})
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(resp.Items))
		for _, item := range resp.Items {
			if item.Id == nil || item.Id.VideoId == "" {
				continue
			}
			ids = append(ids, item.Id.VideoId)
		}
		slog.Debug("upcoming live videos", slog.String("channel_id", channelID), slog.Int("count", len(ids)))
		return ids, nil
	})
}

// LiveDetails fetches live streaming details for the given videos. Uncached.
func (yt *YouTube) LiveDetails(ctx context.Context, videoIDs []string) ([]StreamDetails, error) {
	if len(videoIDs) == 0 {
		return nil, nil
	}
	resp, err := callAPI(ctx, yt, "videos.list", func(ctx context.Context, svc *youtube.Service) (*youtube.VideoListResponse, error) {
		return svc.Videos.List([]string{"liveStreamingDetails"}).Id(videoIDs...).Context(ctx).Do()
	})
	if err != nil {
		return nil, err
	}
	out := make([]StreamDetails, 0, len(resp.Items))
	for _, item := range resp.Items {
		out = append(out, streamDetailsFrom(item))
	}
	return out, nil
}

func streamDetailsFrom(v *youtube.Video) StreamDetails {
	d := StreamDetails{VideoID: v.Id}
	lsd := v.LiveStreamingDetails
	if lsd == nil {
		return d
	}
	d.Started = lsd.ActualStartTime != ""
	d.Ended = lsd.ActualEndTime != ""
	if lsd.ScheduledStartTime != "" {
		t, err := time.Parse(time.RFC3339, lsd.ScheduledStartTime)
		if err != nil {
			slog.Debug("unparsable scheduledStartTime", slog.String("video_id", v.Id), slog.String("value", lsd.ScheduledStartTime))
		} else {
			d.ScheduledStart = t.UTC()
		}
	}
	return d
}

// cachedCall serves key from the cache, otherwise runs fetch once per key
// across concurrent callers and caches a successful result for ttl.
// Errors are never cached.
//
// The shared fetch runs detached from any single caller: it keeps ctx values
// but not its cancellation, and is bounded by Cfg.FetchTimeout instead. Each
// caller stops waiting when its own ctx is done.
func cachedCall[T any](ctx context.Context, yt *YouTube, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	if v, ok := CacheLoadJSON[T](ctx, key); ok {
		return v, nil
	}
	ch := yt.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), Cfg.FetchTimeout)
		defer cancel()
		fetchCtx, span := tracer.Start(fetchCtx, "youtube.shared_fetch",
			trace.WithNewRoot(),
			trace.WithLinks(trace.LinkFromContext(ctx)),
		)
		defer span.End()

		out, err := fetch(fetchCtx)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		CacheStoreJSON(fetchCtx, key, out, ttl)
		return out, nil
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// callAPI runs one Data API request with rate limiting, retries, tracing
// and quota fallback to the secondary key.
func callAPI[T any](ctx context.Context, yt *YouTube, op string, do func(context.Context, *youtube.Service) (T, error)) (T, error) {
	ctx, span := tracer.Start(ctx, "youtube."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(AttrOperation.String(op)),
	)
	defer span.End()

	attempt := func(svc *youtube.Service) (T, error) {
		return RetryDo(ctx, yt.retry, func() (T, error) {
			if err := yt.limiter.Wait(ctx); err != nil {
				var zero T
				return zero, err
			}
			metrics.YouTubeAPICalls.Add(1)
			return do(ctx, svc)
		})
	}

	out, err := attempt(yt.primary)
	if err != nil && yt.fallback != nil && isQuotaError(err) {
		slog.Warn("youtube: primary key over quota, using fallback", slog.String("op", op))
		metrics.YouTubeQuotaFallbacks.Add(1)
		span.SetAttributes(AttrKeySlot.String("fallback"))
		out, err = attempt(yt.fallback)
	}
	if err != nil {
		metrics.YouTubeAPIErrors.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("youtube api call failed", slog.String("op", op), slog.Any("error", err))
		var zero T
		return zero, upstreamError(op, err)
	}
	span.SetStatus(codes.Ok, "")
	return out, nil
}

func upstreamError(op string, err error) error {
	ue := &UpstreamError{Op: op, Err: err}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		ue.Code = apiErr.Code
	}
	return ue
}

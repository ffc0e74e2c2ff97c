package engine

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const instrumentationName = "github.com/anatolykoptev/go_ytlate"

// Span attribute keys.
const (
	AttrOperation  = attribute.Key("youtube.operation")
	AttrChannelID  = attribute.Key("youtube.channel.id")
	AttrQuery      = attribute.Key("youtube.query")
	AttrVideoCount = attribute.Key("youtube.videos.count")
	AttrLiveStatus = attribute.Key("youtube.live_status")
	AttrKeySlot    = attribute.Key("youtube.api_key.slot")
)

// No-op until main installs a TracerProvider.
var tracer = otel.Tracer(instrumentationName)

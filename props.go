package chime

// Property names used in change notifications. Owners are the player, its
// queue, its stream lists and individual media items.
const (
	PropAutoplay            = "autoplay"
	PropPosition            = "position"
	PropSpeed               = "speed"
	PropState               = "state"
	PropMute                = "mute"
	PropVolume              = "volume"
	PropAudioSink           = "audio-sink"
	PropVideoSink           = "video-sink"
	PropAudioFilter         = "audio-filter"
	PropVideoFilter         = "video-filter"
	PropCurrentVideoDecoder = "current-video-decoder"
	PropCurrentAudioDecoder = "current-audio-decoder"
	PropVideoEnabled        = "video-enabled"
	PropAudioEnabled        = "audio-enabled"
	PropSubtitlesEnabled    = "subtitles-enabled"
	PropDownloadDir         = "download-dir"
	PropDownloadEnabled     = "download-enabled"
	PropAdaptiveStartBitrate = "adaptive-start-bitrate"
	PropAdaptiveMinBitrate   = "adaptive-min-bitrate"
	PropAdaptiveMaxBitrate   = "adaptive-max-bitrate"
	PropAdaptiveBandwidth    = "adaptive-bandwidth"
	PropAudioOffset          = "audio-offset"
	PropSubtitleOffset       = "subtitle-offset"
	PropSubtitleFontDesc     = "subtitle-font-desc"

	PropQueueCurrentItem     = "current-item"
	PropQueueCurrentIndex    = "current-index"
	PropQueueProgressionMode = "progression-mode"
	PropQueueGapless         = "gapless"
	PropQueueInstant         = "instant"

	PropStreamListCurrentStream = "current-stream"
	PropStreamListCurrentIndex  = "current-index"

	PropItemTitle           = "title"
	PropItemContainerFormat = "container-format"
	PropItemDuration        = "duration"
	PropItemSubURI          = "suburi"
	PropItemCacheLocation   = "cache-location"
)

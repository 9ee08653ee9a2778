// Package config loads the watcher configuration: YAML coerced to JSON and
// strictly decoded, with hot reload via a filesystem watch.
//
// All duration fields are Go duration strings (e.g. "500ms", "10s", "1m").
package config

type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Telegram TelegramConfig `json:"telegram"`
	Cache    CacheConfig    `json:"cache"`
	Storage  StorageConfig  `json:"storage"`
	Upstream UpstreamConfig `json:"upstream"`
	Monitor  MonitorConfig  `json:"monitor"`
	Scan     PoolConfig     `json:"scan"`
	Notify   NotifyConfig   `json:"notify"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// ChannelID, when non-zero, broadcasts every alert to this chat instead
	// of each user's own chat.
	ChannelID   int64  `json:"channel_id,omitempty"`
	CallTimeout string `json:"call_timeout,omitempty"`
}

// CacheConfig selects the cache-aside backend.
type CacheConfig struct {
	Driver string `json:"driver"` // "memory" (default) or "redis"
	Addr   string `json:"addr,omitempty"`
	DB     int    `json:"db,omitempty"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// UpstreamConfig tunes the federation data clients.
type UpstreamConfig struct {
	WebBaseTemplate string `json:"web_base_template,omitempty"`
	PollBase        string `json:"poll_base,omitempty"`
	CallTimeout     string `json:"call_timeout,omitempty"`
	RatePerSec      int    `json:"rate_per_sec,omitempty"`

	TTL TTLConfig `json:"ttl,omitempty"`
}

// TTLConfig overrides the cache TTL policy per dataset.
type TTLConfig struct {
	Scoreboard   string `json:"scoreboard,omitempty"`
	MatchStates  string `json:"match_states,omitempty"`
	MatchRoster  string `json:"match_roster,omitempty"`
	TeamRoster   string `json:"team_roster,omitempty"`
	Teams        string `json:"teams,omitempty"`
	Competitions string `json:"competitions,omitempty"`
	Statistics   string `json:"statistics,omitempty"`
}

// MonitorConfig controls the scan loop and detection window.
type MonitorConfig struct {
	Tick        string `json:"tick,omitempty"`
	ScanTimeout string `json:"scan_timeout,omitempty"`
	SweepEvery  string `json:"sweep_every,omitempty"`

	// ActiveWindowBefore/After bound match relevance around kickoff.
	ActiveWindowBefore string `json:"active_window_before,omitempty"`
	ActiveWindowAfter  string `json:"active_window_after,omitempty"`

	// CompetitionIDs restricts each federation to an id allow-list.
	// Keys are federation slugs; unknown slugs fail startup.
	CompetitionIDs map[string][]int `json:"competition_ids,omitempty"`
}

// PoolConfig sizes one task engine instance.
type PoolConfig struct {
	Workers   int `json:"workers,omitempty"`
	QueueSize int `json:"queue_size,omitempty"`
	RetryMax  int `json:"retry_max,omitempty"`
}

type NotifyConfig struct {
	Workers    int `json:"workers,omitempty"`
	QueueSize  int `json:"queue_size,omitempty"`
	RatePerSec int `json:"rate_per_sec,omitempty"`

	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`

	DedupRetention string `json:"dedup_retention,omitempty"`
	// DedupIncludePlayers folds the affected player sets into the event
	// identity, so a changed set re-notifies.
	DedupIncludePlayers bool `json:"dedup_include_players,omitempty"`

	// DisplayUTCOffset shifts rendered kickoff times, e.g. "3h".
	DisplayUTCOffset string `json:"display_utc_offset,omitempty"`
}

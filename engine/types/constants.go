// Package types holds the data shapes and tunables shared across the
// engine packages: DownloadContext, segment ranges, and RuntimeConfig.
package types

import "time"

// Byte-size units, powers of 1024.
const (
	KB = 1 << (10 * (iota + 1))
	MB
	GB
)

// Segment count bounds (spec.md §3: max_segments (1..=255)).
const (
	MinSegments = 1
	MaxSegments = 255
)

// Default RuntimeConfig values. A nil or zero-valued *RuntimeConfig falls
// back to these everywhere a getter is called.
const (
	DefaultUserAgent = "Mozilla/5.0 (compatible; dlctl/1.0; +https://github.com/arjwright/dlctl)"

	// DefaultWorkerBufferSize is the per-worker read/write chunk size (§4.4: "read up to 4 KiB").
	DefaultWorkerBufferSize = 4 * KB

	// DefaultMaxTaskRetries is the worker's read-retry budget (§4.2: "up to 5 attempts").
	DefaultMaxTaskRetries = 5

	// DefaultRetrySleep is the pause between retry attempts (§4.2: "sleeping 5 s between attempts").
	DefaultRetrySleep = 5 * time.Second

	// DefaultReadTimeout bounds a single segment read attempt (§4.2: "5 s" read).
	DefaultReadTimeout = 5 * time.Second

	// DefaultProbeTimeout bounds each probe request attempt (§4.2: "10 s" probe).
	DefaultProbeTimeout = 10 * time.Second

	// DefaultSpeedSampleInterval is the Speed Monitor's tick rate (§4.3: "1 Hz").
	DefaultSpeedSampleInterval = time.Second

	// DefaultMinSampleInterval is the "dt < 500 ms emits 0" guard (§4.3).
	DefaultMinSampleInterval = 500 * time.Millisecond
)

// IncompleteSuffix marks the scratch per-segment files produced by the
// Segment Planner (spec.md Glossary: "<stem>-<i>.downtemp").
const IncompleteSuffix = ".downtemp"

// RuntimeConfig holds the tunables an embedder may override. Every field
// has a nil-safe getter below: a nil *RuntimeConfig, or a RuntimeConfig
// with a zero value in a given field, yields the package default.
type RuntimeConfig struct {
	UserAgent         string
	WorkerBufferSize  int64
	MaxTaskRetries    int
	RetrySleep        time.Duration
	ReadTimeout       time.Duration
	ProbeTimeout      time.Duration
	SpeedSampleEvery  time.Duration
	MinSampleInterval time.Duration
}

func (r *RuntimeConfig) GetUserAgent() string {
	if r == nil || r.UserAgent == "" {
		return DefaultUserAgent
	}
	return r.UserAgent
}

func (r *RuntimeConfig) GetWorkerBufferSize() int64 {
	if r == nil || r.WorkerBufferSize <= 0 {
		return DefaultWorkerBufferSize
	}
	return r.WorkerBufferSize
}

func (r *RuntimeConfig) GetMaxTaskRetries() int {
	if r == nil || r.MaxTaskRetries <= 0 {
		return DefaultMaxTaskRetries
	}
	return r.MaxTaskRetries
}

func (r *RuntimeConfig) GetRetrySleep() time.Duration {
	if r == nil || r.RetrySleep <= 0 {
		return DefaultRetrySleep
	}
	return r.RetrySleep
}

func (r *RuntimeConfig) GetReadTimeout() time.Duration {
	if r == nil || r.ReadTimeout <= 0 {
		return DefaultReadTimeout
	}
	return r.ReadTimeout
}

func (r *RuntimeConfig) GetProbeTimeout() time.Duration {
	if r == nil || r.ProbeTimeout <= 0 {
		return DefaultProbeTimeout
	}
	return r.ProbeTimeout
}

func (r *RuntimeConfig) GetSpeedSampleEvery() time.Duration {
	if r == nil || r.SpeedSampleEvery <= 0 {
		return DefaultSpeedSampleInterval
	}
	return r.SpeedSampleEvery
}

func (r *RuntimeConfig) GetMinSampleInterval() time.Duration {
	if r == nil || r.MinSampleInterval <= 0 {
		return DefaultMinSampleInterval
	}
	return r.MinSampleInterval
}
